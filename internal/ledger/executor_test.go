package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/fundraise-backend/internal/errors"
	"github.com/unclebandit/fundraise-backend/internal/model"
	"github.com/unclebandit/fundraise-backend/internal/repository"
)

var caller = common.HexToAddress("0x00000000000000000000000000000000000000c1")

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	envs   []model.EventEnvelope
}

func (p *recordingPublisher) Publish(topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.envs = append(p.envs, payload.(model.EventEnvelope))
	return nil
}

func (p *recordingPublisher) envelopes() []model.EventEnvelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.EventEnvelope(nil), p.envs...)
}

type failingPersister struct{ calls int }

func (f *failingPersister) Persist(context.Context, repository.Changeset, model.JournalRecord) error {
	f.calls++
	return errors.New("disk on fire")
}

func startExecutor(t *testing.T, opts Options) *Executor {
	t.Helper()
	return startExecutorFrom(t, repository.EmptySnapshot(), nil, opts)
}

func startExecutorFrom(t *testing.T, base *repository.Snapshot, journal *Journal, opts Options) *Executor {
	t.Helper()
	opts.Log = zerolog.Nop()
	e, err := NewExecutor(base, journal, opts)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func createCampaign(title string) func(context.Context, *repository.UnitOfWork) (int, error) {
	return func(_ context.Context, uow *repository.UnitOfWork) (int, error) {
		id, err := uow.Create(&model.Campaign{
			Owner:           caller,
			Title:           title,
			TargetNative:    uint256.NewInt(100),
			AmountCollected: new(uint256.Int),
			TotalWithdrawn:  new(uint256.Int),
		})
		if err != nil {
			return 0, err
		}
		uow.Emit(model.CampaignCreated{CampaignID: id, Owner: caller, Title: title})
		return id, nil
	}
}

func TestCommitPublishesSnapshotAndEvents(t *testing.T) {
	pub := &recordingPublisher{}
	e := startExecutor(t, Options{Publisher: pub})

	id, err := Do(context.Background(), e, "CreateCampaign", caller, createCampaign("first"))
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	snap := e.Snapshot()
	assert.Equal(t, uint64(1), snap.Seq())
	c, err := snap.GetByID(0)
	require.NoError(t, err)
	assert.Equal(t, "first", c.Title)

	envs := pub.envelopes()
	require.Len(t, envs, 1)
	assert.Equal(t, model.EventCampaignCreated, envs[0].Name)
	assert.Equal(t, uint64(1), envs[0].Seq)
	assert.Equal(t, uint64(1), envs[0].TxSeq)
	assert.Equal(t, TopicEvents, pub.topics[0])

	rec, ok := e.Journal().Latest()
	require.True(t, ok)
	assert.Equal(t, envs[0].TxID, rec.TxID)
	assert.Equal(t, caller.Hex(), rec.Caller)
	assert.NoError(t, e.Journal().Verify())
}

func TestRestoredExecutorContinuesEventSeq(t *testing.T) {
	first := startExecutor(t, Options{})
	for _, title := range []string{"one", "two"} {
		_, err := Do(context.Background(), first, "CreateCampaign", caller, createCampaign(title))
		require.NoError(t, err)
	}

	restored, err := NewJournal(first.Journal().Records(0, 0))
	require.NoError(t, err)
	pub := &recordingPublisher{}
	second := startExecutorFrom(t, first.Snapshot(), restored, Options{Publisher: pub})

	_, err = Do(context.Background(), second, "CreateCampaign", caller, createCampaign("three"))
	require.NoError(t, err)

	envs := pub.envelopes()
	require.Len(t, envs, 1)
	assert.Equal(t, uint64(3), envs[0].Seq)
	assert.Equal(t, uint64(3), envs[0].TxSeq)
}

func TestAbortDiscardsChangesAndEvents(t *testing.T) {
	pub := &recordingPublisher{}
	e := startExecutor(t, Options{Publisher: pub})

	_, err := e.Submit(context.Background(), "CreateCampaign", caller, func(ctx context.Context, uow *repository.UnitOfWork) (any, error) {
		if _, err := createCampaign("doomed")(ctx, uow); err != nil {
			return nil, err
		}
		return nil, appErrors.NewValidation("nope")
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, 0, e.Snapshot().Len())
	assert.Equal(t, uint64(0), e.Snapshot().Seq())
	assert.Empty(t, pub.envelopes())
	assert.Equal(t, 0, e.Journal().Len())
}

func TestPanicBecomesInternalError(t *testing.T) {
	e := startExecutor(t, Options{})
	_, err := e.Submit(context.Background(), "Boom", caller, func(context.Context, *repository.UnitOfWork) (any, error) {
		panic("unexpected")
	})
	assert.ErrorIs(t, err, appErrors.ErrInternal)

	// the loop survives
	_, err = Do(context.Background(), e, "CreateCampaign", caller, createCampaign("after"))
	assert.NoError(t, err)
}

func TestPersistFailureAborts(t *testing.T) {
	p := &failingPersister{}
	pub := &recordingPublisher{}
	e := startExecutor(t, Options{Persister: p, Publisher: pub})

	_, err := Do(context.Background(), e, "CreateCampaign", caller, createCampaign("x"))
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 0, e.Snapshot().Len())
	assert.Empty(t, pub.envelopes())
}

// blockLoop submits a transaction that holds the executor until release is
// closed.
func blockLoop(t *testing.T, e *Executor) (started <-chan struct{}, release chan struct{}, finished <-chan error) {
	t.Helper()
	s := make(chan struct{})
	release = make(chan struct{})
	f := make(chan error, 1)
	go func() {
		_, err := e.Submit(context.Background(), "Hold", caller, func(context.Context, *repository.UnitOfWork) (any, error) {
			close(s)
			<-release
			return nil, nil
		})
		f <- err
	}()
	<-s
	return s, release, f
}

func TestCancelWhileQueuedWithdrawsTransaction(t *testing.T) {
	e := startExecutor(t, Options{})
	_, release, finished := blockLoop(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{}, 1)
	errCh := make(chan error, 1)
	go func() {
		_, err := e.Submit(ctx, "Queued", caller, func(context.Context, *repository.UnitOfWork) (any, error) {
			ran <- struct{}{}
			return nil, nil
		})
		errCh <- err
	}()
	// give the submission time to be admitted behind the blocker
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.NoError(t, <-finished)

	// a later transaction proves the cancelled one was skipped, not run
	_, err := Do(context.Background(), e, "CreateCampaign", caller, createCampaign("later"))
	require.NoError(t, err)
	select {
	case <-ran:
		t.Fatal("cancelled transaction ran")
	default:
	}
}

func TestStartedTransactionIgnoresCancellation(t *testing.T) {
	e := startExecutor(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	inside := make(chan struct{})
	proceed := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		_, err := Do(ctx, e, "CreateCampaign", caller, func(ctx context.Context, uow *repository.UnitOfWork) (int, error) {
			close(inside)
			<-proceed
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return createCampaign("kept")(ctx, uow)
		})
		errCh <- err
	}()
	<-inside
	cancel()
	close(proceed)
	require.NoError(t, <-errCh)
	assert.Equal(t, 1, e.Snapshot().Len())
}

func TestQueueFull(t *testing.T) {
	e := startExecutor(t, Options{QueueSize: 1, EnqueueTimeout: 20 * time.Millisecond})
	_, release, finished := blockLoop(t, e)

	_, err := e.Submit(context.Background(), "Overflow", caller, func(context.Context, *repository.UnitOfWork) (any, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	require.NoError(t, <-finished)
}

func TestConcurrentSubmissionsAreSerialized(t *testing.T) {
	e := startExecutor(t, Options{QueueSize: 8})
	const n = 50
	var wg sync.WaitGroup
	ids := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := Do(context.Background(), e, "CreateCampaign", caller, createCampaign("c"))
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, uint64(n), e.Snapshot().Seq())
	assert.Equal(t, n, e.Journal().Len())
	assert.NoError(t, e.Journal().Verify())
}

func TestSubmitAfterStop(t *testing.T) {
	e, err := NewExecutor(repository.EmptySnapshot(), nil, Options{Log: zerolog.Nop()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Run(ctx))

	_, err = e.Submit(context.Background(), "Late", caller, func(context.Context, *repository.UnitOfWork) (any, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrClosed)
}
