package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	appErrors "github.com/unclebandit/fundraise-backend/internal/errors"
	"github.com/unclebandit/fundraise-backend/internal/metric"
	"github.com/unclebandit/fundraise-backend/internal/model"
	"github.com/unclebandit/fundraise-backend/internal/repository"
)

// TopicEvents is the bus topic every committed event is published on.
const TopicEvents = "ledger.events"

var (
	// ErrQueueFull is returned when a transaction could not be admitted
	// within the enqueue timeout.
	ErrQueueFull = errors.New("ledger: transaction queue full")
	// ErrClosed is returned once the executor has stopped.
	ErrClosed = errors.New("ledger: executor closed")
)

// TxFunc is the body of a transaction. It must only touch ledger state
// through uow. Returning an error discards every change and event.
type TxFunc func(ctx context.Context, uow *repository.UnitOfWork) (any, error)

// Persister writes a committed transaction to durable storage. A failing
// Persist aborts the transaction.
type Persister interface {
	Persist(ctx context.Context, cs repository.Changeset, rec model.JournalRecord) error
}

// Publisher receives committed events.
type Publisher interface {
	Publish(topic string, payload any) error
}

// Options configures an Executor.
type Options struct {
	// QueueSize bounds the number of admitted, unfinished transactions.
	QueueSize int
	// EnqueueTimeout bounds the wait for admission. Zero waits as long as
	// the caller's context allows.
	EnqueueTimeout time.Duration
	Persister      Persister
	Publisher      Publisher
	Log            zerolog.Logger
	Now            func() time.Time
}

const (
	jobQueued int32 = iota
	jobStarted
	jobCancelled
)

type result struct {
	value any
	err   error
}

type job struct {
	ctx     context.Context
	command string
	caller  common.Address
	fn      TxFunc
	state   atomic.Int32
	done    chan result
}

// Executor runs ledger transactions one at a time in admission order. Reads
// go to the last committed snapshot and never block on writers.
type Executor struct {
	opts    Options
	log     zerolog.Logger
	tracer  trace.Tracer
	sem     *semaphore.Weighted
	jobs    chan *job
	state   atomic.Pointer[repository.Snapshot]
	journal *Journal

	// only touched by the run loop
	eventSeq uint64

	stopped  chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
}

// NewExecutor creates an executor starting from base. journal must end at
// base.Seq().
func NewExecutor(base *repository.Snapshot, journal *Journal, opts Options) (*Executor, error) {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if journal == nil {
		journal = &Journal{}
	}
	if head, ok := journal.Latest(); ok && head.Seq != base.Seq() {
		return nil, fmt.Errorf("journal head %d does not match snapshot %d", head.Seq, base.Seq())
	}
	// envelope numbering continues across restarts
	emitted, err := journal.EventCount()
	if err != nil {
		return nil, err
	}
	e := &Executor{
		opts:    opts,
		log:     opts.Log.With().Str("component", "executor").Logger(),
		tracer:  otel.Tracer("github.com/unclebandit/fundraise-backend/internal/ledger"),
		sem:     semaphore.NewWeighted(int64(opts.QueueSize)),
		jobs:    make(chan *job, opts.QueueSize),
		journal: journal,
		stopped: make(chan struct{}),

		eventSeq: emitted,
	}
	e.state.Store(base)
	metric.LastCommittedSeq.Set(float64(base.Seq()))
	return e, nil
}

// Snapshot returns the last committed state.
func (e *Executor) Snapshot() *repository.Snapshot {
	return e.state.Load()
}

// Journal returns the transaction journal.
func (e *Executor) Journal() *Journal {
	return e.journal
}

// Run executes admitted transactions until ctx is done. Transactions still
// queued at that point fail with ErrClosed.
func (e *Executor) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("executor already running")
	}
	defer e.stop()

	e.log.Info().Uint64("seq", e.Snapshot().Seq()).Int("queue_size", e.opts.QueueSize).Msg("executor started")
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("executor stopping")
			return nil
		case j := <-e.jobs:
			e.handle(j)
		}
	}
}

func (e *Executor) stop() {
	e.stopOnce.Do(func() {
		close(e.stopped)
		for {
			select {
			case j := <-e.jobs:
				if j.state.CompareAndSwap(jobQueued, jobCancelled) {
					j.done <- result{err: ErrClosed}
				}
				e.release()
			default:
				return
			}
		}
	})
}

// Submit admits fn and waits for its outcome. While the transaction is
// queued, cancelling ctx withdraws it and Submit returns ctx.Err(). Once it
// has started it runs to completion and Submit returns its real result.
func (e *Executor) Submit(ctx context.Context, command string, caller common.Address, fn TxFunc) (any, error) {
	select {
	case <-e.stopped:
		return nil, ErrClosed
	default:
	}

	admitCtx := ctx
	if e.opts.EnqueueTimeout > 0 {
		var cancel context.CancelFunc
		admitCtx, cancel = context.WithTimeout(ctx, e.opts.EnqueueTimeout)
		defer cancel()
	}
	if err := e.sem.Acquire(admitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrQueueFull
	}
	metric.QueueDepth.Inc()

	j := &job{
		ctx:     ctx,
		command: command,
		caller:  caller,
		fn:      fn,
		done:    make(chan result, 1),
	}
	// never blocks: the channel holds QueueSize jobs and the semaphore
	// admits at most that many
	e.jobs <- j

	select {
	case r := <-j.done:
		return r.value, r.err
	case <-ctx.Done():
		if j.state.CompareAndSwap(jobQueued, jobCancelled) {
			metric.TxCancelled.Inc()
			return nil, ctx.Err()
		}
	case <-e.stopped:
		if j.state.CompareAndSwap(jobQueued, jobCancelled) {
			return nil, ErrClosed
		}
	}
	r := <-j.done
	return r.value, r.err
}

// Do is a typed wrapper around Submit.
func Do[T any](ctx context.Context, e *Executor, command string, caller common.Address, fn func(ctx context.Context, uow *repository.UnitOfWork) (T, error)) (T, error) {
	v, err := e.Submit(ctx, command, caller, func(ctx context.Context, uow *repository.UnitOfWork) (any, error) {
		return fn(ctx, uow)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

func (e *Executor) release() {
	e.sem.Release(1)
	metric.QueueDepth.Dec()
}

func (e *Executor) handle(j *job) {
	defer e.release()
	if !j.state.CompareAndSwap(jobQueued, jobStarted) {
		e.log.Debug().Str("command", j.command).Msg("skipping cancelled transaction")
		return
	}
	value, err := e.execute(j)
	j.done <- result{value: value, err: err}
}

func (e *Executor) execute(j *job) (any, error) {
	start := time.Now()
	defer metric.MeasureDuration(metric.TxDuration, start, j.command)

	// a started transaction is not interrupted by its caller
	ctx, span := e.tracer.Start(context.WithoutCancel(j.ctx), "ledger."+j.command,
		trace.WithAttributes(
			attribute.String("ledger.command", j.command),
			attribute.String("ledger.caller", j.caller.Hex()),
		))
	defer span.End()

	base := e.state.Load()
	uow := repository.Begin(base)
	value, err := e.invoke(ctx, j, uow)
	if err != nil {
		return nil, e.abort(span, j, err)
	}

	now := e.opts.Now()
	txID := uuid.NewString()
	events := uow.Events()
	rec, err := e.journal.Next(txID, j.command, j.caller.Hex(), now, events)
	if err != nil {
		return nil, e.abort(span, j, appErrors.NewInternal("build journal record", err))
	}
	if rec.Seq != base.Seq()+1 {
		return nil, e.abort(span, j, appErrors.NewInternal(fmt.Sprintf("journal seq %d does not follow snapshot %d", rec.Seq, base.Seq()), nil))
	}
	if e.opts.Persister != nil {
		if err := e.opts.Persister.Persist(ctx, uow.Changes(), rec); err != nil {
			return nil, e.abort(span, j, appErrors.NewInternal("persist transaction", err))
		}
	}
	snap, err := uow.Commit(rec.Seq)
	if err != nil {
		return nil, e.abort(span, j, appErrors.NewInternal("commit", err))
	}
	if err := e.journal.Append(rec); err != nil {
		// persisted already, so the in-memory chain is the one out of line
		e.log.Error().Err(err).Uint64("seq", rec.Seq).Msg("journal append failed")
	}
	e.state.Store(snap)

	metric.TxCommitted.WithLabelValues(j.command).Inc()
	metric.LastCommittedSeq.Set(float64(rec.Seq))
	metric.CommissionBalanceEther.Set(model.ToEther(snap.Escrow().CurrentBalance).InexactFloat64())
	span.SetAttributes(attribute.Int64("ledger.seq", int64(rec.Seq)), attribute.Int("ledger.events", len(events)))
	e.log.Debug().
		Str("command", j.command).
		Str("tx_id", txID).
		Uint64("seq", rec.Seq).
		Int("events", len(events)).
		Dur("took", time.Since(start)).
		Msg("transaction committed")

	e.deliver(rec, events)
	return value, nil
}

func (e *Executor) invoke(ctx context.Context, j *job, uow *repository.UnitOfWork) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("command", j.command).Msg("transaction panicked")
			value, err = nil, appErrors.NewInternal("transaction panicked", fmt.Errorf("%v", r))
		}
	}()
	return j.fn(ctx, uow)
}

func (e *Executor) abort(span trace.Span, j *job, err error) error {
	kind := appErrors.KindOf(err)
	metric.TxAborted.WithLabelValues(j.command, string(kind)).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))

	ev := e.log.Info()
	if kind == appErrors.KindInternal || kind == appErrors.KindOracle {
		ev = e.log.Warn()
	}
	ev.Err(err).Str("command", j.command).Str("caller", j.caller.Hex()).Msg("transaction aborted")
	return err
}

// deliver hands committed events to the publisher, in order, once.
func (e *Executor) deliver(rec model.JournalRecord, events []model.Event) {
	for _, ev := range events {
		e.eventSeq++
		switch ev.(type) {
		case model.DonationReceived:
			metric.Donations.Inc()
		case model.CommissionWithdrawn:
			metric.CommissionWithdrawals.Inc()
		}
		if e.opts.Publisher == nil {
			continue
		}
		env := model.EventEnvelope{
			Seq:         e.eventSeq,
			TxSeq:       rec.Seq,
			TxID:        rec.TxID,
			Name:        ev.EventName(),
			CommittedAt: rec.CommittedAt,
			Payload:     ev,
		}
		metric.EventsPublished.WithLabelValues(env.Name).Inc()
		if err := e.opts.Publisher.Publish(TopicEvents, env); err != nil {
			e.log.Warn().Err(err).Str("event", env.Name).Uint64("seq", env.Seq).Msg("event not delivered")
		}
	}
}
