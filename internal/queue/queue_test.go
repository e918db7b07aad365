package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/fundraise-backend/internal/model"
)

func TestInMemoryQueueDeliversInOrder(t *testing.T) {
	q := NewInMemoryQueue(zerolog.Nop(), 100)
	var mu sync.Mutex
	var got []int
	require.NoError(t, q.Subscribe("t", func(p any) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, p.(int))
		return nil
	}))
	for i := 0; i < 50; i++ {
		require.NoError(t, q.Publish("t", i))
	}
	q.Close()

	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestInMemoryQueueDoesNotRetry(t *testing.T) {
	q := NewInMemoryQueue(zerolog.Nop(), 10)
	calls := 0
	require.NoError(t, q.Subscribe("t", func(any) error {
		calls++
		return errors.New("boom")
	}))
	require.NoError(t, q.Publish("t", 1))
	q.Close()
	assert.Equal(t, 1, calls)
}

func TestInMemoryQueueDropsWhenBacklogFull(t *testing.T) {
	q := NewInMemoryQueue(zerolog.Nop(), 1)
	block := make(chan struct{})
	entered := make(chan struct{}, 1)
	delivered := 0
	require.NoError(t, q.Subscribe("t", func(any) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-block
		delivered++
		return nil
	}))
	require.NoError(t, q.Publish("t", 1))
	<-entered // handler holds payload 1, backlog is empty
	require.NoError(t, q.Publish("t", 2))
	require.NoError(t, q.Publish("t", 3)) // dropped
	close(block)
	q.Close()
	assert.Equal(t, 2, delivered)
}

func TestInMemoryQueueRecoversHandlerPanic(t *testing.T) {
	q := NewInMemoryQueue(zerolog.Nop(), 10)
	var seen []int
	require.NoError(t, q.Subscribe("t", func(p any) error {
		if p.(int) == 1 {
			panic("bad payload")
		}
		seen = append(seen, p.(int))
		return nil
	}))
	require.NoError(t, q.Publish("t", 1))
	require.NoError(t, q.Publish("t", 2))
	q.Close()
	assert.Equal(t, []int{2}, seen)
}

func TestPublishAfterClose(t *testing.T) {
	q := NewInMemoryQueue(zerolog.Nop(), 1)
	q.Close()
	assert.ErrorIs(t, q.Publish("t", 1), ErrClosed)
	assert.ErrorIs(t, q.Subscribe("t", func(any) error { return nil }), ErrClosed)
}

type fakeChannel struct {
	mu        sync.Mutex
	exchanges []string
	keys      []string
	msgs      []amqp.Publishing
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.exchanges = append(f.exchanges, name+":"+kind)
	return nil
}

func (f *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestForwardToAMQPRoutesByEventName(t *testing.T) {
	ch := &fakeChannel{}
	pub, err := NewAMQPPublisher(ch, "ledger")
	require.NoError(t, err)
	assert.Equal(t, []string{"ledger:topic"}, ch.exchanges)

	q := NewInMemoryQueue(zerolog.Nop(), 10)
	require.NoError(t, Forward(q, "ledger.events", pub))

	owner := common.HexToAddress("0x0000000000000000000000000000000000000001")
	env := model.EventEnvelope{
		Seq:         1,
		TxSeq:       1,
		TxID:        "tx-1",
		Name:        model.EventWithdrawal,
		CommittedAt: time.Unix(1_800_000_000, 0).UTC(),
		Payload:     model.Withdrawal{CampaignID: 2, Owner: owner, Amount: model.Ether(3)},
	}
	require.NoError(t, q.Publish("ledger.events", env))
	q.Close()

	require.Len(t, ch.msgs, 1)
	assert.Equal(t, model.EventWithdrawal, ch.keys[0])
	assert.Equal(t, "tx-1/1", ch.msgs[0].MessageId)
	assert.Equal(t, amqp.Persistent, ch.msgs[0].DeliveryMode)

	decoded, err := DecodeEnvelope(ch.msgs[0].Body)
	require.NoError(t, err)
	w, ok := decoded.Payload.(model.Withdrawal)
	require.True(t, ok)
	assert.Equal(t, owner, w.Owner)
	assert.Equal(t, "3", model.FormatEther(w.Amount))
}
