package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct{ events []Event }

func (r *recorder) Notify(_ context.Context, e Event) { r.events = append(r.events, e) }

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	ch, unsubscribe := b.Subscribe(1)

	b.Notify(context.Background(), Event{Kind: KindEscalated, ActionID: "a1"})
	b.Notify(context.Background(), Event{Kind: KindEscalated, ActionID: "a2"}) // dropped, buffer full

	e := <-ch
	assert.Equal(t, "a1", e.ActionID)

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
	b.Notify(context.Background(), Event{Kind: KindSealed})
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, nil, b, Nop{}, NewLog(logging.Discard())}.Notify(context.Background(), Event{Kind: KindConflictDetected})
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

type fakePublisher struct {
	exchange, key string
	msg           amqp.Publishing
	err           error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func TestAMQP_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	n := NewAMQP(pub, "fieldseal.events", "dev-1", logging.Discard())
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	n.Notify(context.Background(), Event{Kind: KindEscalated, At: at, ActionID: "a1", Counts: Counts{Failed: 1}})

	assert.Equal(t, "fieldseal.events", pub.exchange)
	assert.Equal(t, "fieldseal.escalated", pub.key)
	assert.Equal(t, "dev-1", pub.msg.AppId)
	assert.Equal(t, amqp.Persistent, pub.msg.DeliveryMode)

	var got Event
	require.NoError(t, json.Unmarshal(pub.msg.Body, &got))
	assert.Equal(t, "a1", got.ActionID)
	assert.Equal(t, 1, got.Counts.Failed)
}

func TestAMQP_PublishErrorIsSwallowed(t *testing.T) {
	n := NewAMQP(&fakePublisher{err: errors.New("channel closed")}, "x", "d", logging.Discard())
	assert.NotPanics(t, func() { n.Notify(context.Background(), Event{Kind: KindSealed}) })
}
