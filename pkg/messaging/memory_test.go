package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerPublishSubscribe(t *testing.T) {
	b := NewMemoryBroker(4)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "notifications.push")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "notifications.push", map[string]int{"user_id": 7}))
	require.NoError(t, b.Publish(ctx, "other", "ignored"))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"user_id":7}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	assert.Empty(t, ch)
}

func TestMemoryBrokerUnsubscribesOnCancel(t *testing.T) {
	b := NewMemoryBroker(1)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := b.Subscribe(ctx, "c")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Publish(context.Background(), "c", 1), ErrBrokerClosed)
}

func TestAdapterReportsHandlerErrors(t *testing.T) {
	b := NewMemoryBroker(4)
	defer b.Close()

	errs := make(chan error, 1)
	a := NewBrokerAdapter(b, func(topic string, err error) { errs <- err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	boom := errors.New("boom")
	require.NoError(t, a.Subscribe(ctx, "t", func([]byte) error { return boom }))
	require.NoError(t, a.Publish(ctx, "t", []byte(`{"a":1}`)))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("handler error not reported")
	}
}
