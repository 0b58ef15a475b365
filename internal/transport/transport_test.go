package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/appconnect/internal/models"
)

func recvState(t *testing.T, ch <-chan models.ConnectionState) models.ConnectionState {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state")
		return ""
	}
}

func TestStateHub_EmitsCurrentStateOnSubscribe(t *testing.T) {
	h := newStateHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Equal(t, models.StateDisconnected, recvState(t, h.subscribe(ctx)))

	h.set(models.StateConnected)
	assert.Equal(t, models.StateConnected, recvState(t, h.subscribe(ctx)))
}

func TestStateHub_PublishesTransitions(t *testing.T) {
	h := newStateHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := h.subscribe(ctx)
	require.Equal(t, models.StateDisconnected, recvState(t, ch))

	h.set(models.StateConnecting)
	assert.Equal(t, models.StateConnecting, recvState(t, ch))

	h.set(models.StateConnected)
	assert.Equal(t, models.StateConnected, recvState(t, ch))
}

func TestStateHub_SlowReaderSeesLatestState(t *testing.T) {
	h := newStateHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := h.subscribe(ctx)
	// The initial value sits unread; later transitions replace it instead of
	// blocking the writer.
	h.set(models.StateConnecting)
	h.set(models.StateConnected)

	assert.Equal(t, models.StateConnected, recvState(t, ch))
}

func TestStateHub_DuplicateSetNotRepublished(t *testing.T) {
	h := newStateHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := h.subscribe(ctx)
	require.Equal(t, models.StateDisconnected, recvState(t, ch))

	h.set(models.StateDisconnected)
	select {
	case s := <-ch:
		t.Fatalf("unexpected state %q", s)
	case <-time.After(50 * time.Millisecond):
	}
}
