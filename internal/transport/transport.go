// Package transport implements the two channels to the paired peer: the
// primary websocket connection over pinned TLS, and the fallback serial
// byte-stream. Both run the session-key handshake and speak the envelope
// wire format.
package transport

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/appconnect/internal/models"
)

// Listener receives raw inbound frames the transport does not consume
// itself: encrypted envelopes and control frames of unknown type.
type Listener func(raw []byte)

// Transport is the sync engine's view of a channel to the peer.
type Transport interface {
	// Connect establishes the channel to d. It is idempotent while a
	// connection attempt or session is in flight.
	Connect(ctx context.Context, d models.Device) error

	// Send writes one wire frame. It refuses with common.ErrNotConnected
	// unless the session is established.
	Send(ctx context.Context, frame string) error

	// Disconnect tears the channel down deliberately: no reconnection is
	// attempted and the session key is dropped.
	Disconnect(ctx context.Context) error

	// SessionKey returns a copy of the current session key, or nil when no
	// session is established.
	SessionKey() []byte

	// State returns the current connection state.
	State() models.ConnectionState

	// States emits the current state on subscription and every transition
	// afterwards, until ctx is done. Slow readers observe the latest state.
	States(ctx context.Context) <-chan models.ConnectionState

	// SetListener installs the inbound frame callback.
	SetListener(l Listener)
}

// stateHub publishes connection-state transitions to any number of
// subscribers. Sends never block: a slow reader's stale value is replaced
// by the newest one.
type stateHub struct {
	mu      sync.Mutex
	state   models.ConnectionState
	nextSub int
	subs    map[int]chan models.ConnectionState
}

func newStateHub() *stateHub {
	return &stateHub{
		state: models.StateDisconnected,
		subs:  make(map[int]chan models.ConnectionState),
	}
}

func (h *stateHub) get() models.ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *stateHub) set(s models.ConnectionState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == s {
		return
	}
	h.state = s
	for _, ch := range h.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

func (h *stateHub) subscribe(ctx context.Context) <-chan models.ConnectionState {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	ch := make(chan models.ConnectionState, 1)
	ch <- h.state
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}()
	return ch
}
