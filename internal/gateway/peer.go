package gateway

import (
	"github.com/google/uuid"

	"github.com/chatterbox-im/chatterbox-server/internal/proto"
)

// Peer is a server-side handle for one live socket. It exists from
// accept to close and is identified by reference; the ID is only for
// logs. Outbound messages are queued on Events and drained by the
// transport's write loop, the single writer for the socket.
type Peer struct {
	ID     string
	Events chan proto.Outbound

	close func(code int, reason string)
}

// NewPeer constructs a peer. closeFn closes the underlying transport
// with a close code and reason; it may be nil in tests.
func NewPeer(closeFn func(code int, reason string)) *Peer {
	return &Peer{
		ID:     uuid.NewString(),
		Events: make(chan proto.Outbound, 16),
		close:  closeFn,
	}
}

// TrySend queues a message for the peer without blocking. Returns false
// if the peer's buffer is full.
func (p *Peer) TrySend(msg proto.Outbound) bool {
	select {
	case p.Events <- msg:
		return true
	default:
		// Drop if slow consumer.
		return false
	}
}

// Close closes the peer's transport with the given close code.
func (p *Peer) Close(code int, reason string) {
	if p.close != nil {
		p.close(code, reason)
	}
}
