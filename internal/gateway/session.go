package gateway

import "github.com/chatterbox-im/chatterbox-server/internal/proto"

// SessionState is the lifecycle state of one connection.
type SessionState int

const (
	// StateAwaitingAuth accepts exactly one CONNECT message.
	StateAwaitingAuth SessionState = iota
	// StateAuthenticated accepts application messages (SEND, PING).
	StateAuthenticated
	// StateRejected is terminal: the handshake failed. The client must
	// reopen a new connection; there is no server-side retry.
	StateRejected
	// StateClosed is terminal: the connection is done.
	StateClosed
)

// EffectKind tags the I/O effects a session transition requests.
type EffectKind int

const (
	// EffectResolveToken asks the driver to resolve the credential and
	// feed the outcome back through OnAuthResult.
	EffectResolveToken EffectKind = iota
	// EffectCancelDeadline stops the handshake timer.
	EffectCancelDeadline
	// EffectSend queues Out on the peer.
	EffectSend
	// EffectDeliver runs the message send path for ChannelID/Body.
	EffectDeliver
	// EffectClose closes the transport with Code and Reason.
	EffectClose
)

// Effect is one requested side effect. Transitions perform no I/O
// themselves; the driver applies the returned effects in order.
type Effect struct {
	Kind      EffectKind
	Out       *proto.Outbound
	Token     string
	ChannelID int64
	Body      string
	Code      int
	Reason    string
}

// Session is the handshake state machine for one connection. Inputs
// arrive through the On* methods; each mutates the state and returns
// the effects the driver must apply, in order.
type Session struct {
	state SessionState
}

// NewSession starts in StateAwaitingAuth; the driver is expected to
// have armed the handshake deadline timer already.
func NewSession() *Session {
	return &Session{state: StateAwaitingAuth}
}

// State returns the current state.
func (s *Session) State() SessionState {
	return s.state
}

// OnMessage advances the session with one inbound message.
func (s *Session) OnMessage(in proto.Inbound) []Effect {
	switch s.state {
	case StateAwaitingAuth:
		if in.Type == proto.InboundTypeConnect {
			return []Effect{{Kind: EffectResolveToken, Token: in.Token}}
		}
		// Anything but CONNECT before auth is fatal.
		s.state = StateRejected
		return []Effect{{
			Kind:   EffectClose,
			Code:   proto.CloseProtocolError,
			Reason: "invalid message type; must first send CONNECT message",
		}}
	case StateAuthenticated:
		switch in.Type {
		case proto.InboundTypeSend:
			return []Effect{{Kind: EffectDeliver, ChannelID: in.ChannelID, Body: in.Message}}
		case proto.InboundTypePing:
			return []Effect{{Kind: EffectSend, Out: &proto.Outbound{Type: proto.OutboundTypePong}}}
		default:
			// Unknown discriminant is fatal for the connection, not a
			// retryable condition.
			s.state = StateClosed
			return []Effect{{
				Kind:   EffectClose,
				Code:   proto.CloseProtocolError,
				Reason: "invalid message type",
			}}
		}
	default:
		return nil
	}
}

// OnAuthResult reports the outcome of credential resolution.
func (s *Session) OnAuthResult(ok bool) []Effect {
	if s.state != StateAwaitingAuth {
		return nil
	}
	if !ok {
		s.state = StateRejected
		return []Effect{{
			Kind:   EffectClose,
			Code:   proto.CloseProtocolError,
			Reason: "invalid token",
		}}
	}
	s.state = StateAuthenticated
	return []Effect{
		{Kind: EffectCancelDeadline},
		{Kind: EffectSend, Out: &proto.Outbound{Type: proto.OutboundTypeConnectSuccess}},
	}
}

// OnDeadline fires when the handshake timer expires.
func (s *Session) OnDeadline() []Effect {
	if s.state != StateAwaitingAuth {
		return nil
	}
	s.state = StateRejected
	return []Effect{{
		Kind:   EffectClose,
		Code:   proto.CloseProtocolError,
		Reason: "timed out",
	}}
}

// OnTransportClose marks the session closed after the socket is gone.
func (s *Session) OnTransportClose() {
	if s.state != StateRejected {
		s.state = StateClosed
	}
}
