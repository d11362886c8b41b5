package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/chatterbox-im/chatterbox-server/internal/gateway"
	"github.com/chatterbox-im/chatterbox-server/internal/proto"
)

// errConnKilled signals that the connection was closed deliberately by
// a session effect; the read loop should stop without further closing.
var errConnKilled = errors.New("connection killed")

// WSHandler upgrades HTTP connections and drives the session state
// machine against the gateway.
type WSHandler struct {
	gw      *gateway.Gateway
	timeout time.Duration
	log     *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. timeout is the handshake
// deadline: a connection that has not authenticated within it is closed.
func NewWSHandler(gw *gateway.Gateway, timeout time.Duration, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{gw: gw, timeout: timeout, log: logger}
}

// wsSession is the per-connection driver state. mu serializes session
// transitions between the read loop and the deadline timer.
type wsSession struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	peer     *gateway.Peer
	sess     *gateway.Session
	deadline *time.Timer
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &wsSession{
		conn: conn,
		peer: gateway.NewPeer(func(code int, reason string) {
			conn.Close(websocket.StatusCode(code), reason)
		}),
		sess: gateway.NewSession(),
	}
	h.gw.HandleOpen(c.peer)

	// The deadline timer is the only scheduled work for a connection.
	// It is cancelled exactly once, on successful auth; Stop is safe to
	// call again from the deferred cleanup.
	c.deadline = time.AfterFunc(h.timeout, func() {
		c.mu.Lock()
		effects := c.sess.OnDeadline()
		c.apply(ctx, h, effects)
		c.mu.Unlock()
	})
	defer c.deadline.Stop()

	// Presence and unbind must run even when the request context is
	// already gone.
	defer func() {
		c.mu.Lock()
		c.sess.OnTransportClose()
		c.mu.Unlock()
		h.gw.HandleClose(context.Background(), c.peer)
	}()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, c)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, c)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errConnKilled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			h.log.Debug().Err(err).Str("peer_id", c.peer.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(websocket.StatusNormalClosure, "closing")
}

func (h *WSHandler) readLoop(ctx context.Context, c *wsSession) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}

		var in proto.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			h.gw.HandleKill(c.peer, "malformed json")
			c.conn.Close(proto.CloseProtocolError, "messages must be valid json")
			return errConnKilled
		}

		c.mu.Lock()
		effects := c.sess.OnMessage(in)
		killed := c.apply(ctx, h, effects)
		c.mu.Unlock()
		if killed {
			return errConnKilled
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, c *wsSession) error {
	for {
		select {
		case event := <-c.peer.Events:
			if err := wsjson.Write(ctx, c.conn, event); err != nil {
				// A write failure is equivalent to a disconnect; the
				// surrounding close path handles unbind and presence.
				h.log.Debug().Err(err).Str("peer_id", c.peer.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// apply performs the session's requested effects in order. Reports true
// when the connection was closed. Caller holds c.mu.
func (c *wsSession) apply(ctx context.Context, h *WSHandler, effects []gateway.Effect) bool {
	for i := 0; i < len(effects); i++ {
		ef := effects[i]
		switch ef.Kind {
		case gateway.EffectResolveToken:
			_, err := h.gw.Authenticate(ctx, c.peer, ef.Token)
			if err != nil && !errors.Is(err, gateway.ErrInvalidToken) {
				h.log.Warn().Err(err).Str("peer_id", c.peer.ID).Msg("credential resolution failed")
			}
			effects = append(effects, c.sess.OnAuthResult(err == nil)...)
		case gateway.EffectCancelDeadline:
			c.deadline.Stop()
		case gateway.EffectSend:
			c.peer.TrySend(*ef.Out)
		case gateway.EffectDeliver:
			h.gw.HandleRecv(c.peer, proto.InboundTypeSend)
			if err := h.gw.HandleSend(ctx, c.peer, ef.ChannelID, ef.Body); err != nil {
				if errors.Is(err, gateway.ErrUnboundPeer) {
					c.conn.Close(proto.CloseInternalError, "socket not mapped to user")
					return true
				}
				// Collaborator failure: the operation is dropped, the
				// connection survives.
				h.log.Warn().Err(err).Str("peer_id", c.peer.ID).Msg("send path failed")
			}
		case gateway.EffectClose:
			h.gw.HandleKill(c.peer, ef.Reason)
			c.conn.Close(websocket.StatusCode(ef.Code), ef.Reason)
			return true
		}
	}
	return false
}
