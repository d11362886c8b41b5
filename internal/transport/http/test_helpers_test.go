package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/chatterbox-im/chatterbox-server/internal/auth"
	"github.com/chatterbox-im/chatterbox-server/internal/config"
	"github.com/chatterbox-im/chatterbox-server/internal/gateway"
	"github.com/chatterbox-im/chatterbox-server/internal/proto"
	"github.com/chatterbox-im/chatterbox-server/internal/service/friends"
	"github.com/chatterbox-im/chatterbox-server/internal/store/sqlite"
)

// startTestServer wires the full stack over an in-memory database.
func startTestServer(t *testing.T, handshakeTimeout time.Duration) *httptest.Server {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.HandshakeTimeout = handshakeTimeout

	logger := zerolog.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})
	gw := gateway.New(authService, st, &logger)
	friendsService := friends.New(st, gw, &logger)

	server := NewServer(gw, authService, friendsService, st, cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// signupUser registers a user over REST and returns the session token.
func signupUser(t *testing.T, ts *httptest.Server, username string) string {
	t.Helper()

	body, _ := json.Marshal(SignupRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
	})
	resp, err := ts.Client().Post(ts.URL+"/api/signup", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("signup request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 201 {
		t.Fatalf("unexpected signup status: %d", resp.StatusCode)
	}

	var reply AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode signup response: %v", err)
	}
	return reply.Token
}

// dialWS opens a raw websocket against the test server.
func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// connectWS completes the handshake and consumes CONNECT_SUCCESS.
func connectWS(t *testing.T, ctx context.Context, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	conn := dialWS(t, ctx, ts)
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeConnect, Token: token}); err != nil {
		t.Fatalf("write CONNECT: %v", err)
	}

	var out proto.Outbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read handshake reply: %v", err)
	}
	if out.Type != proto.OutboundTypeConnectSuccess {
		t.Fatalf("expected CONNECT_SUCCESS, got %+v", out)
	}
	return conn
}

// readEvent reads the next outbound event of the given type, skipping
// unrelated presence traffic.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, eventType string) proto.Outbound {
	t.Helper()

	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("read event: %v", err)
		}
		if out.Type == eventType {
			return out
		}
	}
}

// expectClose reads until the server closes the socket and returns the
// close code.
func expectClose(t *testing.T, ctx context.Context, conn *websocket.Conn) websocket.StatusCode {
	t.Helper()

	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			status := websocket.CloseStatus(err)
			if status == -1 {
				t.Fatalf("connection failed without a close frame: %v", err)
			}
			return status
		}
	}
}
