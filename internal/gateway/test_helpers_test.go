package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/chatterbox-im/chatterbox-server/internal/proto"
	"github.com/chatterbox-im/chatterbox-server/internal/store"
)

// fakeStore is an in-memory Store for gateway tests.
type fakeStore struct {
	mu         sync.Mutex
	users      map[int64]*store.User
	friends    map[int64][]*store.Friend
	recipients map[int64][]*store.PublicUser
	messages   []*store.Message
	unread     map[[2]int64]int
	friendNotf []store.FriendNotification
	statusErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      make(map[int64]*store.User),
		friends:    make(map[int64][]*store.Friend),
		recipients: make(map[int64][]*store.PublicUser),
		unread:     make(map[[2]int64]int),
	}
}

func (f *fakeStore) addUser(id int64, username string, status store.UserStatus) *store.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &store.User{ID: id, Username: username, Status: status}
	f.users[id] = u
	return u
}

func (f *fakeStore) befriend(a, b int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.friends[a] = append(f.friends[a], &store.Friend{UserID: a, FriendID: b})
	f.friends[b] = append(f.friends[b], &store.Friend{UserID: b, FriendID: a})
}

func (f *fakeStore) GetUserByID(_ context.Context, id int64) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) SetStatus(_ context.Context, id int64, status store.UserStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return f.statusErr
	}
	if u, ok := f.users[id]; ok {
		u.Status = status
	}
	return nil
}

func (f *fakeStore) FriendsOf(_ context.Context, userID int64) ([]*store.Friend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.friends[userID], nil
}

func (f *fakeStore) ChannelRecipients(_ context.Context, channelID int64) ([]*store.PublicUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recipients[channelID], nil
}

func (f *fakeStore) CreateMessage(_ context.Context, authorID, channelID int64, content string) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := &store.Message{ID: int64(len(f.messages) + 1), ChannelID: channelID, AuthorID: authorID, Content: content}
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeStore) IncrementUnread(_ context.Context, userID, channelID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unread[[2]int64{userID, channelID}]++
	return nil
}

func (f *fakeStore) AddFriendNotification(_ context.Context, userID, fromID int64, kind store.FriendNotificationKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.friendNotf = append(f.friendNotf, store.FriendNotification{UserID: userID, FromID: fromID, Kind: kind})
	return nil
}

func (f *fakeStore) unreadCount(userID, channelID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread[[2]int64{userID, channelID}]
}

func (f *fakeStore) durableStatus(id int64) store.UserStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].Status
}

// fakeCreds resolves tokens through a fixed table.
type fakeCreds struct {
	tokens map[string]int64
}

func (f *fakeCreds) ResolveToken(token string) (int64, error) {
	id, ok := f.tokens[token]
	if !ok {
		return 0, errors.New("unknown token")
	}
	return id, nil
}

// testGateway builds a gateway over a fake store with the given token
// table.
func testGateway(t *testing.T, st *fakeStore, tokens map[string]int64) *Gateway {
	t.Helper()
	logger := zerolog.Nop()
	return New(&fakeCreds{tokens: tokens}, st, &logger)
}

// closeRecorder captures the close code a peer was shut down with.
type closeRecorder struct {
	mu     sync.Mutex
	code   int
	reason string
	closed bool
}

func (c *closeRecorder) closeFn(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code = code
	c.reason = reason
	c.closed = true
}

func (c *closeRecorder) snapshot() (bool, int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.code, c.reason
}

// mustReceive pops the next queued event from a peer and fails if the
// queue is empty or the type does not match.
func mustReceive(t *testing.T, p *Peer, eventType string) proto.Outbound {
	t.Helper()
	select {
	case ev := <-p.Events:
		if ev.Type != eventType {
			t.Fatalf("expected %s event, got %+v", eventType, ev)
		}
		return ev
	default:
		t.Fatalf("expected %s event, queue is empty", eventType)
	}
	return proto.Outbound{}
}

// mustBeEmpty fails if the peer has a queued event.
func mustBeEmpty(t *testing.T, p *Peer) {
	t.Helper()
	select {
	case ev := <-p.Events:
		t.Fatalf("expected no events, got %+v", ev)
	default:
	}
}
