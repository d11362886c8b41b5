package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/chatterbox-im/chatterbox-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *SQLiteStore, username string) *store.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), username, username+"@example.com", "hash", "avatar.png")
	if err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return u
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := createTestUser(t, s, "alice")
	if created.Status != store.StatusOffline {
		t.Fatalf("new user must start OFFLINE, got %s", created.Status)
	}

	byID, err := s.GetUserByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get by id failed: %v", err)
	}
	if byID.Username != "alice" || byID.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", byID)
	}

	byEmail, err := s.GetUserByEmail(ctx, "alice@example.com")
	if err != nil || byEmail.ID != created.ID {
		t.Fatalf("get by email failed: %v %+v", err, byEmail)
	}

	byName, err := s.GetUserByUsername(ctx, "alice")
	if err != nil || byName.ID != created.ID {
		t.Fatalf("get by username failed: %v %+v", err, byName)
	}

	if _, err := s.GetUserByID(ctx, 9999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateUserGrantsPublicChannelAccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "alice")

	channels, err := s.ListChannels(ctx, u.ID)
	if err != nil {
		t.Fatalf("list channels failed: %v", err)
	}
	if len(channels) != 1 || channels[0].Name != "general" || channels[0].Type != store.ChannelTypePublic {
		t.Fatalf("expected access to the seeded public channel, got %+v", channels)
	}

	access, err := s.HasAccess(ctx, u.ID, channels[0].ID)
	if err != nil || !access {
		t.Fatalf("expected access to public channel, got %v %v", access, err)
	}
}

func TestSetStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "alice")
	if err := s.SetStatus(ctx, u.ID, store.StatusInvisible); err != nil {
		t.Fatalf("set status failed: %v", err)
	}

	got, err := s.GetUserByID(ctx, u.ID)
	if err != nil || got.Status != store.StatusInvisible {
		t.Fatalf("expected stored INVISIBLE, got %v %+v", err, got)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, s, "alice")
	channels, _ := s.ListChannels(ctx, alice.ID)
	channelID := channels[0].ID

	first, err := s.CreateMessage(ctx, alice.ID, channelID, "first")
	if err != nil {
		t.Fatalf("create message failed: %v", err)
	}
	if _, err := s.CreateMessage(ctx, alice.ID, channelID, "second"); err != nil {
		t.Fatalf("create message failed: %v", err)
	}

	messages, err := s.ListMessages(ctx, channelID)
	if err != nil {
		t.Fatalf("list messages failed: %v", err)
	}
	if len(messages) != 2 || messages[0].ID != first.ID || messages[0].Content != "first" {
		t.Fatalf("expected insertion order, got %+v", messages)
	}
}

func TestChannelRecipients(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, s, "alice")
	bob := createTestUser(t, s, "bob")

	channels, _ := s.ListChannels(ctx, alice.ID)
	recipients, err := s.ChannelRecipients(ctx, channels[0].ID)
	if err != nil {
		t.Fatalf("channel recipients failed: %v", err)
	}
	ids := map[int64]bool{}
	for _, r := range recipients {
		ids[r.ID] = true
	}
	if !ids[alice.ID] || !ids[bob.ID] {
		t.Fatalf("expected both users in the public channel, got %+v", recipients)
	}
}

func TestFriendRequestLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, s, "alice")
	bob := createTestUser(t, s, "bob")

	if err := s.CreateFriendRequest(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("create request failed: %v", err)
	}

	req, err := s.GetFriendRequest(ctx, alice.ID, bob.ID)
	if err != nil || req.FromID != alice.ID || req.ToID != bob.ID {
		t.Fatalf("get request failed: %v %+v", err, req)
	}

	pending, err := s.ListFriendRequests(ctx, bob.ID)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending request for bob, got %v %+v", err, pending)
	}

	friend, channelID, err := s.AcceptFriendRequest(ctx, bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if friend.ID != alice.ID {
		t.Fatalf("expected alice as the new friend, got %+v", friend)
	}
	if channelID == 0 {
		t.Fatal("expected a direct channel to be created")
	}

	// The request is gone.
	if _, err := s.GetFriendRequest(ctx, alice.ID, bob.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected request to be deleted, got %v", err)
	}

	// Both directions exist and share the channel.
	aliceFriends, err := s.FriendsOf(ctx, alice.ID)
	if err != nil || len(aliceFriends) != 1 {
		t.Fatalf("expected one friend for alice, got %v %+v", err, aliceFriends)
	}
	bobFriends, err := s.FriendsOf(ctx, bob.ID)
	if err != nil || len(bobFriends) != 1 {
		t.Fatalf("expected one friend for bob, got %v %+v", err, bobFriends)
	}
	if aliceFriends[0].ChannelID != channelID || bobFriends[0].ChannelID != channelID {
		t.Fatal("both friendship rows must share the direct channel")
	}
	if aliceFriends[0].Username != "bob" || bobFriends[0].Username != "alice" {
		t.Fatalf("friend rows carry the wrong names: %+v %+v", aliceFriends[0], bobFriends[0])
	}

	// Both get access to the direct channel.
	for _, id := range []int64{alice.ID, bob.ID} {
		access, err := s.HasAccess(ctx, id, channelID)
		if err != nil || !access {
			t.Fatalf("expected user %d to access the direct channel, got %v %v", id, access, err)
		}
	}
}

func TestAcceptMissingRequest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, s, "alice")
	bob := createTestUser(t, s, "bob")

	if _, _, err := s.AcceptFriendRequest(ctx, bob.ID, alice.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteFriendRequestEitherDirection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, s, "alice")
	bob := createTestUser(t, s, "bob")

	if err := s.CreateFriendRequest(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	// Bob rejects: delete addressed as (bob, alice).
	if err := s.DeleteFriendRequest(ctx, bob.ID, alice.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.GetFriendRequest(ctx, alice.ID, bob.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected request gone, got %v", err)
	}
}

func befriend(t *testing.T, s *SQLiteStore, a, b *store.User) int64 {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateFriendRequest(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	_, channelID, err := s.AcceptFriendRequest(ctx, b.ID, a.ID)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	return channelID
}

func TestBestFriend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, s, "alice")
	bob := createTestUser(t, s, "bob")
	carol := createTestUser(t, s, "carol")

	bobChannel := befriend(t, s, alice, bob)
	carolChannel := befriend(t, s, alice, carol)

	for i := 0; i < 3; i++ {
		if _, err := s.CreateMessage(ctx, bob.ID, bobChannel, "hi"); err != nil {
			t.Fatalf("create message failed: %v", err)
		}
	}
	if _, err := s.CreateMessage(ctx, carol.ID, carolChannel, "hello"); err != nil {
		t.Fatalf("create message failed: %v", err)
	}

	best, err := s.BestFriend(ctx, alice.ID)
	if err != nil {
		t.Fatalf("best friend failed: %v", err)
	}
	if best.FriendID != bob.ID || best.Username != "bob" {
		t.Fatalf("expected bob as the most prolific friend, got %+v", best)
	}
	if best.ChannelID != bobChannel {
		t.Fatalf("expected the shared channel %d, got %+v", bobChannel, best)
	}
}

func TestBestFriendWithoutMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, s, "alice")
	bob := createTestUser(t, s, "bob")
	befriend(t, s, alice, bob)

	// A friendship alone is not enough; someone has to write something.
	if _, err := s.BestFriend(ctx, alice.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUnreadCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, s, "alice")
	channels, _ := s.ListChannels(ctx, alice.ID)
	channelID := channels[0].ID

	for i := 0; i < 3; i++ {
		if err := s.IncrementUnread(ctx, alice.ID, channelID); err != nil {
			t.Fatalf("increment failed: %v", err)
		}
	}

	unread, err := s.ListUnread(ctx, alice.ID)
	if err != nil || len(unread) != 1 {
		t.Fatalf("expected one unread counter, got %v %+v", err, unread)
	}
	if unread[0].ChannelID != channelID || unread[0].Count != 3 {
		t.Fatalf("expected count 3, got %+v", unread[0])
	}

	if err := s.ClearUnread(ctx, alice.ID, channelID); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	unread, _ = s.ListUnread(ctx, alice.ID)
	if len(unread) != 0 {
		t.Fatalf("expected no counters after clear, got %+v", unread)
	}
}

func TestFriendNotifications(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, s, "alice")
	bob := createTestUser(t, s, "bob")

	if err := s.AddFriendNotification(ctx, bob.ID, alice.ID, store.FriendNotificationIncomingRequest); err != nil {
		t.Fatalf("add notification failed: %v", err)
	}
	if err := s.AddFriendNotification(ctx, bob.ID, alice.ID, store.FriendNotificationNewFriend); err != nil {
		t.Fatalf("add notification failed: %v", err)
	}

	notfs, err := s.ListFriendNotifications(ctx, bob.ID)
	if err != nil || len(notfs) != 2 {
		t.Fatalf("expected two notifications, got %v %+v", err, notfs)
	}

	if err := s.ClearFriendNotifications(ctx, bob.ID); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	notfs, _ = s.ListFriendNotifications(ctx, bob.ID)
	if len(notfs) != 0 {
		t.Fatalf("expected no notifications after clear, got %+v", notfs)
	}
}

func TestListPublicUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createTestUser(t, s, "alice")
	createTestUser(t, s, "bob")

	users, err := s.ListPublicUsers(ctx)
	if err != nil || len(users) != 2 {
		t.Fatalf("expected two users, got %v %+v", err, users)
	}
}
