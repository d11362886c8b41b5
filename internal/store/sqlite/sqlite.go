package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chatterbox-im/chatterbox-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	avatar        TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'OFFLINE',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS channels (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'public',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS channel_access (
	user_id    INTEGER NOT NULL,
	channel_id INTEGER NOT NULL,
	PRIMARY KEY (user_id, channel_id),
	FOREIGN KEY (user_id) REFERENCES users(id),
	FOREIGN KEY (channel_id) REFERENCES channels(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	channel_id INTEGER NOT NULL,
	author_id  INTEGER NOT NULL,
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (channel_id) REFERENCES channels(id),
	FOREIGN KEY (author_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS friends (
	sender     INTEGER NOT NULL,
	recipient  INTEGER NOT NULL,
	channel_id INTEGER NOT NULL,
	PRIMARY KEY (sender, recipient),
	FOREIGN KEY (sender) REFERENCES users(id),
	FOREIGN KEY (recipient) REFERENCES users(id),
	FOREIGN KEY (channel_id) REFERENCES channels(id)
);

CREATE TABLE IF NOT EXISTS friend_requests (
	from_id      INTEGER NOT NULL,
	to_id        INTEGER NOT NULL,
	requested_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (from_id, to_id),
	FOREIGN KEY (from_id) REFERENCES users(id),
	FOREIGN KEY (to_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS message_notifications (
	user_id    INTEGER NOT NULL,
	channel_id INTEGER NOT NULL,
	count      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, channel_id),
	FOREIGN KEY (user_id) REFERENCES users(id),
	FOREIGN KEY (channel_id) REFERENCES channels(id)
);

CREATE TABLE IF NOT EXISTS friend_notifications (
	user_id INTEGER NOT NULL,
	from_id INTEGER NOT NULL,
	kind    TEXT NOT NULL,
	FOREIGN KEY (user_id) REFERENCES users(id),
	FOREIGN KEY (from_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, created_at);
CREATE INDEX IF NOT EXISTS idx_channel_access_user ON channel_access(user_id);
CREATE INDEX IF NOT EXISTS idx_friends_sender ON friends(sender);

INSERT INTO channels (id, name, type)
SELECT 1, 'general', 'public'
WHERE NOT EXISTS (SELECT 1 FROM channels WHERE type = 'public');
`

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user and grants access to the public channel.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, passwordHash, avatar string) (*store.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, avatar, status)
		VALUES (?, ?, ?, ?, 'OFFLINE')
	`, username, email, passwordHash, avatar)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	// Every account can read the public channel.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO channel_access (user_id, channel_id)
		SELECT ?, id FROM channels WHERE type = 'public'
	`, id)
	if err != nil {
		return nil, fmt.Errorf("grant public channel access: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*store.User, error) {
	query := `
		SELECT id, username, email, password_hash, avatar, status, created_at
		FROM users
		WHERE ` + where
	var u store.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Avatar, &u.Status, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUser(ctx, "email = ?", email)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.getUser(ctx, "username = ?", username)
}

// ListPublicUsers lists the public projection of every user.
func (s *SQLiteStore) ListPublicUsers(ctx context.Context) ([]*store.PublicUser, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, avatar, status FROM users ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	return scanPublicUsers(rows)
}

// SetStatus durably persists a user's presence status.
func (s *SQLiteStore) SetStatus(ctx context.Context, id int64, status store.UserStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// ==== ChannelStore implementation ====

// CreateChannel creates a channel without granting access.
func (s *SQLiteStore) CreateChannel(ctx context.Context, name string, channelType store.ChannelType) (*store.Channel, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (name, type) VALUES (?, ?)
	`, name, channelType)
	if err != nil {
		return nil, fmt.Errorf("insert channel: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getChannel(ctx, id)
}

func (s *SQLiteStore) getChannel(ctx context.Context, id int64) (*store.Channel, error) {
	var c store.Channel
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, created_at FROM channels WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &c.Type, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query channel: %w", err)
	}
	return &c, nil
}

// ListChannels lists channels the user has access to.
func (s *SQLiteStore) ListChannels(ctx context.Context, userID int64) ([]*store.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.type, c.created_at
		FROM channels c
		INNER JOIN channel_access ca ON ca.channel_id = c.id AND ca.user_id = ?
		ORDER BY c.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var channels []*store.Channel
	for rows.Next() {
		var c store.Channel
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, &c)
	}
	return channels, rows.Err()
}

// HasAccess checks whether the user may read and write the channel.
func (s *SQLiteStore) HasAccess(ctx context.Context, userID, channelID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM channel_access WHERE user_id = ? AND channel_id = ?
	`, userID, channelID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query access: %w", err)
	}
	return true, nil
}

// ChannelRecipients lists every user with access to the channel.
func (s *SQLiteStore) ChannelRecipients(ctx context.Context, channelID int64) ([]*store.PublicUser, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.avatar, u.status
		FROM users u
		INNER JOIN channel_access ca ON ca.user_id = u.id AND ca.channel_id = ?
		ORDER BY u.id
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	return scanPublicUsers(rows)
}

// ==== MessageStore implementation ====

// CreateMessage persists a message and returns it with ID and timestamp.
func (s *SQLiteStore) CreateMessage(ctx context.Context, authorID, channelID int64, content string) (*store.Message, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (channel_id, author_id, content) VALUES (?, ?, ?)
	`, channelID, authorID, content)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	var m store.Message
	err = s.db.QueryRowContext(ctx, `
		SELECT id, channel_id, author_id, content, created_at FROM messages WHERE id = ?
	`, id).Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("query message: %w", err)
	}
	return &m, nil
}

// ListMessages retrieves the messages of a channel in insertion order.
func (s *SQLiteStore) ListMessages(ctx context.Context, channelID int64) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, author_id, content, created_at
		FROM messages
		WHERE channel_id = ?
		ORDER BY id
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// ==== FriendStore implementation ====

// CreateFriendRequest records a pending request from one user to another.
func (s *SQLiteStore) CreateFriendRequest(ctx context.Context, fromID, toID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO friend_requests (from_id, to_id) VALUES (?, ?)
	`, fromID, toID)
	if err != nil {
		return fmt.Errorf("insert friend request: %w", err)
	}
	return nil
}

// GetFriendRequest retrieves a pending request, if any.
func (s *SQLiteStore) GetFriendRequest(ctx context.Context, fromID, toID int64) (*store.FriendRequest, error) {
	var r store.FriendRequest
	err := s.db.QueryRowContext(ctx, `
		SELECT from_id, to_id, requested_at FROM friend_requests
		WHERE from_id = ? AND to_id = ?
	`, fromID, toID).Scan(&r.FromID, &r.ToID, &r.RequestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query friend request: %w", err)
	}
	return &r, nil
}

// ListFriendRequests lists pending requests addressed to the user.
func (s *SQLiteStore) ListFriendRequests(ctx context.Context, toID int64) ([]*store.FriendRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_id, to_id, requested_at FROM friend_requests
		WHERE to_id = ?
		ORDER BY requested_at
	`, toID)
	if err != nil {
		return nil, fmt.Errorf("query friend requests: %w", err)
	}
	defer rows.Close()

	var requests []*store.FriendRequest
	for rows.Next() {
		var r store.FriendRequest
		if err := rows.Scan(&r.FromID, &r.ToID, &r.RequestedAt); err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		requests = append(requests, &r)
	}
	return requests, rows.Err()
}

// AcceptFriendRequest atomically converts a pending request into a
// friendship: one direct channel, both friendship rows, both access
// grants, and request cleanup in either direction.
func (s *SQLiteStore) AcceptFriendRequest(ctx context.Context, userID, fromID int64) (*store.PublicUser, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM friend_requests WHERE from_id = ? AND to_id = ?
	`, fromID, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, store.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("query friend request: %w", err)
	}

	var friend store.PublicUser
	err = tx.QueryRowContext(ctx, `
		SELECT id, username, avatar, status FROM users WHERE id = ?
	`, fromID).Scan(&friend.ID, &friend.Username, &friend.Avatar, &friend.Status)
	if err != nil {
		return nil, 0, fmt.Errorf("query friend: %w", err)
	}

	var username string
	err = tx.QueryRowContext(ctx, `SELECT username FROM users WHERE id = ?`, userID).Scan(&username)
	if err != nil {
		return nil, 0, fmt.Errorf("query user: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO channels (name, type) VALUES (?, 'direct')
	`, friend.Username+"-"+username)
	if err != nil {
		return nil, 0, fmt.Errorf("insert direct channel: %w", err)
	}
	channelID, err := result.LastInsertId()
	if err != nil {
		return nil, 0, fmt.Errorf("get last insert id: %w", err)
	}

	for _, pair := range [][2]int64{{fromID, userID}, {userID, fromID}} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO friends (sender, recipient, channel_id) VALUES (?, ?, ?)
		`, pair[0], pair[1], channelID); err != nil {
			return nil, 0, fmt.Errorf("insert friendship: %w", err)
		}
	}
	for _, id := range []int64{userID, fromID} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO channel_access (user_id, channel_id) VALUES (?, ?)
		`, id, channelID); err != nil {
			return nil, 0, fmt.Errorf("grant channel access: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM friend_requests
		WHERE (from_id = ? AND to_id = ?) OR (from_id = ? AND to_id = ?)
	`, fromID, userID, userID, fromID)
	if err != nil {
		return nil, 0, fmt.Errorf("delete friend requests: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit: %w", err)
	}

	return &friend, channelID, nil
}

// DeleteFriendRequest removes a request in either direction.
func (s *SQLiteStore) DeleteFriendRequest(ctx context.Context, userID, otherID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM friend_requests
		WHERE (from_id = ? AND to_id = ?) OR (from_id = ? AND to_id = ?)
	`, otherID, userID, userID, otherID)
	if err != nil {
		return fmt.Errorf("delete friend request: %w", err)
	}
	return nil
}

// FriendsOf lists the accepted friends of a user.
func (s *SQLiteStore) FriendsOf(ctx context.Context, userID int64) ([]*store.Friend, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.sender, f.recipient, f.channel_id, u.username, u.avatar, u.status
		FROM friends f
		INNER JOIN users u ON u.id = f.recipient
		WHERE f.sender = ?
		ORDER BY u.username
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query friends: %w", err)
	}
	defer rows.Close()

	var friends []*store.Friend
	for rows.Next() {
		var f store.Friend
		if err := rows.Scan(&f.UserID, &f.FriendID, &f.ChannelID, &f.Username, &f.Avatar, &f.Status); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		friends = append(friends, &f)
	}
	return friends, rows.Err()
}

// BestFriend returns the friend who has authored the most messages,
// counted across every channel the friend writes in.
func (s *SQLiteStore) BestFriend(ctx context.Context, userID int64) (*store.Friend, error) {
	var f store.Friend
	err := s.db.QueryRowContext(ctx, `
		SELECT f.sender, f.recipient, f.channel_id, u.username, u.avatar, u.status
		FROM friends f
		INNER JOIN users u ON u.id = f.recipient
		INNER JOIN messages m ON m.author_id = f.recipient
		WHERE f.sender = ?
		GROUP BY f.recipient, f.channel_id
		ORDER BY COUNT(m.id) DESC
		LIMIT 1
	`, userID).Scan(&f.UserID, &f.FriendID, &f.ChannelID, &f.Username, &f.Avatar, &f.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query best friend: %w", err)
	}
	return &f, nil
}

// ==== NotificationStore implementation ====

// IncrementUnread bumps the unread counter for a user and channel.
func (s *SQLiteStore) IncrementUnread(ctx context.Context, userID, channelID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_notifications (user_id, channel_id, count)
		VALUES (?, ?, 1)
		ON CONFLICT(user_id, channel_id) DO UPDATE SET count = count + 1
	`, userID, channelID)
	if err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	return nil
}

// ListUnread lists non-zero unread counters for a user.
func (s *SQLiteStore) ListUnread(ctx context.Context, userID int64) ([]*store.MessageNotification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, channel_id, count FROM message_notifications
		WHERE user_id = ? AND count > 0
		ORDER BY channel_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query unread: %w", err)
	}
	defer rows.Close()

	var notifications []*store.MessageNotification
	for rows.Next() {
		var n store.MessageNotification
		if err := rows.Scan(&n.UserID, &n.ChannelID, &n.Count); err != nil {
			return nil, fmt.Errorf("scan unread: %w", err)
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

// ClearUnread resets the unread counter for a user and channel.
func (s *SQLiteStore) ClearUnread(ctx context.Context, userID, channelID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM message_notifications WHERE user_id = ? AND channel_id = ?
	`, userID, channelID)
	if err != nil {
		return fmt.Errorf("clear unread: %w", err)
	}
	return nil
}

// AddFriendNotification records a friend event for later delivery.
func (s *SQLiteStore) AddFriendNotification(ctx context.Context, userID, fromID int64, kind store.FriendNotificationKind) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO friend_notifications (user_id, from_id, kind) VALUES (?, ?, ?)
	`, userID, fromID, kind)
	if err != nil {
		return fmt.Errorf("insert friend notification: %w", err)
	}
	return nil
}

// ListFriendNotifications lists accumulated friend events for a user.
func (s *SQLiteStore) ListFriendNotifications(ctx context.Context, userID int64) ([]*store.FriendNotification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, from_id, kind FROM friend_notifications
		WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query friend notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*store.FriendNotification
	for rows.Next() {
		var n store.FriendNotification
		if err := rows.Scan(&n.UserID, &n.FromID, &n.Kind); err != nil {
			return nil, fmt.Errorf("scan friend notification: %w", err)
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

// ClearFriendNotifications removes all friend events for a user.
func (s *SQLiteStore) ClearFriendNotifications(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM friend_notifications WHERE user_id = ?
	`, userID)
	if err != nil {
		return fmt.Errorf("clear friend notifications: %w", err)
	}
	return nil
}

func scanPublicUsers(rows *sql.Rows) ([]*store.PublicUser, error) {
	var users []*store.PublicUser
	for rows.Next() {
		var u store.PublicUser
		if err := rows.Scan(&u.ID, &u.Username, &u.Avatar, &u.Status); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}
