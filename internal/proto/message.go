package proto

// Inbound is the envelope for messages coming from the client. The Type
// discriminant selects which payload fields are meaningful; an unknown
// discriminant is a protocol error, never ignored.
type Inbound struct {
	Type string `json:"type"`

	// CONNECT payload.
	Token string `json:"token,omitempty"`

	// SEND payload.
	Message   string `json:"message,omitempty"`
	ChannelID int64  `json:"channelId,omitempty"`
}

const (
	InboundTypeConnect = "CONNECT"
	InboundTypeSend    = "SEND"
	InboundTypePing    = "PING"

	OutboundTypeConnectSuccess = "CONNECT_SUCCESS"
	OutboundTypePong           = "PONG"
	OutboundTypeMessage        = "MESSAGE"
	OutboundTypeStatusChange   = "STATUS_CHANGE"
	OutboundTypeFriendRequest  = "FRIEND_REQ"
	OutboundTypeNewFriend      = "NEW_FRIEND"
)

// Close codes carried on the websocket close frame. 4000 covers every
// protocol violation (wrong message type, bad JSON, invalid credential,
// handshake timeout); 5000 is an internal invariant violation.
const (
	CloseProtocolError = 4000
	CloseInternalError = 5000
)

// PublicUser is the peer-visible projection of a user.
type PublicUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// MessageDTO is a chat message as delivered to connected clients.
type MessageDTO struct {
	ID        int64      `json:"id"`
	ChannelID int64      `json:"channelId"`
	Author    PublicUser `json:"author"`
	Content   string     `json:"content"`
	CreatedAt int64      `json:"createdAt"`
}

// FriendView is a friend entry including the shared direct channel.
type FriendView struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	Status    string `json:"status"`
	ChannelID int64  `json:"channelId"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type string `json:"type"`

	// MESSAGE payload.
	Message *MessageDTO `json:"message,omitempty"`

	// STATUS_CHANGE payload. Status never carries INVISIBLE; the
	// presence layer substitutes OFFLINE before anything leaves the server.
	ID     int64  `json:"id,omitempty"`
	Status string `json:"status,omitempty"`

	// FRIEND_REQ payload.
	From *PublicUser `json:"from,omitempty"`

	// NEW_FRIEND payload.
	Friend *FriendView `json:"friend,omitempty"`
}
