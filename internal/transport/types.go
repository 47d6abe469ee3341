package transport

import "context"

// Post is the payload a registered record delivers when its trigger fires.
// The scheduler carries it opaquely; only posters look inside.
type Post struct {
	APIToken   string `json:"api_token"`
	RoomID     string `json:"room_id"`
	ThreadID   int    `json:"thread_id,omitempty"` // telegram forum topic (0 if none)
	Body       string `json:"body"`
	SelfUnread bool   `json:"self_unread"`
}

// MessageRef identifies a delivered message on the remote side.
type MessageRef struct {
	RoomID    string
	ThreadID  int
	MessageID string
}

// Poster delivers a post to a chat service.
type Poster interface {
	Name() string
	Post(ctx context.Context, p Post) (MessageRef, error)
}

// Closer is implemented by posters that hold background resources.
type Closer interface {
	Close(ctx context.Context) error
}
