package poster

import "time"

// Config controls delivery throttling and retries.
type Config struct {
	RatePerSec    int
	CallTimeout   time.Duration
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

type HistoryItem struct {
	At        time.Time `json:"at"`
	RoomID    string    `json:"room_id"`
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// DeliveryEvent is published on the bus after each Perform call.
type DeliveryEvent struct {
	Transport string        `json:"transport"`
	RoomID    string        `json:"room_id"`
	MessageID string        `json:"message_id,omitempty"`
	Attempts  int           `json:"attempts"`
	Took      time.Duration `json:"took"`
	At        time.Time     `json:"at"`
	Error     string        `json:"error,omitempty"`
}

const (
	EventSent   = "poster.sent"
	EventFailed = "poster.failed"
)
