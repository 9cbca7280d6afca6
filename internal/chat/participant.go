package chat

import "time"

// ConnID identifies one live connection. It is assigned by the transport
// and is meaningless once the connection is gone.
type ConnID string

// Participant is a joined connection as seen by everyone else.
type Participant struct {
	ConnectionID ConnID    `json:"connectionId"`
	DisplayName  string    `json:"displayName"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// ChatMessage is built per chat event and dropped after broadcast.
type ChatMessage struct {
	DisplayName  string    `json:"displayName"`
	Body         string    `json:"body"`
	Timestamp    time.Time `json:"timestamp"`
	ConnectionID ConnID    `json:"connectionId"`
}
