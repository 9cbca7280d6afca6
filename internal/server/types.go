// Package server defines shared transport types and utility helpers that
// are reused across client and hub logic.
package server

import (
	"errors"
	"strings"
	"time"

	"github.com/Tyrowin/relaychat/internal/chat"
)

var (
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrConnectionClosed = errors.New("connection closed")
	ErrHubStopped       = errors.New("hub stopped")
)

// inboundFrame is one raw frame read from a client, queued for the hub.
type inboundFrame struct {
	client  *Client
	payload []byte
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Connections  int `json:"connections"`
	Participants int `json:"participants"`
}

// Snapshot is the roster together with the counts taken at the same moment.
type Snapshot struct {
	Stats
	Roster []chat.Participant `json:"roster"`
}

// rosterResponse is served by the participants endpoint.
type rosterResponse struct {
	Snapshot
	GeneratedAt time.Time `json:"generatedAt"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
