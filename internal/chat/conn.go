//go:generate go run go.uber.org/mock/mockgen -source=conn.go -destination=../mocks/mock_conn.go -package=mocks
package chat

// Conn is the Router's view of one transport connection.
type Conn interface {
	ID() ConnID
	// Send queues payload for delivery and returns without waiting for the
	// peer. An error means this recipient is lost for this event only.
	Send(payload []byte) error
}

// Observer is told about every handled event and every fan-out.
type Observer interface {
	EventHandled(kind EventType, err error)
	Delivered(kind EventType, recipients, failures int)
	PresenceChanged(connections, participants int)
}

type nopObserver struct{}

func (nopObserver) EventHandled(EventType, error) {}
func (nopObserver) Delivered(EventType, int, int) {}
func (nopObserver) PresenceChanged(int, int) {}
