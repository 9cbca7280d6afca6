//go:generate go run go.uber.org/mock/mockgen -source=registry.go -destination=../mocks/mock_registry.go -package=mocks
package chat

import (
	"time"

	"github.com/samber/lo"
)

// Registry stores the participants of live, joined connections.
type Registry interface {
	// Register stores a participant for id. A second call for the same id
	// replaces the record in place.
	Register(id ConnID, displayName string, joinedAt time.Time) Participant
	// Unregister removes and returns the participant for id; false if id
	// was never registered.
	Unregister(id ConnID) (Participant, bool)
	Get(id ConnID) (Participant, bool)
	// ListAll returns every registered participant exactly once.
	ListAll() []Participant
	Len() int
}

// MemoryRegistry is an in-process Registry that keeps insertion order.
// It holds no lock: its single owner is the Router.
type MemoryRegistry struct {
	byID  map[ConnID]Participant
	order []ConnID
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{byID: make(map[ConnID]Participant)}
}

// Register stores the participant, keeping its position if id is already
// registered.
func (r *MemoryRegistry) Register(id ConnID, displayName string, joinedAt time.Time) Participant {
	p := Participant{ConnectionID: id, DisplayName: displayName, JoinedAt: joinedAt}
	if _, exists := r.byID[id]; !exists {
		r.order = append(r.order, id)
	}
	r.byID[id] = p
	return p
}

// Unregister removes id and returns what was stored for it.
func (r *MemoryRegistry) Unregister(id ConnID) (Participant, bool) {
	p, ok := r.byID[id]
	if !ok {
		return Participant{}, false
	}
	delete(r.byID, id)
	r.order = lo.Without(r.order, id)
	return p, true
}

// Get looks up the participant for id.
func (r *MemoryRegistry) Get(id ConnID) (Participant, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// ListAll returns the participants in join order.
func (r *MemoryRegistry) ListAll() []Participant {
	return lo.Map(r.order, func(id ConnID, _ int) Participant {
		return r.byID[id]
	})
}

// Len is the number of registered participants.
func (r *MemoryRegistry) Len() int {
	return len(r.byID)
}
