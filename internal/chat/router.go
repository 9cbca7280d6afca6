package chat

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
)

// DefaultMaxBodyLength is the chat body cap in runes.
const DefaultMaxBodyLength = 500

type connState int

const (
	stateConnected connState = iota
	stateJoined
	stateDisconnected
)

func (s connState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateJoined:
		return "joined"
	case stateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("connState(%d)", int(s))
	}
}

type session struct {
	conn  Conn
	state connState
}

// audience selects the recipients of one delivery.
type audience func(ConnID) bool

func everyone(ConnID) bool { return true }

func only(id ConnID) audience {
	return func(c ConnID) bool { return c == id }
}

func except(id ConnID) audience {
	return func(c ConnID) bool { return c != id }
}

// Option configures a Router.
type Option func(*Router)

// WithClock replaces time.Now for join and message timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithObserver reports handled events, deliveries and presence counts to o.
// A nil o keeps the no-op observer.
func WithObserver(o Observer) Option {
	return func(r *Router) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithCensor masks chat bodies with c before they are broadcast.
func WithCensor(c *Censor) Option {
	return func(r *Router) { r.censor = c }
}

// WithMaxDisplayNameLength caps display names at n runes. Values below 1
// keep the default.
func WithMaxDisplayNameLength(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxNameLen = n
		}
	}
}

// WithMaxBodyLength caps chat bodies at n runes; n <= 0 disables the cap.
func WithMaxBodyLength(n int) Option {
	return func(r *Router) { r.maxBodyLen = n }
}

// Router turns inbound events into broadcasts. It owns the Registry and
// the per-connection state machine (connected, joined, disconnected).
type Router struct {
	registry   Registry
	sessions   map[ConnID]*session
	order      []ConnID
	log        *slog.Logger
	observer   Observer
	censor     *Censor
	now        func() time.Time
	maxNameLen int
	maxBodyLen int
}

// NewRouter creates a Router that owns registry. It must be driven from a
// single goroutine.
func NewRouter(registry Registry, log *slog.Logger, opts ...Option) *Router {
	r := &Router{
		registry:   registry,
		sessions:   make(map[ConnID]*session),
		log:        log,
		observer:   nopObserver{},
		now:        time.Now,
		maxNameLen: DefaultMaxDisplayNameLength,
		maxBodyLen: DefaultMaxBodyLength,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open starts tracking conn. Nothing is broadcast until it joins.
func (r *Router) Open(conn Conn) error {
	id := conn.ID()
	if _, exists := r.sessions[id]; exists {
		return fmt.Errorf("open %s: %w", id, ErrAlreadyOpen)
	}
	r.sessions[id] = &session{conn: conn, state: stateConnected}
	r.order = append(r.order, id)
	r.presenceChanged()
	return nil
}

// Handle decodes one raw inbound frame from id and dispatches it.
func (r *Router) Handle(id ConnID, raw []byte) error {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		r.observer.EventHandled("unknown", err)
		return fmt.Errorf("event from %s: %w", id, err)
	}

	switch env.Type {
	case EventJoin:
		var name string
		if name, err = decodeDisplayName(env.Data); err == nil {
			err = r.Join(id, name)
		}
	case EventChatMessage:
		var body string
		if body, err = decodeChatBody(env.Data); err == nil {
			err = r.Chat(id, body)
		}
	case EventTypingStart:
		err = r.TypingStart(id)
	case EventTypingStop:
		err = r.TypingStop(id)
	default:
		r.observer.EventHandled("unknown", ErrMalformedEvent)
		return fmt.Errorf("event from %s: %w: unknown type %q", id, ErrMalformedEvent, env.Type)
	}

	r.observer.EventHandled(env.Type, err)
	if err != nil {
		return fmt.Errorf("%s from %s: %w", env.Type, id, err)
	}
	return nil
}

// Join registers id under displayName. A connection joins at most once;
// later attempts are rejected and leave its identity unchanged.
func (r *Router) Join(id ConnID, displayName string) error {
	s, ok := r.sessions[id]
	if !ok {
		return ErrUnknownConnection
	}
	if s.state == stateJoined {
		r.reject(id, "already-joined", "this connection has already joined")
		return ErrAlreadyJoined
	}

	name, err := normalizeDisplayName(displayName, r.maxNameLen)
	if err != nil {
		r.reject(id, "invalid-display-name",
			fmt.Sprintf("display name must be 1 to %d characters", r.maxNameLen))
		return err
	}

	p := r.registry.Register(id, name, r.now())
	s.state = stateJoined

	r.deliver(Event{Type: EventPresenceJoin, Data: PresencePayload{
		DisplayName:  p.DisplayName,
		ConnectionID: id,
		Timestamp:    p.JoinedAt,
	}}, except(id))
	r.deliver(Event{Type: EventRoster, Data: r.registry.ListAll()}, only(id))

	r.presenceChanged()
	r.log.Info("Participant joined", "connection_id", id, "display_name", p.DisplayName)
	return nil
}

// Chat broadcasts body from id to every connection, the sender included.
func (r *Router) Chat(id ConnID, body string) error {
	p, err := r.participant(id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}
	if r.maxBodyLen > 0 && utf8.RuneCountInString(body) > r.maxBodyLen {
		r.reject(id, "message-too-long",
			fmt.Sprintf("message body exceeds %d characters", r.maxBodyLen))
		return ErrMessageTooLong
	}

	r.deliver(Event{Type: EventChatBroadcast, Data: ChatMessage{
		DisplayName:  p.DisplayName,
		Body:         r.censor.Apply(body),
		Timestamp:    r.now(),
		ConnectionID: id,
	}}, everyone)
	return nil
}

// TypingStart tells every other connection that id is typing.
func (r *Router) TypingStart(id ConnID) error {
	p, err := r.participant(id)
	if err != nil {
		return err
	}
	r.deliver(Event{Type: EventTypingStarted, Data: TypingPayload{
		DisplayName:  p.DisplayName,
		ConnectionID: id,
	}}, except(id))
	return nil
}

// TypingStop tells every other connection that id stopped typing.
func (r *Router) TypingStop(id ConnID) error {
	if _, err := r.participant(id); err != nil {
		return err
	}
	r.deliver(Event{Type: EventTypingStopped, Data: TypingPayload{ConnectionID: id}}, except(id))
	return nil
}

// Close ends id's session. A joined participant is unregistered and its
// departure announced to the remaining connections.
func (r *Router) Close(id ConnID) error {
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("close %s: %w", id, ErrUnknownConnection)
	}
	s.state = stateDisconnected
	delete(r.sessions, id)
	r.order = lo.Without(r.order, id)

	if p, joined := r.registry.Unregister(id); joined {
		r.deliver(Event{Type: EventPresenceLeave, Data: PresencePayload{
			DisplayName:  p.DisplayName,
			ConnectionID: id,
			Timestamp:    r.now(),
		}}, everyone)
		r.log.Info("Participant left", "connection_id", id, "display_name", p.DisplayName)
	}

	r.presenceChanged()
	return nil
}

// Roster returns the currently joined participants.
func (r *Router) Roster() []Participant {
	return r.registry.ListAll()
}

// Connections returns the number of open connections, joined or not.
func (r *Router) Connections() int {
	return len(r.sessions)
}

func (r *Router) participant(id ConnID) (Participant, error) {
	s, ok := r.sessions[id]
	if !ok {
		return Participant{}, ErrUnknownConnection
	}
	if s.state != stateJoined {
		return Participant{}, ErrNotJoined
	}
	p, ok := r.registry.Get(id)
	if !ok {
		return Participant{}, ErrNotJoined
	}
	return p, nil
}

func (r *Router) reject(id ConnID, code, message string) {
	r.deliver(Event{Type: EventError, Data: ErrorPayload{Code: code, Message: message}}, only(id))
}

// deliver encodes evt once and queues it on every open connection selected
// by to. A failing recipient is logged and skipped.
func (r *Router) deliver(evt Event, to audience) {
	payload, err := evt.Encode()
	if err != nil {
		r.log.Error("Dropping event that failed to encode", "type", evt.Type, "error", err)
		return
	}

	recipients, failures := 0, 0
	for _, id := range r.order {
		if !to(id) {
			continue
		}
		recipients++
		if err := safeSend(r.sessions[id].conn, payload); err != nil {
			failures++
			r.log.Warn("Delivery failed", "type", evt.Type, "connection_id", id, "error", err)
		}
	}
	r.observer.Delivered(evt.Type, recipients, failures)
}

func safeSend(conn Conn, payload []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("send panicked: %v", rec)
		}
	}()
	return conn.Send(payload)
}

func (r *Router) presenceChanged() {
	r.observer.PresenceChanged(len(r.sessions), r.registry.Len())
}
