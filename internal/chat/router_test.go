package chat_test

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/Tyrowin/relaychat/internal/mocks"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

type recorderConn struct {
	id     chat.ConnID
	frames [][]byte
	err    error
}

func (c *recorderConn) ID() chat.ConnID { return c.id }

func (c *recorderConn) Send(payload []byte) error {
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, payload)
	return nil
}

func (c *recorderConn) events(t *testing.T) []chat.Envelope {
	t.Helper()
	return lo.Map(c.frames, func(frame []byte, _ int) chat.Envelope {
		var env chat.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	})
}

func (c *recorderConn) ofType(t *testing.T, kind chat.EventType) []chat.Envelope {
	t.Helper()
	return lo.Filter(c.events(t), func(env chat.Envelope, _ int) bool { return env.Type == kind })
}

func (c *recorderConn) reset() { c.frames = nil }

func decode[T any](t *testing.T, env chat.Envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func newRouter(registry chat.Registry, opts ...chat.Option) *chat.Router {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	opts = append([]chat.Option{chat.WithClock(func() time.Time { return fixedNow })}, opts...)
	return chat.NewRouter(registry, log, opts...)
}

func openAll(t *testing.T, router *chat.Router, ids ...chat.ConnID) []*recorderConn {
	t.Helper()
	return lo.Map(ids, func(id chat.ConnID, _ int) *recorderConn {
		conn := &recorderConn{id: id}
		require.NoError(t, router.Open(conn))
		return conn
	})
}

func TestRouter_Join_Then_Disconnect(t *testing.T) {
	req := require.New(t)
	registry := chat.NewMemoryRegistry()
	router := newRouter(registry)
	conns := openAll(t, router, "al", "other")
	al, other := conns[0], conns[1]

	// When Al joins then disconnects
	req.NoError(router.Join("al", "Al"))
	req.NoError(router.Close("al"))

	// Then the other connection saw one join and one leave for the same identity
	events := other.events(t)
	req.Len(events, 2)
	req.Equal(chat.EventPresenceJoin, events[0].Type)
	req.Equal(chat.EventPresenceLeave, events[1].Type)

	joined := decode[chat.PresencePayload](t, events[0])
	left := decode[chat.PresencePayload](t, events[1])
	req.Equal("Al", joined.DisplayName)
	req.Equal(chat.ConnID("al"), joined.ConnectionID)
	req.True(fixedNow.Equal(joined.Timestamp))
	req.Equal(joined.DisplayName, left.DisplayName)
	req.Equal(joined.ConnectionID, left.ConnectionID)

	// And Al got its roster but never its own presence-join
	req.Empty(al.ofType(t, chat.EventPresenceJoin))
	req.Len(al.ofType(t, chat.EventRoster), 1)

	// And nothing is left in the registry
	req.Zero(registry.Len())
	req.Equal(1, router.Connections())
}

func TestRouter_Chat_Reaches_Everyone_Including_Sender(t *testing.T) {
	req := require.New(t)
	router := newRouter(chat.NewMemoryRegistry())
	conns := openAll(t, router, "bo", "cy", "lurker")
	req.NoError(router.Join("bo", "Bo"))
	req.NoError(router.Join("cy", "Cy"))
	lo.ForEach(conns, func(c *recorderConn, _ int) { c.reset() })

	req.NoError(router.Handle("bo", []byte(`{"type":"chat-message","data":{"body":"hi"}}`)))

	for _, conn := range conns {
		events := conn.events(t)
		req.Len(events, 1, "connection %s", conn.id)
		req.Equal(chat.EventChatBroadcast, events[0].Type)
		msg := decode[chat.ChatMessage](t, events[0])
		req.Equal("Bo", msg.DisplayName)
		req.Equal("hi", msg.Body)
		req.Equal(chat.ConnID("bo"), msg.ConnectionID)
		req.True(fixedNow.Equal(msg.Timestamp))
	}
}

func TestRouter_Chat_Before_Join_Is_Dropped(t *testing.T) {
	req := require.New(t)
	router := newRouter(chat.NewMemoryRegistry())
	conns := openAll(t, router, "ghost", "bo")
	req.NoError(router.Join("bo", "Bo"))
	lo.ForEach(conns, func(c *recorderConn, _ int) { c.reset() })

	err := router.Handle("ghost", []byte(`{"type":"chat-message","data":{"body":"boo"}}`))

	req.ErrorIs(err, chat.ErrNotJoined)
	req.Empty(conns[0].frames)
	req.Empty(conns[1].frames)
}

func TestRouter_Events_From_Unknown_Connection_Are_NoOps(t *testing.T) {
	req := require.New(t)
	router := newRouter(chat.NewMemoryRegistry())
	conns := openAll(t, router, "bo")
	req.NoError(router.Join("bo", "Bo"))
	conns[0].reset()

	req.ErrorIs(router.Chat("gone", "hi"), chat.ErrUnknownConnection)
	req.ErrorIs(router.TypingStart("gone"), chat.ErrUnknownConnection)
	req.ErrorIs(router.TypingStop("gone"), chat.ErrUnknownConnection)
	req.ErrorIs(router.Close("gone"), chat.ErrUnknownConnection)
	req.Empty(conns[0].frames)
}

func TestRouter_Typing_Excludes_Sender(t *testing.T) {
	req := require.New(t)
	router := newRouter(chat.NewMemoryRegistry())
	conns := openAll(t, router, "a", "b")
	a, b := conns[0], conns[1]
	req.NoError(router.Join("a", "Ann"))
	req.NoError(router.Join("b", "Ben"))
	a.reset()
	b.reset()

	req.NoError(router.Handle("a", []byte(`{"type":"typing-start"}`)))
	req.NoError(router.Handle("a", []byte(`{"type":"typing-stop"}`)))

	req.Empty(a.frames)
	events := b.events(t)
	req.Len(events, 2)
	req.Equal(chat.EventTypingStarted, events[0].Type)
	started := decode[chat.TypingPayload](t, events[0])
	req.Equal(chat.TypingPayload{DisplayName: "Ann", ConnectionID: "a"}, started)

	req.Equal(chat.EventTypingStopped, events[1].Type)
	req.JSONEq(`{"connectionId":"a"}`, string(events[1].Data))
}

func TestRouter_Roster_Contains_Everyone_Joined_So_Far(t *testing.T) {
	req := require.New(t)
	router := newRouter(chat.NewMemoryRegistry())
	ids := []chat.ConnID{"p1", "p2", "p3", "p4", "c"}
	conns := openAll(t, router, ids...)

	for i, id := range ids[:4] {
		req.NoError(router.Join(id, "user"+string(rune('A'+i))))
	}
	req.NoError(router.Close("p2"))
	req.NoError(router.Join("c", "Cy"))

	rosters := conns[4].ofType(t, chat.EventRoster)
	req.Len(rosters, 1)
	roster := decode[[]chat.Participant](t, rosters[0])
	got := lo.Map(roster, func(p chat.Participant, _ int) chat.ConnID { return p.ConnectionID })
	req.ElementsMatch([]chat.ConnID{"p1", "p3", "p4", "c"}, got)
	req.Len(lo.Uniq(got), len(got))

	self, ok := lo.Find(roster, func(p chat.Participant) bool { return p.ConnectionID == "c" })
	req.True(ok)
	req.Equal("Cy", self.DisplayName)
}

func TestRouter_Second_Join_Is_Rejected(t *testing.T) {
	req := require.New(t)
	router := newRouter(chat.NewMemoryRegistry())
	conns := openAll(t, router, "a", "b")
	a, b := conns[0], conns[1]
	req.NoError(router.Join("a", "Ann"))
	a.reset()
	b.reset()

	err := router.Handle("a", []byte(`{"type":"join","data":"Mallory"}`))

	req.ErrorIs(err, chat.ErrAlreadyJoined)
	req.Empty(b.frames)
	errs := a.events(t)
	req.Len(errs, 1)
	req.Equal(chat.EventError, errs[0].Type)
	req.Equal("already-joined", decode[chat.ErrorPayload](t, errs[0]).Code)

	roster := router.Roster()
	req.Len(roster, 1)
	req.Equal("Ann", roster[0].DisplayName)
}

func TestRouter_Join_Payload_Forms(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    string
		wantErr error
	}{
		{name: "bare string", frame: `{"type":"join","data":"Al"}`, want: "Al"},
		{name: "object", frame: `{"type":"join","data":{"displayName":"Bo"}}`, want: "Bo"},
		{name: "trimmed", frame: `{"type":"join","data":"  Cy  "}`, want: "Cy"},
		{name: "missing data", frame: `{"type":"join"}`, wantErr: chat.ErrMalformedEvent},
		{name: "number", frame: `{"type":"join","data":42}`, wantErr: chat.ErrMalformedEvent},
		{name: "blank", frame: `{"type":"join","data":"   "}`, wantErr: chat.ErrInvalidDisplayName},
		{name: "too long", frame: `{"type":"join","data":"` + strings.Repeat("x", 33) + `"}`, wantErr: chat.ErrInvalidDisplayName},
		{name: "control chars", frame: `{"type":"join","data":"a\u0007b"}`, wantErr: chat.ErrInvalidDisplayName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			router := newRouter(chat.NewMemoryRegistry())
			openAll(t, router, "x")

			err := router.Handle("x", []byte(tt.frame))

			if tt.wantErr != nil {
				req.ErrorIs(err, tt.wantErr)
				req.Empty(router.Roster())
				return
			}
			req.NoError(err)
			req.Equal(tt.want, router.Roster()[0].DisplayName)
		})
	}
}

func TestRouter_Malformed_Frames_Are_Dropped(t *testing.T) {
	req := require.New(t)
	router := newRouter(chat.NewMemoryRegistry())
	conns := openAll(t, router, "a", "b")
	req.NoError(router.Join("a", "Ann"))
	lo.ForEach(conns, func(c *recorderConn, _ int) { c.reset() })

	for _, frame := range []string{
		`not json`,
		`{}`,
		`{"type":"launch-missiles"}`,
		`{"type":"chat-message"}`,
		`{"type":"chat-message","data":{"text":"wrong field"}}`,
		`{"type":"chat-message","data":"hi"}`,
	} {
		req.ErrorIs(router.Handle("a", []byte(frame)), chat.ErrMalformedEvent, frame)
	}
	req.Empty(conns[0].frames)
	req.Empty(conns[1].frames)
}

func TestRouter_Disconnect_Before_Join_Broadcasts_Nothing(t *testing.T) {
	req := require.New(t)
	router := newRouter(chat.NewMemoryRegistry())
	conns := openAll(t, router, "early", "b")
	req.NoError(router.Join("b", "Ben"))
	conns[1].reset()

	req.NoError(router.Close("early"))

	req.Empty(conns[1].frames)
	req.Equal(1, router.Connections())
}

func TestRouter_Open_Twice(t *testing.T) {
	req := require.New(t)
	router := newRouter(chat.NewMemoryRegistry())
	openAll(t, router, "a")

	req.ErrorIs(router.Open(&recorderConn{id: "a"}), chat.ErrAlreadyOpen)
	req.Equal(1, router.Connections())
}

func TestRouter_Chat_Body_Limits(t *testing.T) {
	req := require.New(t)
	router := newRouter(chat.NewMemoryRegistry(), chat.WithMaxBodyLength(5))
	conns := openAll(t, router, "a", "b")
	a, b := conns[0], conns[1]
	req.NoError(router.Join("a", "Ann"))
	a.reset()
	b.reset()

	req.ErrorIs(router.Chat("a", "   "), chat.ErrEmptyMessage)
	req.ErrorIs(router.Chat("a", "toolong"), chat.ErrMessageTooLong)
	req.Empty(b.frames)
	errs := a.ofType(t, chat.EventError)
	req.Len(errs, 1)
	req.Equal("message-too-long", decode[chat.ErrorPayload](t, errs[0]).Code)

	// multi-byte runes count once
	req.NoError(router.Chat("a", "héllo"))
	req.Len(b.ofType(t, chat.EventChatBroadcast), 1)
}

func TestRouter_Chat_Is_Censored(t *testing.T) {
	req := require.New(t)
	censor, err := chat.NewCensor([]string{"badger"})
	req.NoError(err)
	router := newRouter(chat.NewMemoryRegistry(), chat.WithCensor(censor))
	conns := openAll(t, router, "a")
	req.NoError(router.Join("a", "Ann"))

	req.NoError(router.Chat("a", "the BADGER is here"))

	msgs := conns[0].ofType(t, chat.EventChatBroadcast)
	req.Len(msgs, 1)
	req.Equal("the ****** is here", decode[chat.ChatMessage](t, msgs[0]).Body)
}

func TestRouter_Failing_Recipient_Does_Not_Stop_Broadcast(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	router := newRouter(chat.NewMemoryRegistry())

	broken := mocks.NewMockConn(ctrl)
	broken.EXPECT().ID().Return(chat.ConnID("broken")).AnyTimes()
	broken.EXPECT().Send(gomock.Any()).Return(errors.New("buffer full")).AnyTimes()

	first := &recorderConn{id: "first"}
	req.NoError(router.Open(first))
	req.NoError(router.Open(broken))
	last := &recorderConn{id: "last"}
	req.NoError(router.Open(last))

	req.NoError(router.Join("first", "Fay"))
	req.NoError(router.Chat("first", "still here"))

	req.Len(first.ofType(t, chat.EventChatBroadcast), 1)
	req.Len(last.ofType(t, chat.EventPresenceJoin), 1)
	req.Len(last.ofType(t, chat.EventChatBroadcast), 1)
}

func TestRouter_Panicking_Recipient_Is_Isolated(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	router := newRouter(chat.NewMemoryRegistry())

	bad := mocks.NewMockConn(ctrl)
	bad.EXPECT().ID().Return(chat.ConnID("bad")).AnyTimes()
	bad.EXPECT().Send(gomock.Any()).DoAndReturn(func([]byte) error { panic("send on closed channel") }).AnyTimes()

	req.NoError(router.Open(bad))
	good := &recorderConn{id: "good"}
	req.NoError(router.Open(good))
	req.NoError(router.Join("good", "Gus"))

	req.NotPanics(func() { req.NoError(router.Chat("good", "hello")) })
	req.Len(good.ofType(t, chat.EventChatBroadcast), 1)
}

func TestRouter_Consults_Injected_Registry(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockRegistry(ctrl)
	router := newRouter(registry)
	ann := chat.Participant{ConnectionID: "a", DisplayName: "Ann", JoinedAt: fixedNow}

	registry.EXPECT().Len().Return(0).AnyTimes()

	// Given the joiner is registered under its trimmed name
	registry.EXPECT().Register(chat.ConnID("a"), "Ann", fixedNow).Return(ann)
	registry.EXPECT().ListAll().Return([]chat.Participant{ann})

	// And the record vanished before the chat event was processed
	registry.EXPECT().Get(chat.ConnID("a")).Return(chat.Participant{}, false)

	conns := openAll(t, router, "a")
	req.NoError(router.Join("a", " Ann "))
	conns[0].reset()

	// Then the chat event is silently dropped
	req.ErrorIs(router.Chat("a", "hi"), chat.ErrNotJoined)
	req.Empty(conns[0].frames)
}

func TestRouter_Reports_To_Observer(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	observer := mocks.NewMockObserver(ctrl)
	router := newRouter(chat.NewMemoryRegistry(), chat.WithObserver(observer))

	gomock.InOrder(
		observer.EXPECT().PresenceChanged(1, 0),
		observer.EXPECT().PresenceChanged(2, 0),
		observer.EXPECT().Delivered(chat.EventPresenceJoin, 1, 0),
		observer.EXPECT().Delivered(chat.EventRoster, 1, 0),
		observer.EXPECT().PresenceChanged(2, 1),
		observer.EXPECT().EventHandled(chat.EventJoin, nil),
		observer.EXPECT().Delivered(chat.EventChatBroadcast, 2, 0),
		observer.EXPECT().EventHandled(chat.EventChatMessage, nil),
		observer.EXPECT().EventHandled(chat.EventType("unknown"), gomock.Any()),
	)

	openAll(t, router, "a", "b")
	req.NoError(router.Handle("a", []byte(`{"type":"join","data":"Ann"}`)))
	req.NoError(router.Handle("a", []byte(`{"type":"chat-message","data":{"body":"hi"}}`)))
	req.Error(router.Handle("a", []byte(`{"type":"nope"}`)))
}
