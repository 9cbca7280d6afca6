// Package server coordinates client registration, inbound events, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/chat"
)

// Hub is the single event loop of the relay. It alone drives the Router,
// so every register, unregister, inbound event and query is processed to
// completion before the next one starts.
type Hub struct {
	router     *chat.Router
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame
	queries    chan func(*chat.Router)
	log        *slog.Logger
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	// startPumps runs a registered client's read and write pumps.
	startPumps func(*Client)
}

// NewHub creates a Hub around router. Call Run to start processing.
func NewHub(router *chat.Router, log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		router:     router,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame),
		queries:    make(chan func(*chat.Router)),
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.startPumps = h.runPumps
	return h
}

// Run starts the hub's main event loop. It blocks until Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case frame := <-h.inbound:
			h.handleInbound(frame)

		case query := <-h.queries:
			query(h.router)
		}
	}
}

// Register hands a freshly upgraded client to the hub.
func (h *Hub) Register(ctx context.Context, client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Roster returns the participants currently joined.
func (h *Hub) Roster(ctx context.Context) ([]chat.Participant, error) {
	return ask(ctx, h, func(r *chat.Router) []chat.Participant { return r.Roster() })
}

// Stats returns the current connection and participant counts.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	return ask(ctx, h, statsOf)
}

// Snapshot returns the roster and the counts read in the same loop turn,
// so they always agree.
func (h *Hub) Snapshot(ctx context.Context) (Snapshot, error) {
	return ask(ctx, h, func(r *chat.Router) Snapshot {
		return Snapshot{Stats: statsOf(r), Roster: r.Roster()}
	})
}

func statsOf(r *chat.Router) Stats {
	return Stats{Connections: r.Connections(), Participants: len(r.Roster())}
}

// ask runs fn on the hub loop and returns its result. The result channel is
// buffered so the loop never blocks on a caller that gave up.
func ask[T any](ctx context.Context, h *Hub, fn func(*chat.Router) T) (T, error) {
	var zero T
	result := make(chan T, 1)
	select {
	case h.queries <- func(r *chat.Router) { result <- fn(r) }:
	case <-h.done:
		return zero, ErrHubStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case v := <-result:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// forward queues one inbound frame; false once the hub has stopped.
func (h *Hub) forward(client *Client, payload []byte) bool {
	select {
	case h.inbound <- inboundFrame{client: client, payload: payload}:
		return true
	case <-h.done:
		return false
	}
}

// leave reports a client whose read side has ended.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		h.log.Warn("Received nil client registration; skipping")
		return
	}

	if err := h.router.Open(client); err != nil {
		h.log.Error("Rejecting client", "connection_id", client.ID(), "error", err)
		client.close()
		return
	}
	h.clients[client] = struct{}{}
	h.log.Info("Client registered", "connection_id", client.ID(), "addr", client.addr, "clients", len(h.clients))

	h.startPumps(client)
}

func (h *Hub) runPumps(client *Client) {
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) handleUnregister(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)

	if err := h.router.Close(client.ID()); err != nil {
		h.log.Warn("Closing unknown session", "connection_id", client.ID(), "error", err)
	}
	client.closeSend()
	h.log.Info("Client unregistered", "connection_id", client.ID(), "addr", client.addr, "clients", len(h.clients))
}

func (h *Hub) handleInbound(frame inboundFrame) {
	if _, ok := h.clients[frame.client]; !ok {
		return
	}

	err := h.router.Handle(frame.client.ID(), frame.payload)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrMalformedEvent):
		h.log.Warn("Dropping malformed event", "connection_id", frame.client.ID(), "error", err)
	default:
		h.log.Debug("Event not applied", "connection_id", frame.client.ID(), "error", err)
	}
}

// shutdownClients closes every live connection; their pumps then exit on
// their own.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections", "clients", len(h.clients))

	for client := range h.clients {
		client.close()
	}
}

// Shutdown stops the event loop and waits for all client goroutines to
// finish, or for timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown")
	h.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
	case <-timer.C:
		h.log.Warn("Hub shutdown timeout reached before the event loop stopped")
		return context.DeadlineExceeded
	}

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-timer.C:
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
