package presenter

import (
	"context"
	"log/slog"
	"sync"

	"github.com/terra-clan/clinical-sim/internal/models"
)

// DefaultBuffer is the per-subscriber queue length
const DefaultBuffer = 32

// Hub fans messages out to in-process subscribers, such as websocket connections.
// Slow subscribers lose messages instead of blocking the simulation.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
}

type subscriber struct {
	ch chan Message
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: DefaultBuffer,
	}
}

// Subscribe registers for messages about a session. The returned cancel func
// unregisters and closes the channel.
func (h *Hub) Subscribe(sessionID string) (<-chan Message, func()) {
	sub := &subscriber{ch: make(chan Message, h.buffer)}

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*subscriber]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[sessionID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Subscribers returns the number of subscribers for a session
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

func (h *Hub) broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[msg.SessionID] {
		select {
		case sub.ch <- msg:
		default:
			slog.Debug("subscriber queue full, dropping message",
				"session_id", msg.SessionID,
				"type", msg.Type,
			)
		}
	}
}

func (h *Hub) PublishSnapshot(ctx context.Context, view models.SessionView) error {
	h.broadcast(newMessage(TypeSnapshot, view.ID, view))
	return nil
}

func (h *Hub) PublishFeedback(ctx context.Context, fb models.TreatmentFeedback) error {
	h.broadcast(newMessage(TypeFeedback, fb.SessionID, fb))
	return nil
}

func (h *Hub) PublishOutcome(ctx context.Context, report OutcomeReport) error {
	h.broadcast(newMessage(TypeOutcome, report.Outcome.SessionID, report))
	return nil
}

func (h *Hub) Name() string { return "hub" }

func (h *Hub) HealthCheck(ctx context.Context) error { return nil }
