package presenter

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/terra-clan/clinical-sim/internal/models"
)

// Registry fans every message out to the registered sinks. A failing sink is
// logged and does not stop delivery to the others.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

var _ Sink = (*Registry)(nil)

// NewRegistry creates a registry holding the given sinks
func NewRegistry(sinks ...Sink) *Registry {
	r := &Registry{sinks: make(map[string]Sink)}
	for _, s := range sinks {
		r.Register(s)
	}
	return r
}

// Register adds a sink, replacing one with the same name
func (r *Registry) Register(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[sink.Name()] = sink
}

// Unregister removes a sink by name
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, name)
}

// List returns the registered sink names in order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) each(kind, sessionID string, fn func(Sink) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, sink := range r.sinks {
		if err := fn(sink); err != nil {
			slog.Warn("presentation sink failed",
				"sink", name,
				"type", kind,
				"session_id", sessionID,
				"error", err,
			)
		}
	}
	return nil
}

func (r *Registry) PublishSnapshot(ctx context.Context, view models.SessionView) error {
	return r.each(TypeSnapshot, view.ID, func(s Sink) error { return s.PublishSnapshot(ctx, view) })
}

func (r *Registry) PublishFeedback(ctx context.Context, fb models.TreatmentFeedback) error {
	return r.each(TypeFeedback, fb.SessionID, func(s Sink) error { return s.PublishFeedback(ctx, fb) })
}

func (r *Registry) PublishOutcome(ctx context.Context, report OutcomeReport) error {
	return r.each(TypeOutcome, report.Outcome.SessionID, func(s Sink) error { return s.PublishOutcome(ctx, report) })
}

func (r *Registry) Name() string { return "registry" }

// HealthCheck fails if any registered sink is unhealthy
func (r *Registry) HealthCheck(ctx context.Context) error {
	for _, err := range r.HealthCheckAll(ctx) {
		if err != nil {
			return err
		}
	}
	return nil
}

// HealthCheckAll checks health of all registered sinks
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make(map[string]error, len(r.sinks))
	for name, sink := range r.sinks {
		results[name] = sink.HealthCheck(ctx)
	}
	return results
}
