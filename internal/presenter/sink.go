// Package presenter pushes session state to display collaborators. Sinks only read core state.
package presenter

import (
	"context"
	"time"

	"github.com/terra-clan/clinical-sim/internal/models"
)

// Message types carried on every channel
const (
	TypeSnapshot = "snapshot"
	TypeFeedback = "feedback"
	TypeOutcome  = "outcome"
)

// Message is the envelope delivered to subscribers
type Message struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Data      any       `json:"data"`
	SentAt    time.Time `json:"sent_at"`
}

// OutcomeReport is an ended session together with the badges it earned
type OutcomeReport struct {
	Outcome models.SessionOutcome `json:"outcome"`
	Badges  []models.Badge        `json:"badges"`
}

// Sink receives snapshots, treatment feedback and outcomes
type Sink interface {
	PublishSnapshot(ctx context.Context, view models.SessionView) error
	PublishFeedback(ctx context.Context, fb models.TreatmentFeedback) error
	PublishOutcome(ctx context.Context, report OutcomeReport) error

	// Name identifies the sink in logs
	Name() string

	// HealthCheck checks if the sink's backend is available
	HealthCheck(ctx context.Context) error
}

func newMessage(typ, sessionID string, data any) Message {
	return Message{
		Type:      typ,
		SessionID: sessionID,
		Data:      data,
		SentAt:    time.Now().UTC(),
	}
}
