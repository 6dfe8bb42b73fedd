// Package streaming fans out dashboard change events to live subscribers.
package streaming

import "context"

// Event types.
const (
	EventDashboardSaved   = "dashboard.saved"
	EventDashboardDeleted = "dashboard.deleted"
)

// Event is a change to a stored dashboard.
type Event struct {
	DashboardID string `json:"dashboard_id"`
	Type        string `json:"type"`
	Revision    int64  `json:"revision,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Name        string `json:"name,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	DashboardID string   `json:"dashboard_id,omitempty"`
	EventTypes  []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for dashboard events.
type EventHub interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan Event, func(), error)
}
