// Package queue defines message payloads exchanged over the message broker.
package queue

// RequestDecidedEvent is published when a request transition commits
// with a real state change; no-op re-applications are not announced.
// It carries enough information for downstream consumers to log,
// notify, or feed analytics without querying the primary database.
// EventID is a fresh UUID so consumers can spot redeliveries.
type RequestDecidedEvent struct {
	EventID     string `json:"event_id"`
	RequestID   uint64 `json:"request_id"`
	Title       string `json:"title"`
	RequestedBy string `json:"requested_by"`
	Status      string `json:"status"`
	CopiesLeft  *int   `json:"copies_left,omitempty"`
	DecidedAt   string `json:"decided_at"`
}
