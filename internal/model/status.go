package model

import "strings"

// Status is the lifecycle state of a book request.  Pending is the
// only state a request can be created in.  Approved and Rejected are
// terminal in normal flow: the engine never reclaims an approved copy
// when a request is later moved away from Approved.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// ParseStatus validates a status string from an external caller.  The
// match is case-insensitive; the canonical form is returned.  Any
// other value is rejected before a single store access happens.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, true
	case "approved":
		return StatusApproved, true
	case "rejected":
		return StatusRejected, true
	}
	return "", false
}

// Valid reports whether s is one of the three known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}
