package permission

import (
	"time"

	"github.com/google/uuid"

	"github.com/caplock-dev/caplock/internal/capability"
)

// RequestStatus is the state of an approval request. Pending is the only
// non-terminal state; a request is never revived once resolved.
type RequestStatus int

const (
	StatusPending RequestStatus = iota
	StatusApproved
	StatusDenied
	StatusExpired
)

// String returns a human-readable name for the status.
func (s RequestStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusDenied:
		return "denied"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Request is one queued ask for a capability that the current trust level
// and grants do not cover. It is resolved by an operator through
// ApproveRequest/DenyRequest, or expired by Cleanup.
type Request struct {
	ID          string
	Context     string
	Capability  capability.Capability
	Resource    string
	Reason      string
	RequestedAt time.Time
	Status      RequestStatus
}

// newRequest creates a pending request.
func newRequest(context string, cap capability.Capability, resource, reason string, now time.Time) *Request {
	return &Request{
		ID:          uuid.NewString(),
		Context:     context,
		Capability:  cap,
		Resource:    resource,
		Reason:      reason,
		RequestedAt: now,
		Status:      StatusPending,
	}
}
