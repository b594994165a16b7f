package approval

import "time"

// Status is the lifecycle state of an approval record. Transitions are
// monotonic: once a record leaves StatusPending it never changes again.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
	StatusExpired    Status = "EXPIRED"
	StatusOverridden Status = "OVERRIDDEN"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusExpired, StatusOverridden:
		return true
	}
	return false
}

// Decision is a human verdict on a pending record.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// Status returns the terminal status the decision maps to.
func (d Decision) Status() (Status, bool) {
	switch d {
	case DecisionApprove:
		return StatusApproved, true
	case DecisionReject:
		return StatusRejected, true
	}
	return "", false
}

// ActionRequest is the inbound payload asking whether an action may proceed.
type ActionRequest struct {
	TaskID      string `json:"taskId"`
	ActionType  string `json:"actionType"`
	RequestedBy string `json:"requestedBy"`
}

// Record tracks one approval from creation to its terminal state. The engine
// is the single writer; everyone else sees snapshots.
type Record struct {
	ID           string     `json:"id"`
	TaskID       string     `json:"taskId"`
	ActionType   string     `json:"actionType"`
	RequestedBy  string     `json:"requestedBy"`
	RequiredRole string     `json:"requiredRole"`
	CreatedAt    time.Time  `json:"createdAt"`
	Deadline     time.Time  `json:"deadline"` // CreatedAt + policy SLA, fixed at creation
	Status       Status     `json:"status"`
	DecidedBy    string     `json:"decidedBy,omitempty"`
	DecidedAt    *time.Time `json:"decidedAt,omitempty"`
	Reason       string     `json:"reason,omitempty"`
}

// Clone returns an independent copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	ret := *r
	if r.DecidedAt != nil {
		decidedAt := *r.DecidedAt
		ret.DecidedAt = &decidedAt
	}
	return &ret
}

// DecisionLatency returns the time between creation and the human decision,
// or false when the record was never decided by a human.
func (r *Record) DecisionLatency() (time.Duration, bool) {
	if r.DecidedAt == nil || (r.Status != StatusApproved && r.Status != StatusRejected) {
		return 0, false
	}
	return r.DecidedAt.Sub(r.CreatedAt), true
}
