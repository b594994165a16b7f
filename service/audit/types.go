package audit

import (
	"context"
	"time"

	"github.com/corpcraft/gatekeeper/service/approval"
)

// Entry is one immutable audit record of a lifecycle event. Entries are never
// updated or deleted; Seq defines the total order independent of wall-clock
// ties.
type Entry struct {
	Seq        uint64          `json:"seq"`
	Timestamp  time.Time       `json:"timestamp"`
	ApprovalID string          `json:"approvalId"`
	TaskID     string          `json:"taskId"`
	EventKind  string          `json:"eventKind"` // the bus topic, e.g. approval.decided
	Status     approval.Status `json:"status,omitempty"`
	Actor      string          `json:"actor,omitempty"`
	Detail     string          `json:"detail,omitempty"`

	// RequiresPostHocReview marks an emergency override pending mandatory
	// human review. Set on append, never cleared.
	RequiresPostHocReview bool `json:"requiresPostHocReview,omitempty"`

	// DecisionLatency is the request-to-decision time, recorded for human
	// decisions only.
	DecisionLatency time.Duration `json:"decisionLatency,omitempty"`
}

// Clone returns an independent copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	ret := *e
	return &ret
}

// Stats are aggregate figures recomputed from the full entry set on every
// query; nothing here is persisted.
type Stats struct {
	TotalEntries int `json:"totalEntries"`

	// Decided counts human decisions (approved + rejected).
	Decided    int `json:"decided"`
	Approved   int `json:"approved"`
	Rejected   int `json:"rejected"`
	Expired    int `json:"expired"`
	Overridden int `json:"overridden"`

	// PendingReview counts override entries awaiting post-hoc review.
	PendingReview int `json:"pendingReview"`

	ByDecider map[string]int `json:"byDecider,omitempty"`

	// Latency aggregates cover human decisions only; expiry and override
	// carry no human response time.
	MeanDecisionLatency time.Duration `json:"meanDecisionLatency"`
	P95DecisionLatency  time.Duration `json:"p95DecisionLatency"`
}

// Store is the durability contract of the audit log: append-only writes plus
// a full scan. Implementations need not be safe for concurrent Append; the
// log serialises writes through a single appender.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context) ([]*Entry, error)
}
