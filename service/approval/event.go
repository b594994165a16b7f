package approval

// Event bus topics produced and consumed by the subsystem.
const (
	// TopicActionRequested is the inbound topic carrying ActionRequest
	// payloads from external actors.
	TopicActionRequested = "action.requested"

	TopicApprovalRequested  = "approval.requested"
	TopicApprovalDecided    = "approval.decided"
	TopicApprovalExpired    = "approval.expired"
	TopicApprovalOverridden = "approval.overridden"
)

// Event is the payload published on every approval topic. Request is set on
// action.requested; Record on the approval.* topics.
type Event struct {
	Request *ActionRequest `json:"request,omitempty"`
	Record  *Record        `json:"record,omitempty"`
	Actor   string         `json:"actor,omitempty"`
	Detail  string         `json:"detail,omitempty"`

	// RequiresPostHocReview marks an emergency override for mandatory human
	// review downstream. Set on approval.overridden, never cleared.
	RequiresPostHocReview bool `json:"requiresPostHocReview,omitempty"`
}
