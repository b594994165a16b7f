package approval

import "context"

// RoleResolver answers whether an actor holds a given approver role.
type RoleResolver interface {
	HasRole(actor, role string) bool
}

// StaticRoles is a RoleResolver backed by a fixed actor-to-roles map.
type StaticRoles map[string][]string

// HasRole reports whether the actor was configured with the role.
func (r StaticRoles) HasRole(actor, role string) bool {
	for _, candidate := range r[actor] {
		if candidate == role {
			return true
		}
	}
	return false
}

// Engine owns approval records and their state machine. Exactly one of
// {Decide, expiry, override} succeeds per record; every other attempt on the
// same id observes ErrAlreadyDecided.
type Engine interface {
	// OnActionRequested applies policy to an inbound action. When a policy
	// governs the action type it creates a PENDING record, publishes
	// approval.requested and returns the record snapshot without waiting for
	// a decision. An ungoverned action type creates no record and surfaces
	// policy.ErrUnknownActionType.
	OnActionRequested(ctx context.Context, request *ActionRequest) (*Record, error)

	// Decide applies a human verdict. Fails with ErrNotFound, ErrAlreadyDecided
	// or ErrUnauthorized (decider does not hold the required role).
	Decide(ctx context.Context, id string, decision Decision, decidedBy, reason string) (*Record, error)

	// Lookup returns a snapshot of the record or ErrNotFound.
	Lookup(ctx context.Context, id string) (*Record, error)

	// ListPending returns snapshots of all PENDING records, CreatedAt ascending.
	ListPending(ctx context.Context) ([]*Record, error)

	// ForceTerminal transitions the record without a role check. It exists
	// for the SLA monitor (EXPIRED) and the emergency override handler
	// (OVERRIDDEN); regular callers go through Decide.
	ForceTerminal(ctx context.Context, id string, status Status, actor, detail string) (*Record, error)
}
