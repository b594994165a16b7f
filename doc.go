// Package gatekeeper provides a policy-driven approval and audit subsystem:
// actions are gated behind role-based sign-off, pending approvals are expired
// against an SLA deadline, emergency overrides bypass the gate under flagged
// conditions, and every lifecycle event lands in an append-only audit log.
//
// The subsystem is composed of pluggable service layers around a shared
// event bus:
//
//   - approval – record state machine and decision API
//   - monitor  – deadline-ordered SLA expiry
//   - emp      – emergency override with mandatory post-hoc review
//   - audit    – immutable, statistically queryable trail
//
// Hosts embed the high-level Service façade exposed by this package:
//
//	svc, _ := gatekeeper.New(gatekeeper.WithConfig(cfg))
//	_ = svc.Start(ctx)
//	rec, _ := svc.SubmitAction(ctx, &approval.ActionRequest{TaskID: "t1", ActionType: "deploy.prod", RequestedBy: "dev"})
//	_ = svc.Decide(ctx, rec.ID, approval.DecisionApprove, "lead-alice", "ship it")
//	entries, _ := svc.GetAuditLog(ctx, "t1")
//
// See the individual sub-packages for details.
package gatekeeper
