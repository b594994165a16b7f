package gatekeeper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gatekeeper "github.com/corpcraft/gatekeeper"
	"github.com/corpcraft/gatekeeper/policy"
	"github.com/corpcraft/gatekeeper/service/approval"
	"github.com/corpcraft/gatekeeper/service/audit"
	"github.com/corpcraft/gatekeeper/service/emp"
	"github.com/corpcraft/gatekeeper/service/monitor"
)

func newService(t *testing.T, sla time.Duration) *gatekeeper.Service {
	t.Helper()
	config := gatekeeper.DefaultConfig()
	config.Policies = []*policy.Policy{
		{ActionType: "deploy.prod", RequiredRole: "lead", SLA: sla, AllowEmergencyOverride: true},
		{ActionType: "db.drop", RequiredRole: "dba", SLA: sla, AllowEmergencyOverride: false},
	}
	config.Roles = map[string][]string{"lead-alice": {"lead"}, "dba-dan": {"dba"}}
	config.EmergencyActors = []string{"cto-carol"}

	svc, err := gatekeeper.New(gatekeeper.WithConfig(config))
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc
}

func auditEventually(t *testing.T, svc *gatekeeper.Service, taskID string, want int) []*audit.Entry {
	t.Helper()
	var entries []*audit.Entry
	require.Eventually(t, func() bool {
		var err error
		entries, err = svc.GetAuditLog(context.Background(), taskID)
		return err == nil && len(entries) >= want
	}, 2*time.Second, 5*time.Millisecond)
	return entries
}

func TestApproveFlow(t *testing.T) {
	svc := newService(t, 5*time.Second)
	ctx := context.Background()

	rec, err := svc.SubmitAction(ctx, &approval.ActionRequest{
		TaskID: "task-1", ActionType: "deploy.prod", RequestedBy: "dev-bob",
	})
	require.NoError(t, err)
	assert.Equal(t, approval.StatusPending, rec.Status)
	assert.Equal(t, rec.CreatedAt.Add(5*time.Second), rec.Deadline)

	pending, err := svc.GetPendingApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rec.ID, pending[0].ID)

	require.NoError(t, svc.Decide(ctx, rec.ID, approval.DecisionApprove, "lead-alice", "reviewed"))

	// Exactly-once: the rerun observes the terminal state.
	err = svc.Decide(ctx, rec.ID, approval.DecisionApprove, "lead-alice", "again")
	assert.True(t, errors.Is(err, approval.ErrAlreadyDecided))

	pending, err = svc.GetPendingApprovals(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "terminal records never appear in the pending set")

	entries := auditEventually(t, svc, "task-1", 2)
	assert.Equal(t, approval.TopicApprovalRequested, entries[0].EventKind)
	assert.Equal(t, approval.TopicApprovalDecided, entries[1].EventKind)
	assert.Equal(t, "lead-alice", entries[1].Actor)
	for i, entry := range entries {
		assert.Equal(t, uint64(i+1), entry.Seq)
	}
}

func TestExpiryFlow(t *testing.T) {
	svc := newService(t, 100*time.Millisecond)
	ctx := context.Background()

	rec, err := svc.SubmitAction(ctx, &approval.ActionRequest{
		TaskID: "task-2", ActionType: "deploy.prod", RequestedBy: "dev-bob",
	})
	require.NoError(t, err)

	entries := auditEventually(t, svc, "task-2", 2)
	expired := entries[len(entries)-1]
	assert.Equal(t, approval.TopicApprovalExpired, expired.EventKind)
	assert.Equal(t, monitor.Actor, expired.Actor)
	assert.Equal(t, "deadline exceeded", expired.Detail)

	err = svc.Decide(ctx, rec.ID, approval.DecisionApprove, "lead-alice", "too late")
	assert.True(t, errors.Is(err, approval.ErrAlreadyDecided), "expiry is final")
}

func TestOverrideFlow(t *testing.T) {
	svc := newService(t, 5*time.Second)
	ctx := context.Background()

	rec, err := svc.SubmitAction(ctx, &approval.ActionRequest{
		TaskID: "task-3", ActionType: "deploy.prod", RequestedBy: "dev-bob",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Override(ctx, rec.ID, "cto-carol", "prod incident"))

	entries := auditEventually(t, svc, "task-3", 2)
	overridden := entries[len(entries)-1]
	assert.Equal(t, approval.TopicApprovalOverridden, overridden.EventKind)
	assert.True(t, overridden.RequiresPostHocReview)
	assert.Equal(t, "cto-carol", overridden.Actor)
}

func TestOverrideForbiddenByPolicy(t *testing.T) {
	svc := newService(t, 5*time.Second)
	ctx := context.Background()

	rec, err := svc.SubmitAction(ctx, &approval.ActionRequest{
		TaskID: "task-4", ActionType: "db.drop", RequestedBy: "dev-bob",
	})
	require.NoError(t, err)

	err = svc.Override(ctx, rec.ID, "cto-carol", "hurry")
	assert.True(t, errors.Is(err, emp.ErrOverrideNotPermitted))

	pending, err := svc.GetPendingApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, approval.StatusPending, pending[0].Status)
}

func TestActionRequestedViaBus(t *testing.T) {
	svc := newService(t, 5*time.Second)
	ctx := context.Background()

	event := &approval.Event{Request: &approval.ActionRequest{
		TaskID: "task-5", ActionType: "deploy.prod", RequestedBy: "dev-bob",
	}}
	require.NoError(t, svc.Events().Publish(ctx, approval.TopicActionRequested, event))

	require.Eventually(t, func() bool {
		pending, err := svc.GetPendingApprovals(ctx)
		return err == nil && len(pending) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestUnknownActionTypePassesThrough(t *testing.T) {
	svc := newService(t, 5*time.Second)
	ctx := context.Background()

	rec, err := svc.SubmitAction(ctx, &approval.ActionRequest{
		TaskID: "task-6", ActionType: "coffee.brew", RequestedBy: "dev-bob",
	})
	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, policy.ErrUnknownActionType))

	pending, err := svc.GetPendingApprovals(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStatsScenario(t *testing.T) {
	svc := newService(t, 120*time.Millisecond)
	ctx := context.Background()

	decided, err := svc.SubmitAction(ctx, &approval.ActionRequest{
		TaskID: "task-7", ActionType: "deploy.prod", RequestedBy: "dev-bob",
	})
	require.NoError(t, err)
	require.NoError(t, svc.Decide(ctx, decided.ID, approval.DecisionApprove, "lead-alice", "ok"))

	_, err = svc.SubmitAction(ctx, &approval.ActionRequest{
		TaskID: "task-8", ActionType: "deploy.prod", RequestedBy: "dev-bob",
	})
	require.NoError(t, err)

	// Wait for the second request to expire and reach the log.
	require.Eventually(t, func() bool {
		stats, err := svc.GetApprovalStats(ctx)
		return err == nil && stats.Expired == 1 && stats.Decided == 1
	}, 2*time.Second, 10*time.Millisecond)

	stats, err := svc.GetApprovalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Decided)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 0, stats.Overridden)
	assert.Equal(t, 1, stats.ByDecider["lead-alice"])
	assert.Positive(t, stats.MeanDecisionLatency)
	assert.Equal(t, stats.MeanDecisionLatency, stats.P95DecisionLatency, "single human decision")
}

func TestLoadConfig(t *testing.T) {
	data := []byte(`
queue:
  vendor: memory
audit:
  backend: memory
policies:
  - actionType: deploy.prod
    requiredRole: lead
    sla: 5s
    allowEmergencyOverride: true
roles:
  lead-alice: [lead]
emergencyActors: [cto-carol]
metrics:
  enabled: true
`)
	config, err := gatekeeper.LoadConfig(data)
	require.NoError(t, err)
	require.NoError(t, config.Validate())
	assert.Len(t, config.Policies, 1)
	assert.Equal(t, 5*time.Second, config.Policies[0].SLA)
	assert.True(t, config.Metrics.Enabled)

	svc, err := gatekeeper.New(gatekeeper.WithConfig(config))
	require.NoError(t, err)
	assert.NotNil(t, svc.Metrics())
}

func TestConfigValidation(t *testing.T) {
	config := gatekeeper.DefaultConfig()
	config.Queue.Vendor = "fs"
	assert.Error(t, config.Validate(), "fs queue needs a base URL")

	config = gatekeeper.DefaultConfig()
	config.Audit.Backend = "postgres"
	assert.Error(t, config.Validate())
}
