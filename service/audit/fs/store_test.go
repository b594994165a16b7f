package fs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/corpcraft/gatekeeper/service/approval"
	"github.com/corpcraft/gatekeeper/service/audit"
)

func TestAppendAndList(t *testing.T) {
	store, err := New(afs.New(), "mem://localhost/gatekeeper/audit/basic")
	require.NoError(t, err)

	ctx := context.Background()
	first := &audit.Entry{
		Seq: 1, Timestamp: time.Now().UTC(), ApprovalID: "a-1", TaskID: "task-1",
		EventKind: approval.TopicApprovalRequested,
	}
	second := &audit.Entry{
		Seq: 2, Timestamp: time.Now().UTC(), ApprovalID: "a-1", TaskID: "task-1",
		EventKind: approval.TopicApprovalOverridden, Status: approval.StatusOverridden,
		Actor: "cto-carol", RequiresPostHocReview: true,
	}
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(1), entries[0].Seq)
	assert.Equal(t, uint64(2), entries[1].Seq)
	assert.True(t, entries[1].RequiresPostHocReview)
}

func TestAppendRefusesRewrite(t *testing.T) {
	store, err := New(afs.New(), "mem://localhost/gatekeeper/audit/rewrite")
	require.NoError(t, err)

	ctx := context.Background()
	entry := &audit.Entry{Seq: 1, ApprovalID: "a-1", EventKind: approval.TopicApprovalRequested}
	require.NoError(t, store.Append(ctx, entry))
	assert.Error(t, store.Append(ctx, entry), "entries are immutable")
}

func TestEmptyBaseURL(t *testing.T) {
	_, err := New(afs.New(), "")
	assert.Error(t, err)
}
