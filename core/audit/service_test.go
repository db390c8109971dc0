package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lop69/BELL-SYSTEM-V2/core/audit"
	logsvc "github.com/lop69/BELL-SYSTEM-V2/services/logger"
	inmemdb "github.com/lop69/BELL-SYSTEM-V2/storage/database/inmem"
)

func TestService_Log(t *testing.T) {
	repo := inmemdb.NewAuditRepository(inmemdb.Open())
	svc := audit.NewSyncService(repo, logsvc.NewNopLogger())
	ctx := context.Background()

	svc.Log("", audit.ActionCreateBell, nil)
	entries, err := svc.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries, "anonymous actions are not recorded")

	svc.Log("u1", audit.ActionCreateBell, nil)
	svc.Log("u1", audit.ActionDeleteBell, map[string]interface{}{"bell_id": "b1"})

	entries, err = svc.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionDeleteBell, entries[0].Action, "newest first")
	assert.Equal(t, "b1", entries[0].Details["bell_id"])
	assert.Equal(t, map[string]interface{}{}, entries[1].Details)
	assert.Equal(t, "u1", entries[1].UserID)

	entries, err = svc.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestService_LogAsync(t *testing.T) {
	repo := inmemdb.NewAuditRepository(inmemdb.Open())
	svc := audit.NewService(repo, logsvc.NewNopLogger())

	svc.Log("u1", audit.ActionTriggerTestBell, nil)
	assert.Eventually(t, func() bool {
		entries, err := svc.Recent(context.Background(), 0)
		return err == nil && len(entries) == 1
	}, time.Second, 10*time.Millisecond)
}
