package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/werkbank/fakturo/internal/audit/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) auditdomain.Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})
}

func TestAuditLogAndList_Filters(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AuditLog(ctx, auditdomain.ActorTypeUser, "u-1", "invoice.sent", "invoice", "100", map[string]any{"gross_cents": int64(21420)}))
	require.NoError(t, svc.AuditLog(ctx, auditdomain.ActorTypeUser, "u-1", "invoice.cancelled", "invoice", "100", nil))
	require.NoError(t, svc.AuditLog(ctx, auditdomain.ActorTypeSystem, "", "notice.sent", "dunning_notice", "200", nil))

	all, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Logs, 3)

	byAction, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "invoice.sent"})
	require.NoError(t, err)
	require.Len(t, byAction.Logs, 1)
	assert.Equal(t, "invoice", byAction.Logs[0].TargetType)
	assert.Equal(t, "100", byAction.Logs[0].TargetID)
	assert.Equal(t, string(auditdomain.ActorTypeUser), byAction.Logs[0].ActorType)

	byTarget, err := svc.List(ctx, auditdomain.ListAuditLogRequest{TargetType: "invoice", TargetID: "100"})
	require.NoError(t, err)
	assert.Len(t, byTarget.Logs, 2)

	none, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "invoice.paid"})
	require.NoError(t, err)
	assert.Empty(t, none.Logs)
}

func TestList_AppliesLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.AuditLog(ctx, auditdomain.ActorTypeSystem, "", "invoice.overdue", "invoice", fmt.Sprintf("%d", i), nil))
	}

	limited, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited.Logs, 2)
}
