package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/werkbank/fakturo/internal/audit/domain"
	auditservice "github.com/werkbank/fakturo/internal/audit/service"
	"github.com/werkbank/fakturo/internal/clock"
	"github.com/werkbank/fakturo/internal/config"
	dunningdomain "github.com/werkbank/fakturo/internal/dunning/domain"
	dunningrepository "github.com/werkbank/fakturo/internal/dunning/repository"
	invoicedomain "github.com/werkbank/fakturo/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db    *gorm.DB
	clock *clock.FakeClock
	svc   invoicedomain.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&invoicedomain.Invoice{},
		&invoicedomain.Position{},
		&dunningdomain.Notice{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})

	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fakeClock,
		BillingCfg:  config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		AuditSvc:    auditSvc,
		DunningRepo: dunningrepository.Provide(),
	})

	return &testEnv{db: db, clock: fakeClock, svc: svc}
}

func (e *testEnv) createDraft(t *testing.T, positions []invoicedomain.PositionInput) invoicedomain.Invoice {
	t.Helper()
	node, _ := snowflake.NewNode(2)
	invoice, err := e.svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		CustomerID: node.Generate().String(),
		Positions:  positions,
	})
	require.NoError(t, err)
	return invoice
}

func materialAndLabor() []invoicedomain.PositionInput {
	return []invoicedomain.PositionInput{
		{Kind: invoicedomain.PositionKindMaterial, Description: "Kupferrohr 22mm", Quantity: 1, Unit: "pc", UnitPriceCents: 12000},
		{Kind: invoicedomain.PositionKindLabor, Description: "Montage", Quantity: 2, Unit: "h", UnitPriceCents: 4000},
	}
}

func TestCreate_DerivesTotalsAndDueDate(t *testing.T) {
	env := newTestEnv(t)

	node, _ := snowflake.NewNode(2)
	invoice, err := env.svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		CustomerID:      node.Generate().String(),
		Positions:       materialAndLabor(),
		DiscountPercent: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, int64(1), invoice.InvoiceNumber)
	assert.Equal(t, int64(20000), invoice.SubtotalCents)
	assert.Equal(t, int64(2000), invoice.DiscountCents)
	assert.Equal(t, int64(3420), invoice.VATCents)
	assert.Equal(t, int64(21420), invoice.GrossCents)
	assert.Equal(t, 19.0, invoice.VATRate)
	assert.Equal(t, 14, invoice.PaymentTermDays)
	assert.Equal(t, invoice.IssuedAt.AddDate(0, 0, 14), invoice.DueAt)
	assert.Len(t, invoice.Positions, 2)
}

func TestCreate_SequentialInvoiceNumbers(t *testing.T) {
	env := newTestEnv(t)

	first := env.createDraft(t, materialAndLabor())
	second := env.createDraft(t, materialAndLabor())
	assert.Equal(t, first.InvoiceNumber+1, second.InvoiceNumber)
}

func TestCreate_RejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	node, _ := snowflake.NewNode(2)

	_, err := env.svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		CustomerID: "not-a-number",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidCustomer)

	_, err = env.svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		CustomerID: node.Generate().String(),
		Type:       "proforma",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidType)

	negQty := []invoicedomain.PositionInput{{Kind: invoicedomain.PositionKindLabor, Quantity: -1, UnitPriceCents: 100}}
	_, err = env.svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		CustomerID: node.Generate().String(),
		Positions:  negQty,
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidQuantity)
}

func TestUpdateDraft_RecomputesEverything(t *testing.T) {
	env := newTestEnv(t)
	invoice := env.createDraft(t, materialAndLabor())

	newTerm := 30
	updated, err := env.svc.UpdateDraft(context.Background(), invoicedomain.UpdateDraftRequest{
		ID: invoice.ID.String(),
		Positions: []invoicedomain.PositionInput{
			{Kind: invoicedomain.PositionKindFlatFee, Description: "Anfahrt", Quantity: 1, UnitPriceCents: 5000},
		},
		PaymentTermDays: &newTerm,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5000), updated.SubtotalCents)
	assert.Equal(t, int64(950), updated.VATCents)
	assert.Equal(t, int64(5950), updated.GrossCents)
	assert.Equal(t, updated.IssuedAt.AddDate(0, 0, 30), updated.DueAt)
	assert.Len(t, updated.Positions, 1)

	// Old positions are gone.
	var count int64
	require.NoError(t, env.db.Table("invoice_positions").Where("invoice_id = ?", invoice.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpdateDraft_OnlyDrafts(t *testing.T) {
	env := newTestEnv(t)
	invoice := env.createDraft(t, materialAndLabor())

	_, err := env.svc.Send(context.Background(), invoice.ID.String())
	require.NoError(t, err)

	_, err = env.svc.UpdateDraft(context.Background(), invoicedomain.UpdateDraftRequest{
		ID:        invoice.ID.String(),
		Positions: materialAndLabor(),
	})
	assert.ErrorIs(t, err, invoicedomain.ErrNotDraft)
}

func TestSend_RequiresPositions(t *testing.T) {
	env := newTestEnv(t)
	invoice := env.createDraft(t, nil)

	_, err := env.svc.Send(context.Background(), invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrNoPositions)
}

func TestSend_OnlyFromDraft(t *testing.T) {
	env := newTestEnv(t)
	invoice := env.createDraft(t, materialAndLabor())

	sent, err := env.svc.Send(context.Background(), invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, sent.Status)

	_, err = env.svc.Send(context.Background(), invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)
}

func TestCancel_ClosesOpenNotices(t *testing.T) {
	env := newTestEnv(t)
	invoice := env.createDraft(t, materialAndLabor())
	_, err := env.svc.Send(context.Background(), invoice.ID.String())
	require.NoError(t, err)

	node, _ := snowflake.NewNode(3)
	notice := dunningdomain.Notice{
		ID:           node.Generate(),
		NoticeNumber: 1,
		InvoiceID:    invoice.ID,
		Level:        1,
		Status:       dunningdomain.NoticeStatusSent,
		Approval:     dunningdomain.ApprovalApproved,
		DueAt:        env.clock.Now(),
		CreatedAt:    env.clock.Now(),
		UpdatedAt:    env.clock.Now(),
	}
	require.NoError(t, env.db.Create(&notice).Error)

	cancelled, err := env.svc.Cancel(context.Background(), invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusCancelled, cancelled.Status)

	var reloaded dunningdomain.Notice
	require.NoError(t, env.db.First(&reloaded, "id = ?", notice.ID).Error)
	assert.Equal(t, dunningdomain.NoticeStatusCancelled, reloaded.Status)
}

func TestCancel_PaidIsFinal(t *testing.T) {
	env := newTestEnv(t)
	invoice := env.createDraft(t, materialAndLabor())
	_, err := env.svc.Send(context.Background(), invoice.ID.String())
	require.NoError(t, err)

	require.NoError(t, env.db.Exec(
		`UPDATE invoices SET status = ?, paid_cents = gross_cents WHERE id = ?`,
		invoicedomain.InvoiceStatusPaid, invoice.ID,
	).Error)

	_, err = env.svc.Cancel(context.Background(), invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrAlreadyPaid)
}

func TestMarkOverdue_SweepsOnlyPastDueSent(t *testing.T) {
	env := newTestEnv(t)

	due := env.createDraft(t, materialAndLabor())
	_, err := env.svc.Send(context.Background(), due.ID.String())
	require.NoError(t, err)

	stillDraft := env.createDraft(t, materialAndLabor())

	// Before the due date nothing moves.
	moved, err := env.svc.MarkOverdue(context.Background(), env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), moved)

	env.clock.Advance(15 * 24 * time.Hour)
	moved, err = env.svc.MarkOverdue(context.Background(), env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)

	reloaded, err := env.svc.GetByID(context.Background(), due.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, reloaded.Status)

	untouched, err := env.svc.GetByID(context.Background(), stillDraft.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, untouched.Status)

	// The sweep is idempotent.
	moved, err = env.svc.MarkOverdue(context.Background(), env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), moved)
}

func TestList_FiltersByStatusAndDueWindow(t *testing.T) {
	env := newTestEnv(t)

	first := env.createDraft(t, materialAndLabor())
	_, err := env.svc.Send(context.Background(), first.ID.String())
	require.NoError(t, err)
	env.createDraft(t, materialAndLabor())

	sentStatus := invoicedomain.InvoiceStatusSent
	resp, err := env.svc.List(context.Background(), invoicedomain.ListInvoiceRequest{Status: &sentStatus})
	require.NoError(t, err)
	require.Len(t, resp.Invoices, 1)
	assert.Equal(t, first.ID, resp.Invoices[0].ID)

	horizon := env.clock.Now().AddDate(0, 0, 1)
	resp, err = env.svc.List(context.Background(), invoicedomain.ListInvoiceRequest{DueTo: &horizon})
	require.NoError(t, err)
	assert.Empty(t, resp.Invoices)
}

func TestGetByID_NotFound(t *testing.T) {
	env := newTestEnv(t)
	node, _ := snowflake.NewNode(4)

	_, err := env.svc.GetByID(context.Background(), node.Generate().String())
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
}
