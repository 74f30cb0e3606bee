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
	dunningdomain "github.com/werkbank/fakturo/internal/dunning/domain"
	"github.com/werkbank/fakturo/internal/dunning/repository"
	invoicedomain "github.com/werkbank/fakturo/internal/invoice/domain"
	paymentdomain "github.com/werkbank/fakturo/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   paymentdomain.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&invoicedomain.Invoice{},
		&dunningdomain.Notice{},
		&paymentdomain.Payment{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
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
		DunningRepo: repository.Provide(),
		AuditSvc:    auditSvc,
	})

	return &testEnv{db: db, node: node, clock: fakeClock, svc: svc}
}

func (e *testEnv) insertInvoice(t *testing.T, status invoicedomain.InvoiceStatus, grossCents, paidCents int64) invoicedomain.Invoice {
	t.Helper()
	now := e.clock.Now()
	invoice := invoicedomain.Invoice{
		ID:              e.node.Generate(),
		InvoiceNumber:   int64(e.node.Generate()),
		Type:            invoicedomain.InvoiceTypeFull,
		CustomerID:      e.node.Generate(),
		Status:          status,
		VATRate:         19,
		SubtotalCents:   grossCents,
		NetCents:        grossCents,
		GrossCents:      grossCents,
		PaidCents:       paidCents,
		IssuedAt:        now.AddDate(0, 0, -30),
		PaymentTermDays: 14,
		DueAt:           now.AddDate(0, 0, -16),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, e.db.Create(&invoice).Error)
	return invoice
}

func (e *testEnv) insertNotice(t *testing.T, invoiceID snowflake.ID, level int, status dunningdomain.NoticeStatus) dunningdomain.Notice {
	t.Helper()
	now := e.clock.Now()
	notice := dunningdomain.Notice{
		ID:              e.node.Generate(),
		NoticeNumber:    int64(e.node.Generate()),
		InvoiceID:       invoiceID,
		Level:           level,
		Status:          status,
		Approval:        dunningdomain.ApprovalApproved,
		TotalClaimCents: 10000,
		DueAt:           now.AddDate(0, 0, 7),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, e.db.Create(&notice).Error)
	return notice
}

func TestRecordPayment_FullPaymentSettlesDunningChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	invoice := env.insertInvoice(t, invoicedomain.InvoiceStatusOverdue, 21420, 0)
	require.NoError(t, env.db.Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).Update("dunning_level", 2).Error)
	env.insertNotice(t, invoice.ID, 1, dunningdomain.NoticeStatusSent)
	env.insertNotice(t, invoice.ID, 2, dunningdomain.NoticeStatusSent)

	result, err := env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   invoice.ID.String(),
		AmountCents: 21420,
	})
	require.NoError(t, err)

	assert.Equal(t, invoicedomain.InvoiceStatusPaid, result.Invoice.Status)
	assert.Equal(t, int64(21420), result.Invoice.PaidCents)
	require.NotNil(t, result.Invoice.PaidAt)
	assert.Equal(t, env.clock.Now(), result.Invoice.PaidAt.UTC())
	assert.Equal(t, int64(2), result.Settled)
	assert.Equal(t, paymentdomain.MethodBankTransfer, result.Payment.Method)
	assert.Equal(t, env.clock.Now(), result.Payment.ReceivedAt.UTC())

	var notices []dunningdomain.Notice
	require.NoError(t, env.db.Where("invoice_id = ?", invoice.ID).Find(&notices).Error)
	require.Len(t, notices, 2)
	for _, n := range notices {
		assert.Equal(t, dunningdomain.NoticeStatusSettled, n.Status)
	}

	var stored paymentdomain.Payment
	require.NoError(t, env.db.First(&stored, "invoice_id = ?", invoice.ID).Error)
	assert.Equal(t, int64(21420), stored.AmountCents)
}

func TestRecordPayment_PartialPaymentsAccumulate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	invoice := env.insertInvoice(t, invoicedomain.InvoiceStatusSent, 20000, 0)

	first, err := env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   invoice.ID.String(),
		AmountCents: 5000,
		Method:      paymentdomain.MethodCash,
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, first.Invoice.Status)
	assert.Equal(t, int64(5000), first.Invoice.PaidCents)
	require.NotNil(t, first.Invoice.PaidAt)
	assert.Equal(t, env.clock.Now(), first.Invoice.PaidAt.UTC())
	assert.Equal(t, int64(0), first.Settled)

	second, err := env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   invoice.ID.String(),
		AmountCents: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, second.Invoice.Status)
	assert.Equal(t, int64(10000), second.Invoice.PaidCents)

	last, err := env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   invoice.ID.String(),
		AmountCents: 10000,
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, last.Invoice.Status)
	assert.Equal(t, int64(20000), last.Invoice.PaidCents)
	assert.NotNil(t, last.Invoice.PaidAt)

	var count int64
	require.NoError(t, env.db.Model(&paymentdomain.Payment{}).
		Where("invoice_id = ?", invoice.ID).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestRecordPayment_OverpaymentStillMarksPaid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	invoice := env.insertInvoice(t, invoicedomain.InvoiceStatusSent, 10000, 0)

	result, err := env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   invoice.ID.String(),
		AmountCents: 12000,
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, result.Invoice.Status)
	assert.Equal(t, int64(12000), result.Invoice.PaidCents)
}

func TestRecordPayment_PaidAtTracksSuppliedPaymentDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	invoice := env.insertInvoice(t, invoicedomain.InvoiceStatusSent, 20000, 0)
	backdated := time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC)

	// A partial payment already stamps the invoice with its payment date.
	partial, err := env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   invoice.ID.String(),
		AmountCents: 5000,
		ReceivedAt:  &backdated,
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, partial.Invoice.Status)
	require.NotNil(t, partial.Invoice.PaidAt)
	assert.Equal(t, backdated, partial.Invoice.PaidAt.UTC())

	// Settling the balance with a backdated bank transfer keeps the
	// supplied date, not the server clock.
	settling := time.Date(2026, 3, 25, 16, 30, 0, 0, time.UTC)
	full, err := env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   invoice.ID.String(),
		AmountCents: 15000,
		ReceivedAt:  &settling,
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, full.Invoice.Status)
	require.NotNil(t, full.Invoice.PaidAt)
	assert.Equal(t, settling, full.Invoice.PaidAt.UTC())
	assert.NotEqual(t, env.clock.Now(), full.Invoice.PaidAt.UTC())

	var stored invoicedomain.Invoice
	require.NoError(t, env.db.First(&stored, "id = ?", invoice.ID).Error)
	require.NotNil(t, stored.PaidAt)
	assert.Equal(t, settling, stored.PaidAt.UTC())
}

func TestRecordPayment_ExplicitReceivedAtAndReference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	invoice := env.insertInvoice(t, invoicedomain.InvoiceStatusSent, 10000, 0)
	receivedAt := time.Date(2026, 3, 28, 8, 30, 0, 0, time.UTC)

	result, err := env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   invoice.ID.String(),
		AmountCents: 10000,
		Method:      paymentdomain.MethodBankTransfer,
		Reference:   "  RE-2026-0042  ",
		ReceivedAt:  &receivedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, receivedAt, result.Payment.ReceivedAt.UTC())
	assert.Equal(t, "RE-2026-0042", result.Payment.Reference)
}

func TestRecordPayment_RejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	invoice := env.insertInvoice(t, invoicedomain.InvoiceStatusSent, 10000, 0)

	_, err := env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   invoice.ID.String(),
		AmountCents: 0,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   invoice.ID.String(),
		AmountCents: -500,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   invoice.ID.String(),
		AmountCents: 100,
		Method:      paymentdomain.PaymentMethod("voucher"),
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidMethod)

	_, err = env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   "not-an-id",
		AmountCents: 100,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidInvoiceID)
}

func TestRecordPayment_InvoiceStateGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	paid := env.insertInvoice(t, invoicedomain.InvoiceStatusPaid, 10000, 10000)
	_, err := env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   paid.ID.String(),
		AmountCents: 100,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrAlreadyPaid)

	draft := env.insertInvoice(t, invoicedomain.InvoiceStatusDraft, 10000, 0)
	_, err = env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   draft.ID.String(),
		AmountCents: 100,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvoiceNotOpen)

	cancelled := env.insertInvoice(t, invoicedomain.InvoiceStatusCancelled, 10000, 0)
	_, err = env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   cancelled.ID.String(),
		AmountCents: 100,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvoiceNotOpen)

	_, err = env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   env.node.Generate().String(),
		AmountCents: 100,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvoiceNotFound)
}

func TestListByInvoice_NewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	invoice := env.insertInvoice(t, invoicedomain.InvoiceStatusSent, 20000, 0)

	first, err := env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   invoice.ID.String(),
		AmountCents: 5000,
	})
	require.NoError(t, err)
	env.clock.Advance(24 * time.Hour)
	second, err := env.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID:   invoice.ID.String(),
		AmountCents: 7000,
	})
	require.NoError(t, err)

	resp, err := env.svc.ListByInvoice(ctx, paymentdomain.ListPaymentRequest{InvoiceID: invoice.ID.String()})
	require.NoError(t, err)
	require.Len(t, resp.Payments, 2)
	assert.Equal(t, second.Payment.ID, resp.Payments[0].ID)
	assert.Equal(t, first.Payment.ID, resp.Payments[1].ID)

	_, err = env.svc.ListByInvoice(ctx, paymentdomain.ListPaymentRequest{InvoiceID: "nope"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidInvoiceID)
}
