package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/werkbank/fakturo/internal/audit/domain"
	"github.com/werkbank/fakturo/internal/clock"
	dunningdomain "github.com/werkbank/fakturo/internal/dunning/domain"
	invoicedomain "github.com/werkbank/fakturo/internal/invoice/domain"
	paymentdomain "github.com/werkbank/fakturo/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	DunningRepo dunningdomain.Repository
	AuditSvc    auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	dunningRepo dunningdomain.Repository
	auditSvc    auditdomain.Service
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		dunningRepo: p.DunningRepo,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) RecordPayment(ctx context.Context, req paymentdomain.RecordPaymentRequest) (paymentdomain.RecordPaymentResult, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil {
		return paymentdomain.RecordPaymentResult{}, paymentdomain.ErrInvalidInvoiceID
	}
	if req.AmountCents <= 0 {
		return paymentdomain.RecordPaymentResult{}, paymentdomain.ErrInvalidAmount
	}

	method := req.Method
	if method == "" {
		method = paymentdomain.MethodBankTransfer
	}
	if !method.Valid() {
		return paymentdomain.RecordPaymentResult{}, paymentdomain.ErrInvalidMethod
	}

	var result paymentdomain.RecordPaymentResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := loadInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return paymentdomain.ErrInvoiceNotFound
		}

		switch invoice.Status {
		case invoicedomain.InvoiceStatusPaid:
			return paymentdomain.ErrAlreadyPaid
		case invoicedomain.InvoiceStatusSent,
			invoicedomain.InvoiceStatusOverdue,
			invoicedomain.InvoiceStatusPartiallyPaid:
		default:
			return paymentdomain.ErrInvoiceNotOpen
		}

		now := s.clock.Now()
		receivedAt := now
		if req.ReceivedAt != nil {
			receivedAt = req.ReceivedAt.UTC()
		}

		newPaid := invoice.PaidCents + req.AmountCents
		newStatus := invoicedomain.PaymentStatus(invoice.GrossCents, newPaid)

		// Guarded on both status and the balance read above, so two
		// concurrent payments cannot apply against the same balance.
		// paid_at always tracks the latest payment date, partial or not.
		update := tx.WithContext(ctx).Exec(
			`UPDATE invoices
			 SET status = ?, paid_cents = ?, paid_at = ?, updated_at = ?
			 WHERE id = ? AND status = ? AND paid_cents = ?`,
			newStatus, newPaid, receivedAt, now,
			invoice.ID, invoice.Status, invoice.PaidCents,
		)
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return paymentdomain.ErrConflict
		}

		payment := paymentdomain.Payment{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			AmountCents: req.AmountCents,
			Method:      method,
			Reference:   strings.TrimSpace(req.Reference),
			ReceivedAt:  receivedAt,
			CreatedAt:   now,
		}
		if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
			return err
		}

		var settled int64
		if newStatus == invoicedomain.InvoiceStatusPaid {
			settled, err = s.dunningRepo.SettleAll(ctx, tx, invoice.ID, now)
			if err != nil {
				return err
			}
		}

		previous := invoice.Status
		invoice.Status = newStatus
		invoice.PaidCents = newPaid
		invoice.PaidAt = &receivedAt
		invoice.UpdatedAt = now

		s.log.Info("payment recorded",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Int64("amount_cents", req.AmountCents),
			zap.String("previous_status", string(previous)),
			zap.String("status", string(newStatus)),
			zap.Int64("settled_notices", settled),
		)

		result = paymentdomain.RecordPaymentResult{
			Payment: payment,
			Invoice: *invoice,
			Settled: settled,
		}
		return nil
	})
	if err != nil {
		return paymentdomain.RecordPaymentResult{}, err
	}

	s.emitAudit(ctx, result)
	return result, nil
}

func (s *Service) ListByInvoice(ctx context.Context, req paymentdomain.ListPaymentRequest) (paymentdomain.ListPaymentResponse, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil {
		return paymentdomain.ListPaymentResponse{}, paymentdomain.ErrInvalidInvoiceID
	}

	var payments []paymentdomain.Payment
	err = s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("received_at desc, id desc").
		Find(&payments).Error
	if err != nil {
		return paymentdomain.ListPaymentResponse{}, err
	}

	return paymentdomain.ListPaymentResponse{Payments: payments}, nil
}

func (s *Service) emitAudit(ctx context.Context, result paymentdomain.RecordPaymentResult) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeUser, "", "payment.recorded",
		"invoice", result.Invoice.ID.String(), map[string]any{
			"payment_id":      result.Payment.ID.String(),
			"amount_cents":    result.Payment.AmountCents,
			"method":          string(result.Payment.Method),
			"status":          string(result.Invoice.Status),
			"paid_cents":      result.Invoice.PaidCents,
			"settled_notices": result.Settled,
		})
}

func loadInvoice(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM invoices WHERE id = ?`, id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}
