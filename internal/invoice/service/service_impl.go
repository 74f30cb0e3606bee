package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/werkbank/fakturo/internal/audit/domain"
	"github.com/werkbank/fakturo/internal/clock"
	"github.com/werkbank/fakturo/internal/config"
	dunningdomain "github.com/werkbank/fakturo/internal/dunning/domain"
	invoicedomain "github.com/werkbank/fakturo/internal/invoice/domain"
	"github.com/werkbank/fakturo/pkg/db/option"
	"github.com/werkbank/fakturo/pkg/repository"
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
	BillingCfg  *config.BillingConfigHolder
	AuditSvc    auditdomain.Service
	DunningRepo dunningdomain.Repository
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	billingCfg *config.BillingConfigHolder

	invoicerepo repository.Repository[invoicedomain.Invoice]
	auditSvc    auditdomain.Service
	dunningRepo dunningdomain.Repository
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		billingCfg: p.BillingCfg,

		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
		auditSvc:    p.AuditSvc,
		dunningRepo: p.DunningRepo,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	customerID, err := parseID(req.CustomerID)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidCustomer
	}

	invoiceType := req.Type
	if invoiceType == "" {
		invoiceType = invoicedomain.InvoiceTypeFull
	}
	if !invoiceType.Valid() {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidType
	}

	billing := s.billingCfg.Get()
	vatRate := billing.DefaultVATRate
	if req.VATRate != nil {
		vatRate = *req.VATRate
	}
	termDays := billing.PaymentTermDays
	if req.PaymentTermDays != nil {
		termDays = *req.PaymentTermDays
	}
	if termDays <= 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidTermDays
	}

	now := s.clock.Now()
	issuedAt := now
	if req.IssuedAt != nil {
		issuedAt = req.IssuedAt.UTC()
	}

	invoiceID := s.genID.Generate()
	positions, err := s.buildPositions(invoiceID, req.Positions, now)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	discount := invoicedomain.Discount{Percent: req.DiscountPercent, FixedCents: req.DiscountFixedCents}
	totals, err := invoicedomain.ComputeTotals(positions, discount, vatRate)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	invoice := invoicedomain.Invoice{
		ID:                 invoiceID,
		Type:               invoiceType,
		CustomerID:         customerID,
		Status:             invoicedomain.InvoiceStatusDraft,
		DiscountPercent:    req.DiscountPercent,
		DiscountFixedCents: req.DiscountFixedCents,
		VATRate:            vatRate,
		IssuedAt:           issuedAt,
		PaymentTermDays:    termDays,
		DueAt:              invoicedomain.DueDate(issuedAt, termDays),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	applyTotals(&invoice, totals)

	if req.ProjectID != "" {
		projectID, err := parseID(req.ProjectID)
		if err != nil {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
		}
		invoice.ProjectID = &projectID
	}
	if req.QuoteID != "" {
		quoteID, err := parseID(req.QuoteID)
		if err != nil {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
		}
		invoice.QuoteID = &quoteID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.nextInvoiceNumber(ctx, tx)
		if err != nil {
			return err
		}
		invoice.InvoiceNumber = number

		if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
			return err
		}
		if len(positions) > 0 {
			if err := tx.WithContext(ctx).Create(&positions).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	invoice.Positions = positions
	s.emitAudit(ctx, "invoice.created", &invoice, nil)
	return invoice, nil
}

func (s *Service) UpdateDraft(ctx context.Context, req invoicedomain.UpdateDraftRequest) (invoicedomain.Invoice, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}

	var updated invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := loadInvoice(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrNotFound
		}
		if invoice.Status != invoicedomain.InvoiceStatusDraft {
			return invoicedomain.ErrNotDraft
		}

		now := s.clock.Now()
		vatRate := invoice.VATRate
		if req.VATRate != nil {
			vatRate = *req.VATRate
		}
		termDays := invoice.PaymentTermDays
		if req.PaymentTermDays != nil {
			termDays = *req.PaymentTermDays
		}
		if termDays <= 0 {
			return invoicedomain.ErrInvalidTermDays
		}
		issuedAt := invoice.IssuedAt
		if req.IssuedAt != nil {
			issuedAt = req.IssuedAt.UTC()
		}

		positions, err := s.buildPositions(id, req.Positions, now)
		if err != nil {
			return err
		}
		discount := invoicedomain.Discount{Percent: req.DiscountPercent, FixedCents: req.DiscountFixedCents}
		totals, err := invoicedomain.ComputeTotals(positions, discount, vatRate)
		if err != nil {
			return err
		}

		// The write is conditioned on the status read above; a concurrent
		// send/cancel makes it a no-op and the operation fails with a
		// conflict instead of silently overwriting.
		result := tx.WithContext(ctx).Exec(
			`UPDATE invoices
			 SET discount_percent = ?, discount_fixed_cents = ?, vat_rate = ?,
			     subtotal_cents = ?, discount_cents = ?, net_cents = ?, vat_cents = ?, gross_cents = ?,
			     issued_at = ?, payment_term_days = ?, due_at = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			req.DiscountPercent, req.DiscountFixedCents, vatRate,
			totals.SubtotalCents, totals.DiscountCents, totals.NetCents, totals.VATCents, totals.GrossCents,
			issuedAt, termDays, invoicedomain.DueDate(issuedAt, termDays), now,
			id, invoicedomain.InvoiceStatusDraft,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return invoicedomain.ErrConflict
		}

		if err := tx.WithContext(ctx).Exec(
			`DELETE FROM invoice_positions WHERE invoice_id = ?`, id,
		).Error; err != nil {
			return err
		}
		if len(positions) > 0 {
			if err := tx.WithContext(ctx).Create(&positions).Error; err != nil {
				return err
			}
		}

		updated = *invoice
		updated.DiscountPercent = req.DiscountPercent
		updated.DiscountFixedCents = req.DiscountFixedCents
		updated.VATRate = vatRate
		updated.IssuedAt = issuedAt
		updated.PaymentTermDays = termDays
		updated.DueAt = invoicedomain.DueDate(issuedAt, termDays)
		updated.UpdatedAt = now
		updated.Positions = positions
		applyTotals(&updated, totals)
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.emitAudit(ctx, "invoice.updated", &updated, nil)
	return updated, nil
}

func (s *Service) Send(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}

	var sent invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := loadInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrNotFound
		}
		if !invoicedomain.CanTransition(invoice.Status, invoicedomain.InvoiceStatusSent) {
			return invoicedomain.ErrInvalidTransition
		}

		var positionCount int64
		if err := tx.WithContext(ctx).
			Table("invoice_positions").
			Where("invoice_id = ?", invoiceID).
			Count(&positionCount).Error; err != nil {
			return err
		}
		if positionCount == 0 {
			return invoicedomain.ErrNoPositions
		}

		now := s.clock.Now()
		result := tx.WithContext(ctx).Exec(
			`UPDATE invoices SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			invoicedomain.InvoiceStatusSent, now, invoiceID, invoice.Status,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return invoicedomain.ErrConflict
		}

		sent = *invoice
		sent.Status = invoicedomain.InvoiceStatusSent
		sent.UpdatedAt = now
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.emitAudit(ctx, "invoice.sent", &sent, nil)
	return sent, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}

	var cancelled invoicedomain.Invoice
	var previous invoicedomain.InvoiceStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := loadInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrNotFound
		}
		if invoice.Status == invoicedomain.InvoiceStatusPaid {
			return invoicedomain.ErrAlreadyPaid
		}
		if !invoicedomain.CanTransition(invoice.Status, invoicedomain.InvoiceStatusCancelled) {
			return invoicedomain.ErrInvalidTransition
		}

		now := s.clock.Now()
		result := tx.WithContext(ctx).Exec(
			`UPDATE invoices SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			invoicedomain.InvoiceStatusCancelled, now, invoiceID, invoice.Status,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return invoicedomain.ErrConflict
		}

		// Cancelling an invoice closes any reminder chain still open on it.
		if _, err := s.dunningRepo.CancelAll(ctx, tx, invoiceID, now); err != nil {
			return err
		}

		previous = invoice.Status
		cancelled = *invoice
		cancelled.Status = invoicedomain.InvoiceStatusCancelled
		cancelled.UpdatedAt = now
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.emitAudit(ctx, "invoice.cancelled", &cancelled, map[string]any{
		"previous_status": string(previous),
	})
	return cancelled, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	filter := &invoicedomain.Invoice{}
	if req.Status != nil {
		filter.Status = *req.Status
	}
	if req.CustomerID != nil {
		customerID, err := parseID(*req.CustomerID)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidCustomer
		}
		filter.CustomerID = customerID
	}

	options := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true, "due_at": true}}),
	}
	if req.DueFrom != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "due_at",
			Operator: option.GTE,
			Value:    *req.DueFrom,
		}))
	}
	if req.DueTo != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "due_at",
			Operator: option.LTE,
			Value:    *req.DueTo,
		}))
	}

	items, err := s.invoicerepo.Find(ctx, filter, options...)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}
	return invoicedomain.ListInvoiceResponse{Invoices: invoices}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}

	invoice, err := loadInvoice(ctx, s.db, invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrNotFound
	}

	var positions []invoicedomain.Position
	if err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("sort_order asc").
		Find(&positions).Error; err != nil {
		return invoicedomain.Invoice{}, err
	}
	invoice.Positions = positions
	return *invoice, nil
}

func (s *Service) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ?
		 WHERE status = ? AND due_at < ?`,
		invoicedomain.InvoiceStatusOverdue, now.UTC(),
		invoicedomain.InvoiceStatusSent, now.UTC(),
	)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Info("invoices marked overdue", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (s *Service) buildPositions(invoiceID snowflake.ID, inputs []invoicedomain.PositionInput, now time.Time) ([]invoicedomain.Position, error) {
	positions := make([]invoicedomain.Position, 0, len(inputs))
	for i, in := range inputs {
		if !in.Kind.Valid() {
			return nil, invoicedomain.ErrInvalidKind
		}
		lineTotal, err := invoicedomain.Valuate(in.Quantity, in.UnitPriceCents)
		if err != nil {
			return nil, err
		}
		positions = append(positions, invoicedomain.Position{
			ID:             s.genID.Generate(),
			InvoiceID:      invoiceID,
			Kind:           in.Kind,
			Description:    in.Description,
			Quantity:       in.Quantity,
			Unit:           in.Unit,
			UnitPriceCents: in.UnitPriceCents,
			LineTotalCents: lineTotal,
			RentalFrom:     in.RentalFrom,
			RentalTo:       in.RentalTo,
			RentalDays:     in.RentalDays,
			SortOrder:      i,
			CreatedAt:      now,
		})
	}
	return positions, nil
}

func (s *Service) nextInvoiceNumber(ctx context.Context, tx *gorm.DB) (int64, error) {
	var next int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(invoice_number), 0) + 1 FROM invoices`,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Service) emitAudit(ctx context.Context, action string, invoice *invoicedomain.Invoice, extra map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	metadata := map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"customer_id":    invoice.CustomerID.String(),
		"status":         string(invoice.Status),
		"gross_cents":    invoice.GrossCents,
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	_ = s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeUser, "", action, "invoice", invoice.ID.String(), metadata)
}

func applyTotals(invoice *invoicedomain.Invoice, totals invoicedomain.Totals) {
	invoice.SubtotalCents = totals.SubtotalCents
	invoice.DiscountCents = totals.DiscountCents
	invoice.NetCents = totals.NetCents
	invoice.VATCents = totals.VATCents
	invoice.GrossCents = totals.GrossCents
}

func loadInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_number, type, customer_id, project_id, quote_id, status,
		        discount_percent, discount_fixed_cents, vat_rate,
		        subtotal_cents, discount_cents, net_cents, vat_cents, gross_cents,
		        issued_at, payment_term_days, due_at, paid_cents, paid_at,
		        dunning_level, created_at, updated_at
		 FROM invoices
		 WHERE id = ?`,
		id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
