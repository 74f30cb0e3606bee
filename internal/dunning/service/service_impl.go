package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/werkbank/fakturo/internal/audit/domain"
	"github.com/werkbank/fakturo/internal/clock"
	"github.com/werkbank/fakturo/internal/config"
	dunningdomain "github.com/werkbank/fakturo/internal/dunning/domain"
	invoicedomain "github.com/werkbank/fakturo/internal/invoice/domain"
	"github.com/werkbank/fakturo/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	BillingCfg *config.BillingConfigHolder
	Repo       dunningdomain.Repository
	AuditSvc   auditdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	billingCfg *config.BillingConfigHolder
	repo       dunningdomain.Repository
	auditSvc   auditdomain.Service
}

func NewService(p Params) dunningdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("dunning.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		billingCfg: p.BillingCfg,
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
	}
}

func (s *Service) CreateFirstNotice(ctx context.Context, invoiceID string) (dunningdomain.Notice, error) {
	id, err := parseID(invoiceID)
	if err != nil {
		return dunningdomain.Notice{}, dunningdomain.ErrInvalidInvoiceID
	}

	var created dunningdomain.Notice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := loadInvoiceRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return dunningdomain.ErrInvoiceNotFound
		}
		if invoice.Status == string(invoicedomain.InvoiceStatusPaid) {
			return dunningdomain.ErrInvoicePaid
		}
		switch invoice.Status {
		case string(invoicedomain.InvoiceStatusSent),
			string(invoicedomain.InvoiceStatusOverdue),
			string(invoicedomain.InvoiceStatusPartiallyPaid):
		default:
			return dunningdomain.ErrInvoiceNotBilled
		}

		active, err := s.repo.CountActive(ctx, tx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return dunningdomain.ErrActiveChainExists
		}

		notice, err := s.newNotice(ctx, tx, invoice, 1, nil)
		if err != nil {
			return err
		}

		// Commit-time re-check: the insert races against a concurrent
		// payment, so the mirror update is conditioned on the status read
		// above. A mismatch aborts the whole transaction.
		if err := s.mirrorDunningLevel(ctx, tx, invoice, notice.Level); err != nil {
			return err
		}

		created = notice
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return dunningdomain.Notice{}, dunningdomain.ErrActiveChainExists
		}
		return dunningdomain.Notice{}, err
	}

	s.emitAudit(ctx, "dunning.notice_created", &created, nil)
	return created, nil
}

func (s *Service) CreateFollowUp(ctx context.Context, parentNoticeID string) (dunningdomain.Notice, error) {
	parentID, err := parseID(parentNoticeID)
	if err != nil {
		return dunningdomain.Notice{}, dunningdomain.ErrInvalidNoticeID
	}

	var created dunningdomain.Notice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parent, err := s.repo.FindByID(ctx, tx, parentID)
		if err != nil {
			return err
		}
		if parent == nil {
			return dunningdomain.ErrNotFound
		}
		if parent.Status != dunningdomain.NoticeStatusSent {
			return dunningdomain.ErrParentNotSent
		}
		if parent.Level >= dunningdomain.MaxLevel {
			return dunningdomain.ErrMaxLevelReached
		}

		invoice, err := loadInvoiceRow(ctx, tx, parent.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return dunningdomain.ErrInvoiceNotFound
		}
		if invoice.Status == string(invoicedomain.InvoiceStatusPaid) {
			return dunningdomain.ErrInvoicePaid
		}

		// Escalation always starts from the highest-level sent notice; if
		// several sent notices exist the highest level wins.
		base, err := s.highestSent(ctx, tx, parent.InvoiceID)
		if err != nil {
			return err
		}
		if base == nil {
			return dunningdomain.ErrParentNotSent
		}
		if base.Level >= dunningdomain.MaxLevel {
			return dunningdomain.ErrMaxLevelReached
		}

		open, err := s.countOpenAboveLevel(ctx, tx, parent.InvoiceID, base.Level)
		if err != nil {
			return err
		}
		if open > 0 {
			return dunningdomain.ErrActiveChainExists
		}

		notice, err := s.newNotice(ctx, tx, invoice, base.Level+1, &base.ID)
		if err != nil {
			return err
		}

		if err := s.mirrorDunningLevel(ctx, tx, invoice, notice.Level); err != nil {
			return err
		}

		created = notice
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return dunningdomain.Notice{}, dunningdomain.ErrActiveChainExists
		}
		return dunningdomain.Notice{}, err
	}

	s.emitAudit(ctx, "dunning.notice_escalated", &created, map[string]any{
		"parent_notice_id": created.ParentNoticeID.String(),
	})
	return created, nil
}

func (s *Service) Submit(ctx context.Context, noticeID string) (dunningdomain.Notice, error) {
	return s.advance(ctx, noticeID, "dunning.notice_submitted",
		dunningdomain.NoticeStatusCreated,
		dunningdomain.NoticeStatusPendingApproval,
		dunningdomain.ApprovalPending,
	)
}

func (s *Service) Approve(ctx context.Context, noticeID string) (dunningdomain.Notice, error) {
	return s.advance(ctx, noticeID, "dunning.notice_approved",
		dunningdomain.NoticeStatusPendingApproval,
		dunningdomain.NoticeStatusApproved,
		dunningdomain.ApprovalApproved,
	)
}

func (s *Service) Reject(ctx context.Context, noticeID string) (dunningdomain.Notice, error) {
	return s.advance(ctx, noticeID, "dunning.notice_rejected",
		dunningdomain.NoticeStatusPendingApproval,
		dunningdomain.NoticeStatusRejected,
		dunningdomain.ApprovalRejected,
	)
}

func (s *Service) MarkSent(ctx context.Context, noticeID string) (dunningdomain.Notice, error) {
	return s.advance(ctx, noticeID, "dunning.notice_sent",
		dunningdomain.NoticeStatusApproved,
		dunningdomain.NoticeStatusSent,
		dunningdomain.ApprovalApproved,
	)
}

// advance performs one guarded status move. Every advance re-checks that
// the invoice has not been paid in the meantime.
func (s *Service) advance(ctx context.Context, noticeID, action string, from, to dunningdomain.NoticeStatus, approval dunningdomain.ApprovalStatus) (dunningdomain.Notice, error) {
	id, err := parseID(noticeID)
	if err != nil {
		return dunningdomain.Notice{}, dunningdomain.ErrInvalidNoticeID
	}

	var updated dunningdomain.Notice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		notice, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if notice == nil {
			return dunningdomain.ErrNotFound
		}
		if notice.Status != from {
			if to == dunningdomain.NoticeStatusSent && notice.Approval != dunningdomain.ApprovalApproved {
				return dunningdomain.ErrNotApproved
			}
			return dunningdomain.ErrInvalidTransition
		}
		if !dunningdomain.CanTransition(from, to) {
			return dunningdomain.ErrInvalidTransition
		}

		invoice, err := loadInvoiceRow(ctx, tx, notice.InvoiceID)
		if err != nil {
			return err
		}
		if invoice != nil && invoice.Status == string(invoicedomain.InvoiceStatusPaid) {
			return dunningdomain.ErrInvoicePaid
		}

		now := s.clock.Now()
		applied, err := s.repo.UpdateStatus(ctx, tx, id, from, to, approval, now)
		if err != nil {
			return err
		}
		if !applied {
			return dunningdomain.ErrConflict
		}

		updated = *notice
		updated.Status = to
		updated.Approval = approval
		updated.UpdatedAt = now
		return nil
	})
	if err != nil {
		return dunningdomain.Notice{}, err
	}

	s.emitAudit(ctx, action, &updated, nil)
	return updated, nil
}

func (s *Service) List(ctx context.Context, req dunningdomain.ListNoticeRequest) (dunningdomain.ListNoticeResponse, error) {
	invoiceID, err := parseID(req.InvoiceID)
	if err != nil {
		return dunningdomain.ListNoticeResponse{}, dunningdomain.ErrInvalidInvoiceID
	}

	items, err := s.repo.ListByInvoice(ctx, s.db, invoiceID)
	if err != nil {
		return dunningdomain.ListNoticeResponse{}, err
	}

	notices := make([]dunningdomain.Notice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		notices = append(notices, *item)
	}
	return dunningdomain.ListNoticeResponse{Notices: notices}, nil
}

func (s *Service) GetByID(ctx context.Context, noticeID string) (dunningdomain.Notice, error) {
	id, err := parseID(noticeID)
	if err != nil {
		return dunningdomain.Notice{}, dunningdomain.ErrInvalidNoticeID
	}

	notice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return dunningdomain.Notice{}, err
	}
	if notice == nil {
		return dunningdomain.Notice{}, dunningdomain.ErrNotFound
	}
	return *notice, nil
}

func (s *Service) newNotice(ctx context.Context, tx *gorm.DB, invoice *invoiceRow, level int, parentID *snowflake.ID) (dunningdomain.Notice, error) {
	number, err := s.repo.NextNoticeNumber(ctx, tx)
	if err != nil {
		return dunningdomain.Notice{}, err
	}

	levelCfg := s.billingCfg.Get().LevelConfig(level)
	now := s.clock.Now()

	claim := invoice.GrossCents - invoice.PaidCents
	if claim < 0 {
		claim = 0
	}

	notice := dunningdomain.Notice{
		ID:              s.genID.Generate(),
		NoticeNumber:    number,
		InvoiceID:       invoice.ID,
		Level:           level,
		ParentNoticeID:  parentID,
		Status:          dunningdomain.NoticeStatusCreated,
		Approval:        dunningdomain.ApprovalPending,
		TotalClaimCents: claim,
		FeeCents:        levelCfg.FeeCents,
		DueAt:           now.AddDate(0, 0, levelCfg.GraceDays),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, tx, &notice); err != nil {
		return dunningdomain.Notice{}, err
	}
	return notice, nil
}

func (s *Service) mirrorDunningLevel(ctx context.Context, tx *gorm.DB, invoice *invoiceRow, level int) error {
	result := tx.WithContext(ctx).Exec(
		`UPDATE invoices SET dunning_level = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		level, s.clock.Now(), invoice.ID, invoice.Status,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return dunningdomain.ErrConflict
	}
	return nil
}

func (s *Service) highestSent(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (*dunningdomain.Notice, error) {
	var notice dunningdomain.Notice
	err := tx.WithContext(ctx).Raw(
		`SELECT id, notice_number, invoice_id, level, parent_notice_id,
		        status, approval, total_claim_cents, fee_cents,
		        due_at, created_at, updated_at
		 FROM dunning_notices
		 WHERE invoice_id = ? AND status = ?
		 ORDER BY level DESC
		 LIMIT 1`,
		invoiceID, dunningdomain.NoticeStatusSent,
	).Scan(&notice).Error
	if err != nil {
		return nil, err
	}
	if notice.ID == 0 {
		return nil, nil
	}
	return &notice, nil
}

func (s *Service) countOpenAboveLevel(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID, level int) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&dunningdomain.Notice{}).
		Where("invoice_id = ? AND level > ? AND status IN (?, ?, ?, ?)",
			invoiceID, level,
			dunningdomain.NoticeStatusCreated,
			dunningdomain.NoticeStatusPendingApproval,
			dunningdomain.NoticeStatusApproved,
			dunningdomain.NoticeStatusSent,
		).
		Count(&count).Error
	return count, err
}

func (s *Service) emitAudit(ctx context.Context, action string, notice *dunningdomain.Notice, extra map[string]any) {
	if s.auditSvc == nil || notice == nil {
		return
	}
	metadata := map[string]any{
		"invoice_id":        notice.InvoiceID.String(),
		"level":             notice.Level,
		"status":            string(notice.Status),
		"total_claim_cents": notice.TotalClaimCents,
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	_ = s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeUser, "", action, "dunning_notice", notice.ID.String(), metadata)
}

type invoiceRow struct {
	ID         snowflake.ID
	Status     string
	GrossCents int64
	PaidCents  int64
}

func loadInvoiceRow(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoiceRow, error) {
	var invoice invoiceRow
	err := tx.WithContext(ctx).Raw(
		`SELECT id, status, gross_cents, paid_cents
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
