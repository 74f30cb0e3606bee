package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/werkbank/fakturo/internal/dunning/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, notice *domain.Notice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO dunning_notices (
			id, notice_number, invoice_id, level, parent_notice_id,
			status, approval, total_claim_cents, fee_cents,
			due_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		notice.ID,
		notice.NoticeNumber,
		notice.InvoiceID,
		notice.Level,
		notice.ParentNoticeID,
		notice.Status,
		notice.Approval,
		notice.TotalClaimCents,
		notice.FeeCents,
		notice.DueAt,
		notice.CreatedAt,
		notice.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Notice, error) {
	var notice domain.Notice
	err := db.WithContext(ctx).Raw(
		`SELECT id, notice_number, invoice_id, level, parent_notice_id,
		        status, approval, total_claim_cents, fee_cents,
		        due_at, created_at, updated_at
		 FROM dunning_notices
		 WHERE id = ?`,
		id,
	).Scan(&notice).Error
	if err != nil {
		return nil, err
	}
	if notice.ID == 0 {
		return nil, nil
	}
	return &notice, nil
}

func (r *repo) ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]*domain.Notice, error) {
	var notices []*domain.Notice
	err := db.WithContext(ctx).
		Model(&domain.Notice{}).
		Where("invoice_id = ?", invoiceID).
		Order("level desc, created_at desc").
		Find(&notices).Error
	if err != nil {
		return nil, err
	}
	return notices, nil
}

func (r *repo) CountActive(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Notice{}).
		Where("invoice_id = ? AND status IN (?, ?, ?, ?)",
			invoiceID,
			domain.NoticeStatusCreated,
			domain.NoticeStatusPendingApproval,
			domain.NoticeStatusApproved,
			domain.NoticeStatusSent,
		).
		Count(&count).Error
	return count, err
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.NoticeStatus, approval domain.ApprovalStatus, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE dunning_notices SET status = ?, approval = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to, approval, now, id, from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) SettleAll(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE dunning_notices SET status = ?, updated_at = ?
		 WHERE invoice_id = ? AND status IN (?, ?, ?, ?)`,
		domain.NoticeStatusSettled, now, invoiceID,
		domain.NoticeStatusCreated,
		domain.NoticeStatusPendingApproval,
		domain.NoticeStatusApproved,
		domain.NoticeStatusSent,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) CancelAll(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE dunning_notices SET status = ?, updated_at = ?
		 WHERE invoice_id = ? AND status IN (?, ?, ?, ?)`,
		domain.NoticeStatusCancelled, now, invoiceID,
		domain.NoticeStatusCreated,
		domain.NoticeStatusPendingApproval,
		domain.NoticeStatusApproved,
		domain.NoticeStatusSent,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) NextNoticeNumber(ctx context.Context, db *gorm.DB) (int64, error) {
	var next int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(notice_number), 0) + 1 FROM dunning_notices`,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}
