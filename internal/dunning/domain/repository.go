package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository exposes the notice writes that other services need inside
// their own transactions. The payment recorder settles open chains in the
// same transaction that marks the invoice paid.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, notice *Notice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Notice, error)
	ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]*Notice, error)
	CountActive(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error)

	// UpdateStatus is the guarded notice write: it only applies when the
	// row still carries the status read at operation start.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to NoticeStatus, approval ApprovalStatus, now time.Time) (bool, error)

	// SettleAll force-settles every non-terminal notice of an invoice.
	SettleAll(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, now time.Time) (int64, error)

	// CancelAll closes every non-terminal notice of a cancelled invoice.
	CancelAll(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, now time.Time) (int64, error)

	NextNoticeNumber(ctx context.Context, db *gorm.DB) (int64, error)
}
