// Package domain contains the dunning (Mahnung) chain: reminder notices
// escalating through numbered levels against one unpaid invoice.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// MaxLevel is the escalation ceiling. Attempts beyond it are a conflict,
// never a silent no-op.
const MaxLevel = 3

// NoticeStatus represents the lifecycle of one reminder notice.
type NoticeStatus string

const (
	NoticeStatusCreated         NoticeStatus = "created"
	NoticeStatusPendingApproval NoticeStatus = "pending_approval"
	NoticeStatusApproved        NoticeStatus = "approved"
	NoticeStatusSent            NoticeStatus = "sent"
	NoticeStatusRejected        NoticeStatus = "rejected"
	NoticeStatusSettled         NoticeStatus = "settled"
	NoticeStatusCancelled       NoticeStatus = "cancelled"
)

// Terminal reports whether the notice can never advance again.
func (s NoticeStatus) Terminal() bool {
	switch s {
	case NoticeStatusRejected, NoticeStatusSettled, NoticeStatusCancelled:
		return true
	}
	return false
}

// ApprovalStatus is the secondary gate. It is tracked independently of the
// notice status but must be approved before the notice may reach sent.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

var noticeTransitions = map[NoticeStatus]map[NoticeStatus]bool{
	NoticeStatusCreated: {
		NoticeStatusPendingApproval: true,
		NoticeStatusSettled:         true,
		NoticeStatusCancelled:       true,
	},
	NoticeStatusPendingApproval: {
		NoticeStatusApproved:  true,
		NoticeStatusRejected:  true,
		NoticeStatusSettled:   true,
		NoticeStatusCancelled: true,
	},
	NoticeStatusApproved: {
		NoticeStatusSent:      true,
		NoticeStatusSettled:   true,
		NoticeStatusCancelled: true,
	},
	NoticeStatusSent: {
		NoticeStatusSettled:   true,
		NoticeStatusCancelled: true,
	},
	NoticeStatusRejected:  {},
	NoticeStatusSettled:   {},
	NoticeStatusCancelled: {},
}

// CanTransition reports whether from -> to is a legal notice move.
func CanTransition(from, to NoticeStatus) bool {
	return noticeTransitions[from][to]
}

// Notice is one payment reminder. Notices are separate records keyed by
// invoice_id so a chain never grows the invoice document.
type Notice struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	NoticeNumber   int64         `gorm:"not null;uniqueIndex" json:"notice_number"`
	InvoiceID      snowflake.ID  `gorm:"not null;index" json:"invoice_id"`
	Level          int           `gorm:"not null" json:"level"`
	ParentNoticeID *snowflake.ID `gorm:"index" json:"parent_notice_id,omitempty"`

	Status   NoticeStatus   `gorm:"type:text;not null;default:'created';index" json:"status"`
	Approval ApprovalStatus `gorm:"type:text;not null;default:'pending'" json:"approval"`

	// Gross amount still owed at the time the notice was created.
	TotalClaimCents int64 `gorm:"not null" json:"total_claim_cents"`
	// Reminder fee for this level; informational, never part of the
	// invoice totals.
	FeeCents int64 `gorm:"not null;default:0" json:"fee_cents"`

	DueAt     time.Time `gorm:"not null" json:"due_at"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Notice) TableName() string { return "dunning_notices" }
