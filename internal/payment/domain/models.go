package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PaymentMethod string

const (
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCash         PaymentMethod = "cash"
	MethodCard         PaymentMethod = "card"
	MethodOther        PaymentMethod = "other"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodBankTransfer, MethodCash, MethodCard, MethodOther:
		return true
	}
	return false
}

// Payment is one recorded incoming amount against an invoice. Rows are
// append-only; corrections are recorded as new payments.
type Payment struct {
	ID          snowflake.ID  `json:"id,string" gorm:"primaryKey"`
	InvoiceID   snowflake.ID  `json:"invoice_id,string" gorm:"index;not null"`
	AmountCents int64         `json:"amount_cents" gorm:"not null"`
	Method      PaymentMethod `json:"method" gorm:"type:varchar(32);not null"`
	Reference   string        `json:"reference" gorm:"type:varchar(255)"`
	ReceivedAt  time.Time     `json:"received_at" gorm:"not null"`
	CreatedAt   time.Time     `json:"created_at"`
}

func (Payment) TableName() string {
	return "payments"
}
