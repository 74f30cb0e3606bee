// Package domain contains the invoice aggregate: persistence models, the
// lifecycle state machine and the pure totals computation.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusSent          InvoiceStatus = "sent"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusCancelled     InvoiceStatus = "cancelled"
)

// InvoiceType is an informational classification; it does not alter any
// calculation rule.
type InvoiceType string

const (
	InvoiceTypeFull    InvoiceType = "full"
	InvoiceTypePartial InvoiceType = "partial"
	InvoiceTypeAdvance InvoiceType = "advance"
	InvoiceTypeFinal   InvoiceType = "final"
)

func (t InvoiceType) Valid() bool {
	switch t {
	case InvoiceTypeFull, InvoiceTypePartial, InvoiceTypeAdvance, InvoiceTypeFinal:
		return true
	}
	return false
}

// PositionKind classifies a line item. Rental lines are tracked apart from
// taxable goods/labor lines because the tax engine never applies VAT to them.
type PositionKind string

const (
	PositionKindMaterial PositionKind = "material"
	PositionKindLabor    PositionKind = "labor"
	PositionKindRental   PositionKind = "rental"
	PositionKindFlatFee  PositionKind = "flat_fee"
)

func (k PositionKind) Valid() bool {
	switch k {
	case PositionKindMaterial, PositionKindLabor, PositionKindRental, PositionKindFlatFee:
		return true
	}
	return false
}

func (k PositionKind) IsRental() bool { return k == PositionKindRental }

// Invoice is one invoice document. All monetary fields are integer cents and
// are always recomputed server-side from the positions, the discount inputs
// and the VAT rate; they are never accepted as client input.
type Invoice struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	InvoiceNumber int64         `gorm:"not null;uniqueIndex" json:"invoice_number"`
	Type          InvoiceType   `gorm:"type:text;not null;default:'full'" json:"type"`
	CustomerID    snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	ProjectID     *snowflake.ID `gorm:"index" json:"project_id,omitempty"`
	QuoteID       *snowflake.ID `gorm:"index" json:"quote_id,omitempty"`

	Status InvoiceStatus `gorm:"type:text;not null;default:'draft';index" json:"status"`

	Positions []Position `gorm:"foreignKey:InvoiceID" json:"positions,omitempty"`

	// Discount inputs: a percent > 0 overrides the fixed amount.
	DiscountPercent    float64 `gorm:"not null;default:0" json:"discount_percent"`
	DiscountFixedCents int64   `gorm:"not null;default:0" json:"discount_fixed_cents"`
	VATRate            float64 `gorm:"not null;default:0" json:"vat_rate"`

	// Derived amounts, recomputed on every position/discount/VAT change.
	SubtotalCents int64 `gorm:"not null;default:0" json:"subtotal_cents"`
	DiscountCents int64 `gorm:"not null;default:0" json:"discount_cents"`
	NetCents      int64 `gorm:"not null;default:0" json:"net_cents"`
	VATCents      int64 `gorm:"not null;default:0" json:"vat_cents"`
	GrossCents    int64 `gorm:"not null;default:0" json:"gross_cents"`

	IssuedAt        time.Time `gorm:"not null" json:"issued_at"`
	PaymentTermDays int       `gorm:"not null" json:"payment_term_days"`
	DueAt           time.Time `gorm:"not null;index" json:"due_at"`

	PaidCents int64      `gorm:"not null;default:0" json:"paid_cents"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`

	// Mirrors the highest active or settled reminder stage.
	DunningLevel int `gorm:"not null;default:0" json:"dunning_level"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

// OutstandingCents is the gross amount still owed.
func (i *Invoice) OutstandingCents() int64 {
	out := i.GrossCents - i.PaidCents
	if out < 0 {
		return 0
	}
	return out
}

// DueDate derives the payment deadline from the issue date and term days.
// It is recomputed whenever either input changes.
func DueDate(issuedAt time.Time, termDays int) time.Time {
	return issuedAt.UTC().AddDate(0, 0, termDays)
}

// Position is one line of an invoice. It is owned by value: it has no
// identity outside its invoice.
type Position struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID `gorm:"not null;index" json:"invoice_id"`

	Kind        PositionKind `gorm:"type:text;not null" json:"kind"`
	Description string       `gorm:"type:text" json:"description"`
	Quantity    float64      `gorm:"not null" json:"quantity"`
	Unit        string       `gorm:"type:text" json:"unit"`

	UnitPriceCents int64 `gorm:"not null" json:"unit_price_cents"`
	LineTotalCents int64 `gorm:"not null" json:"line_total_cents"`

	// Rental bookkeeping; informational, the line total formula is unchanged.
	RentalFrom *time.Time `json:"rental_from,omitempty"`
	RentalTo   *time.Time `json:"rental_to,omitempty"`
	RentalDays int        `gorm:"not null;default:0" json:"rental_days,omitempty"`

	SortOrder int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Position) TableName() string { return "invoice_positions" }
