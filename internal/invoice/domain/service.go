package domain

import (
	"context"
	"time"
)

// PositionInput is the raw client input for one line. Line totals are
// always derived server-side.
type PositionInput struct {
	Kind           PositionKind `json:"kind"`
	Description    string       `json:"description"`
	Quantity       float64      `json:"quantity"`
	Unit           string       `json:"unit"`
	UnitPriceCents int64        `json:"unit_price_cents"`
	RentalFrom     *time.Time   `json:"rental_from,omitempty"`
	RentalTo       *time.Time   `json:"rental_to,omitempty"`
	RentalDays     int          `json:"rental_days,omitempty"`
}

type CreateInvoiceRequest struct {
	CustomerID         string          `json:"customer_id"`
	ProjectID          string          `json:"project_id,omitempty"`
	QuoteID            string          `json:"quote_id,omitempty"`
	Type               InvoiceType     `json:"type"`
	Positions          []PositionInput `json:"positions"`
	DiscountPercent    float64         `json:"discount_percent"`
	DiscountFixedCents int64           `json:"discount_fixed_cents"`
	VATRate            *float64        `json:"vat_rate,omitempty"`
	PaymentTermDays    *int            `json:"payment_term_days,omitempty"`
	IssuedAt           *time.Time      `json:"issued_at,omitempty"`
}

// UpdateDraftRequest replaces the calculation inputs of a draft invoice.
// Totals, due date and line totals are recomputed from scratch.
type UpdateDraftRequest struct {
	ID                 string
	Positions          []PositionInput `json:"positions"`
	DiscountPercent    float64         `json:"discount_percent"`
	DiscountFixedCents int64           `json:"discount_fixed_cents"`
	VATRate            *float64        `json:"vat_rate,omitempty"`
	PaymentTermDays    *int            `json:"payment_term_days,omitempty"`
	IssuedAt           *time.Time      `json:"issued_at,omitempty"`
}

type ListInvoiceRequest struct {
	Status     *InvoiceStatus
	CustomerID *string
	DueFrom    *time.Time
	DueTo      *time.Time
}

type ListInvoiceResponse struct {
	Invoices []Invoice `json:"invoices"`
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	UpdateDraft(ctx context.Context, req UpdateDraftRequest) (Invoice, error)
	Send(ctx context.Context, id string) (Invoice, error)
	Cancel(ctx context.Context, id string) (Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	GetByID(ctx context.Context, id string) (Invoice, error)

	// MarkOverdue is the scheduled sweep: every invoice still in sent whose
	// due date has passed moves to overdue. Returns the number of invoices
	// transitioned.
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}
