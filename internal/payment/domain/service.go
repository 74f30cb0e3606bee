package domain

import (
	"context"
	"time"

	invoicedomain "github.com/werkbank/fakturo/internal/invoice/domain"
)

type RecordPaymentRequest struct {
	InvoiceID   string        `json:"invoice_id"`
	AmountCents int64         `json:"amount_cents"`
	Method      PaymentMethod `json:"method"`
	Reference   string        `json:"reference"`
	ReceivedAt  *time.Time    `json:"received_at"`
}

// RecordPaymentResult carries the payment row together with the invoice
// state it produced, so callers see the status decision atomically.
type RecordPaymentResult struct {
	Payment Payment               `json:"payment"`
	Invoice invoicedomain.Invoice `json:"invoice"`
	Settled int64                 `json:"settled_notices"`
}

type ListPaymentRequest struct {
	InvoiceID string
}

type ListPaymentResponse struct {
	Payments []Payment `json:"payments"`
}

type Service interface {
	// RecordPayment applies an amount to an open invoice, moves the
	// invoice to paid or partially_paid, and settles any open dunning
	// chain when the balance reaches zero. All of it in one transaction.
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (RecordPaymentResult, error)

	// ListByInvoice returns the payment history of an invoice, newest
	// first.
	ListByInvoice(ctx context.Context, req ListPaymentRequest) (ListPaymentResponse, error)
}
