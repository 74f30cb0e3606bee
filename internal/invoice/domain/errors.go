package domain

import "errors"

var (
	ErrInvalidInvoiceID  = errors.New("invalid_id")
	ErrInvalidCustomer   = errors.New("invalid_customer")
	ErrInvalidType       = errors.New("invalid_type")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrInvalidUnitPrice  = errors.New("invalid_unit_price")
	ErrInvalidKind       = errors.New("invalid_kind")
	ErrInvalidDiscount   = errors.New("invalid_discount")
	ErrInvalidVATRate    = errors.New("invalid_vat_rate")
	ErrInvalidTermDays   = errors.New("invalid_payment_term")
	ErrNotFound          = errors.New("not_found")
	ErrNotDraft          = errors.New("not_draft")
	ErrNoPositions       = errors.New("no_positions")
	ErrAlreadyPaid       = errors.New("already_paid")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrConflict          = errors.New("conflict")
)
