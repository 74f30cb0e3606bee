package domain

import "errors"

var (
	ErrInvalidInvoiceID = errors.New("invalid_invoice_id")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidMethod    = errors.New("invalid_method")
	ErrInvoiceNotFound  = errors.New("invoice_not_found")
	ErrInvoiceNotOpen   = errors.New("invoice_not_open")
	ErrAlreadyPaid      = errors.New("already_paid")
	ErrConflict         = errors.New("conflict")
)
