package domain

import "errors"

var (
	ErrInvalidNoticeID   = errors.New("invalid_id")
	ErrInvalidInvoiceID  = errors.New("invalid_invoice_id")
	ErrNotFound          = errors.New("not_found")
	ErrInvoiceNotFound   = errors.New("invoice_not_found")
	ErrInvoicePaid       = errors.New("invoice_paid")
	ErrInvoiceNotBilled  = errors.New("invoice_not_billed")
	ErrActiveChainExists = errors.New("active_chain_exists")
	ErrParentNotSent     = errors.New("parent_not_sent")
	ErrMaxLevelReached   = errors.New("max_level_reached")
	ErrNotApproved       = errors.New("not_approved")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrConflict          = errors.New("conflict")
)
