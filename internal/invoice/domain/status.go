package domain

import "time"

// transitions is the closed transition table of the invoice lifecycle.
// paid and cancelled are terminal.
var transitions = map[InvoiceStatus]map[InvoiceStatus]bool{
	InvoiceStatusDraft: {
		InvoiceStatusSent:      true,
		InvoiceStatusCancelled: true,
	},
	InvoiceStatusSent: {
		InvoiceStatusOverdue:       true,
		InvoiceStatusPartiallyPaid: true,
		InvoiceStatusPaid:          true,
		InvoiceStatusCancelled:     true,
	},
	InvoiceStatusOverdue: {
		InvoiceStatusPartiallyPaid: true,
		InvoiceStatusPaid:          true,
		InvoiceStatusCancelled:     true,
	},
	InvoiceStatusPartiallyPaid: {
		InvoiceStatusPaid:      true,
		InvoiceStatusCancelled: true,
	},
	InvoiceStatusPaid:      {},
	InvoiceStatusCancelled: {},
}

func (s InvoiceStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to InvoiceStatus) bool {
	return transitions[from][to]
}

// PaymentStatus resolves the status an invoice reaches when its cumulative
// paid amount becomes paidCents. The comparison is at currency-rounded cent
// precision, so an exact match counts as fully paid.
func PaymentStatus(grossCents, paidCents int64) InvoiceStatus {
	if paidCents >= grossCents {
		return InvoiceStatusPaid
	}
	return InvoiceStatusPartiallyPaid
}

// IsOverdue is the pure sent -> overdue predicate. The scheduled sweep and
// request handlers both call it with an explicit now.
func IsOverdue(status InvoiceStatus, dueAt time.Time, now time.Time) bool {
	return status == InvoiceStatusSent && now.After(dueAt)
}
