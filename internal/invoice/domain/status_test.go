package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to InvoiceStatus }{
		{InvoiceStatusDraft, InvoiceStatusSent},
		{InvoiceStatusDraft, InvoiceStatusCancelled},
		{InvoiceStatusSent, InvoiceStatusOverdue},
		{InvoiceStatusSent, InvoiceStatusPartiallyPaid},
		{InvoiceStatusSent, InvoiceStatusPaid},
		{InvoiceStatusSent, InvoiceStatusCancelled},
		{InvoiceStatusOverdue, InvoiceStatusPartiallyPaid},
		{InvoiceStatusOverdue, InvoiceStatusPaid},
		{InvoiceStatusOverdue, InvoiceStatusCancelled},
		{InvoiceStatusPartiallyPaid, InvoiceStatusPaid},
		{InvoiceStatusPartiallyPaid, InvoiceStatusCancelled},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct{ from, to InvoiceStatus }{
		{InvoiceStatusDraft, InvoiceStatusPaid},
		{InvoiceStatusDraft, InvoiceStatusOverdue},
		{InvoiceStatusSent, InvoiceStatusDraft},
		{InvoiceStatusOverdue, InvoiceStatusSent},
		{InvoiceStatusPaid, InvoiceStatusCancelled},
		{InvoiceStatusPaid, InvoiceStatusSent},
		{InvoiceStatusCancelled, InvoiceStatusDraft},
		{InvoiceStatusCancelled, InvoiceStatusSent},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, InvoiceStatusPaid.Terminal())
	assert.True(t, InvoiceStatusCancelled.Terminal())
	assert.False(t, InvoiceStatusDraft.Terminal())
	assert.False(t, InvoiceStatusOverdue.Terminal())
}

func TestPaymentStatus(t *testing.T) {
	assert.Equal(t, InvoiceStatusPartiallyPaid, PaymentStatus(10000, 2500))
	assert.Equal(t, InvoiceStatusPaid, PaymentStatus(10000, 10000))
	assert.Equal(t, InvoiceStatusPaid, PaymentStatus(10000, 12000))
}

func TestIsOverdue(t *testing.T) {
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	assert.False(t, IsOverdue(InvoiceStatusSent, due, due))
	assert.True(t, IsOverdue(InvoiceStatusSent, due, due.Add(time.Hour)))
	assert.False(t, IsOverdue(InvoiceStatusDraft, due, due.Add(time.Hour)))
	assert.False(t, IsOverdue(InvoiceStatusPaid, due, due.Add(time.Hour)))
}

func TestDueDate(t *testing.T) {
	issued := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, issued.AddDate(0, 0, 14), DueDate(issued, 14))
}
