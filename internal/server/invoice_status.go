package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/werkbank/fakturo/internal/invoice/domain"
	paymentdomain "github.com/werkbank/fakturo/internal/payment/domain"
)

type changeInvoiceStatusRequest struct {
	Status     string     `json:"status"`
	PaidAmount *int64     `json:"paid_amount_cents"`
	PaidAt     *time.Time `json:"paid_at"`
	Method     string     `json:"method"`
	Reference  string     `json:"reference"`
}

// ChangeInvoiceStatus is the single status entry point. Payment statuses
// are not set directly; they route through the payment recorder so the
// amount, balance and dunning settlement stay consistent.
func (s *Server) ChangeInvoiceStatus(c *gin.Context) {
	var req changeInvoiceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	id := strings.TrimSpace(c.Param("id"))

	switch invoicedomain.InvoiceStatus(strings.TrimSpace(req.Status)) {
	case invoicedomain.InvoiceStatusSent:
		resp, err := s.invoiceSvc.Send(c.Request.Context(), id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": resp})
	case invoicedomain.InvoiceStatusCancelled:
		resp, err := s.invoiceSvc.Cancel(c.Request.Context(), id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": resp})
	case invoicedomain.InvoiceStatusPaid, invoicedomain.InvoiceStatusPartiallyPaid:
		if req.PaidAmount == nil || *req.PaidAmount <= 0 {
			AbortWithError(c, newValidationError("paid_amount_cents", "invalid_amount", "invalid amount"))
			return
		}
		resp, err := s.paymentSvc.RecordPayment(c.Request.Context(), paymentdomain.RecordPaymentRequest{
			InvoiceID:   id,
			AmountCents: *req.PaidAmount,
			Method:      paymentdomain.PaymentMethod(strings.TrimSpace(req.Method)),
			Reference:   strings.TrimSpace(req.Reference),
			ReceivedAt:  req.PaidAt,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": resp})
	default:
		AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
	}
}
