package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/werkbank/fakturo/internal/payment/domain"
)

type recordPaymentRequest struct {
	AmountCents int64      `json:"amount_cents"`
	Method      string     `json:"method"`
	Reference   string     `json:"reference"`
	ReceivedAt  *time.Time `json:"received_at"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.RecordPayment(c.Request.Context(), paymentdomain.RecordPaymentRequest{
		InvoiceID:   strings.TrimSpace(c.Param("id")),
		AmountCents: req.AmountCents,
		Method:      paymentdomain.PaymentMethod(strings.TrimSpace(req.Method)),
		Reference:   strings.TrimSpace(req.Reference),
		ReceivedAt:  req.ReceivedAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListInvoicePayments(c *gin.Context) {
	resp, err := s.paymentSvc.ListByInvoice(c.Request.Context(), paymentdomain.ListPaymentRequest{
		InvoiceID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Payments})
}

func isPaymentValidationError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidInvoiceID),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidMethod):
		return true
	default:
		return false
	}
}
