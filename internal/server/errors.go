package server

import (
	"database/sql/driver"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	customerdomain "github.com/werkbank/fakturo/internal/customer/domain"
	dunningdomain "github.com/werkbank/fakturo/internal/dunning/domain"
	invoicedomain "github.com/werkbank/fakturo/internal/invoice/domain"
	paymentdomain "github.com/werkbank/fakturo/internal/payment/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Reason  string            `json:"reason,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Reason:  conflictReason(err),
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isUnavailableError(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isCustomerValidationError(err),
		isInvoiceValidationError(err),
		isDunningValidationError(err),
		isPaymentValidationError(err):
		return true
	default:
		return false
	}
}

// Conflicts carry a machine-readable reason so clients can distinguish a
// lost race from a business rule rejection.
func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, invoicedomain.ErrConflict),
		errors.Is(err, invoicedomain.ErrNotDraft),
		errors.Is(err, invoicedomain.ErrNoPositions),
		errors.Is(err, invoicedomain.ErrAlreadyPaid),
		errors.Is(err, invoicedomain.ErrInvalidTransition),
		errors.Is(err, dunningdomain.ErrConflict),
		errors.Is(err, dunningdomain.ErrInvoicePaid),
		errors.Is(err, dunningdomain.ErrInvoiceNotBilled),
		errors.Is(err, dunningdomain.ErrActiveChainExists),
		errors.Is(err, dunningdomain.ErrParentNotSent),
		errors.Is(err, dunningdomain.ErrMaxLevelReached),
		errors.Is(err, dunningdomain.ErrNotApproved),
		errors.Is(err, dunningdomain.ErrInvalidTransition),
		errors.Is(err, paymentdomain.ErrConflict),
		errors.Is(err, paymentdomain.ErrAlreadyPaid),
		errors.Is(err, paymentdomain.ErrInvoiceNotOpen):
		return true
	default:
		return false
	}
}

func conflictReason(err error) string {
	switch {
	case errors.Is(err, invoicedomain.ErrNotDraft):
		return "not_draft"
	case errors.Is(err, invoicedomain.ErrNoPositions):
		return "no_positions"
	case errors.Is(err, invoicedomain.ErrAlreadyPaid),
		errors.Is(err, paymentdomain.ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, invoicedomain.ErrInvalidTransition),
		errors.Is(err, dunningdomain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, dunningdomain.ErrInvoicePaid):
		return "invoice_paid"
	case errors.Is(err, dunningdomain.ErrInvoiceNotBilled):
		return "invoice_not_billed"
	case errors.Is(err, dunningdomain.ErrActiveChainExists):
		return "active_chain_exists"
	case errors.Is(err, dunningdomain.ErrParentNotSent):
		return "parent_not_sent"
	case errors.Is(err, dunningdomain.ErrMaxLevelReached):
		return "max_level_reached"
	case errors.Is(err, dunningdomain.ErrNotApproved):
		return "not_approved"
	case errors.Is(err, paymentdomain.ErrInvoiceNotOpen):
		return "invoice_not_open"
	default:
		return "conflict"
	}
}

// Connection-level failures are reported as 503 rather than 500 so
// callers know to retry. Postgres class 08 covers connection exceptions.
func isUnavailableError(err error) bool {
	if errors.Is(err, ErrServiceUnavailable) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "08") {
		return true
	}
	return false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, dunningdomain.ErrNotFound),
		errors.Is(err, dunningdomain.ErrInvoiceNotFound),
		errors.Is(err, paymentdomain.ErrInvoiceNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
