package server

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	dunningdomain "github.com/werkbank/fakturo/internal/dunning/domain"
	invoicedomain "github.com/werkbank/fakturo/internal/invoice/domain"
	paymentdomain "github.com/werkbank/fakturo/internal/payment/domain"
	"gorm.io/gorm"
)

func TestMapError_StatusClasses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
		reason string
	}{
		{
			name:   "validation",
			err:    newValidationError("amount_cents", "invalid_amount_cents", "invalid value"),
			status: http.StatusBadRequest,
			typ:    "validation_error",
		},
		{
			name:   "invalid request sentinel",
			err:    ErrInvalidRequest,
			status: http.StatusBadRequest,
			typ:    "validation_error",
		},
		{
			name:   "lost update race",
			err:    fmt.Errorf("change status: %w", invoicedomain.ErrConflict),
			status: http.StatusConflict,
			typ:    "conflict",
			reason: "conflict",
		},
		{
			name:   "dunning business rule",
			err:    dunningdomain.ErrMaxLevelReached,
			status: http.StatusConflict,
			typ:    "conflict",
			reason: "max_level_reached",
		},
		{
			name:   "payment on closed invoice",
			err:    paymentdomain.ErrInvoiceNotOpen,
			status: http.StatusConflict,
			typ:    "conflict",
			reason: "invoice_not_open",
		},
		{
			name:   "missing record",
			err:    gorm.ErrRecordNotFound,
			status: http.StatusNotFound,
			typ:    "not_found",
		},
		{
			name:   "unavailable sentinel",
			err:    fmt.Errorf("load invoice: %w", ErrServiceUnavailable),
			status: http.StatusServiceUnavailable,
			typ:    "service_unavailable",
		},
		{
			name:   "bad database connection",
			err:    fmt.Errorf("query: %w", driver.ErrBadConn),
			status: http.StatusServiceUnavailable,
			typ:    "service_unavailable",
		},
		{
			name: "network failure",
			err: &net.OpError{
				Op:  "dial",
				Net: "tcp",
				Err: errors.New("connection refused"),
			},
			status: http.StatusServiceUnavailable,
			typ:    "service_unavailable",
		},
		{
			name:   "postgres connection exception",
			err:    fmt.Errorf("exec: %w", &pgconn.PgError{Code: "08006"}),
			status: http.StatusServiceUnavailable,
			typ:    "service_unavailable",
		},
		{
			name:   "postgres constraint violation stays internal",
			err:    &pgconn.PgError{Code: "23505"},
			status: http.StatusInternalServerError,
			typ:    "internal_error",
		},
		{
			name:   "unknown error",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			typ:    "internal_error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.typ, payload.Type)
			assert.Equal(t, tc.reason, payload.Reason)
		})
	}
}
