package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	dunningdomain "github.com/werkbank/fakturo/internal/dunning/domain"
)

func (s *Server) CreateFirstNotice(c *gin.Context) {
	invoiceID := strings.TrimSpace(c.Param("id"))

	resp, err := s.dunningSvc.CreateFirstNotice(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateFollowUpNotice(c *gin.Context) {
	parentID := strings.TrimSpace(c.Param("id"))

	resp, err := s.dunningSvc.CreateFollowUp(c.Request.Context(), parentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SubmitNotice(c *gin.Context) {
	s.moveNotice(c, s.dunningSvc.Submit)
}

func (s *Server) ApproveNotice(c *gin.Context) {
	s.moveNotice(c, s.dunningSvc.Approve)
}

func (s *Server) RejectNotice(c *gin.Context) {
	s.moveNotice(c, s.dunningSvc.Reject)
}

func (s *Server) MarkNoticeSent(c *gin.Context) {
	s.moveNotice(c, s.dunningSvc.MarkSent)
}

func (s *Server) moveNotice(c *gin.Context, move func(ctx context.Context, id string) (dunningdomain.Notice, error)) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := move(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListInvoiceNotices(c *gin.Context) {
	invoiceID := strings.TrimSpace(c.Param("id"))

	resp, err := s.dunningSvc.List(c.Request.Context(), dunningdomain.ListNoticeRequest{
		InvoiceID: invoiceID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Notices})
}

func (s *Server) GetNoticeByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.dunningSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func isDunningValidationError(err error) bool {
	switch {
	case errors.Is(err, dunningdomain.ErrInvalidNoticeID),
		errors.Is(err, dunningdomain.ErrInvalidInvoiceID):
		return true
	default:
		return false
	}
}
