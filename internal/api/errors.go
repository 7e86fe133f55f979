package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/internal/export"
	"github.com/lirads-audit-server/internal/middleware"
	"github.com/lirads-audit-server/internal/secondread"
	"github.com/lirads-audit-server/pkg/auditpack"
)

func requestID(c *gin.Context) string {
	return c.GetString(middleware.CorrelationIDKey)
}

func (s *Server) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput,
		"Malformed request body", err.Error(), requestID(c)))
}

// respondError maps service errors to status codes.
func (s *Server) respondError(c *gin.Context, err error) {
	var (
		status = http.StatusInternalServerError
		code   = domain.ErrInternalServer
		msg    = "Internal server error"
		detail string
	)

	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		status, code, msg = http.StatusUnprocessableEntity, domain.ErrValidation, "Validation failed"
		detail = fmt.Sprintf("%s: %s", ve.Field, ve.Message)
	case errors.Is(err, domain.ErrNotFound):
		status, code, msg = http.StatusNotFound, domain.ErrCodeNotFound, "Resource not found"
	case errors.Is(err, secondread.ErrDuplicatePending):
		status, code, msg = http.StatusConflict, domain.ErrDuplicateReview, "A pending second reading already exists"
	case errors.Is(err, secondread.ErrAlreadyCompleted):
		status, code, msg = http.StatusConflict, domain.ErrDuplicateReview, "Second reading already completed"
	case errors.Is(err, domain.ErrVersionConflict):
		status, code, msg = http.StatusConflict, domain.ErrCodeConflict, "Concurrent update, please retry"
	case errors.Is(err, export.ErrRendererUnavailable):
		status, code, msg = http.StatusServiceUnavailable, domain.ErrExport, "PDF rendering is temporarily unavailable"
	case errors.Is(err, auditpack.ErrMissingSecret):
		status, code, msg = http.StatusInternalServerError, domain.ErrSecretMissing, "Signing secret is not configured"
	case errors.Is(err, context.DeadlineExceeded):
		status, code, msg = http.StatusRequestTimeout, domain.ErrTimeout, "Request timeout"
	}

	entry := s.log.WithError(err).WithField("correlation_id", requestID(c))
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	c.AbortWithStatusJSON(status, domain.NewAPIError(code, msg, detail, requestID(c)))
}
