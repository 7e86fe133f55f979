package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/internal/middleware"
	"github.com/lirads-audit-server/internal/secondread"
)

type createReadingRequest struct {
	CaseID         string `json:"case_id"`
	ReaderUsername string `json:"reader_username"`
}

// handleCreateReading assigns a second reader to the latest version of a
// case. The reader defaults to the authenticated user.
func (s *Server) handleCreateReading(c *gin.Context) {
	var req createReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if user := c.GetString(middleware.UsernameKey); user != "" {
		req.ReaderUsername = user
	}

	ctx := c.Request.Context()
	p, err := s.cases.Get(ctx, req.CaseID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	r := &secondread.Reading{
		CaseID:           req.CaseID,
		ReaderUsername:   req.ReaderUsername,
		OriginalCategory: string(p.Content.LIRADS.Category),
	}
	if err := s.readings.Create(ctx, r); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *Server) handleCompleteReading(c *gin.Context) {
	var req secondread.Completion
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	r, err := s.readings.Complete(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleListReadings(c *gin.Context) {
	status := secondread.Status(c.Query("status"))
	switch status {
	case "", secondread.StatusPending, secondread.StatusCompleted:
	default:
		s.respondError(c, domain.NewValidationError("status", "must be pending or completed", string(status)))
		return
	}
	limit, err := queryInt(c, "limit", secondread.DefaultListLimit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	readings, err := s.readings.List(ctx, status, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	total, err := s.readings.Count(ctx, status)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"readings": readings, "total": total})
}

func (s *Server) handleCaseReadings(c *gin.Context) {
	caseID := c.Param("case_id")
	readings, err := s.readings.ListByCase(c.Request.Context(), caseID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"case_id": caseID, "readings": readings})
}
