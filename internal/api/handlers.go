package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/internal/service"
	"github.com/lirads-audit-server/pkg/lirads"
)

func (s *Server) handleAnalyze(c *gin.Context) {
	dsl, ok := s.bindDSL(c)
	if !ok {
		return
	}
	p, err := s.cases.Analyze(c.Request.Context(), c.Param("case_id"), dsl)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleClassify(c *gin.Context) {
	dsl, ok := s.bindDSL(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, lirads.Classify(dsl))
}

func (s *Server) handleExtract(c *gin.Context) {
	var cd domain.ClinicalData
	if err := c.ShouldBindJSON(&cd); err != nil {
		s.badRequest(c, err)
		return
	}
	dsl := lirads.ExtractDSL(cd)
	c.JSON(http.StatusOK, gin.H{
		"dsl":        dsl,
		"risk_score": lirads.RiskScore(dsl),
		"decision":   lirads.Classify(dsl),
	})
}

type agentSaveRequest struct {
	CaseID       string              `json:"case_id"`
	ClinicalData domain.ClinicalData `json:"clinical_data"`
	AgentReport  string              `json:"agent_report"`
}

func (s *Server) handleAgentSave(c *gin.Context) {
	var req agentSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	res, err := s.cases.SaveAgentReport(c.Request.Context(), req.CaseID, req.ClinicalData, req.AgentReport)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(name, "must be a non-negative integer", raw)
	}
	return n, nil
}

func (s *Server) handleListCases(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		s.respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.respondError(c, err)
		return
	}

	cases, total, err := s.cases.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cases":  cases,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleGetCase(c *gin.Context) {
	p, err := s.cases.Get(c.Request.Context(), c.Param("case_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleVersions(c *gin.Context) {
	caseID := c.Param("case_id")
	versions, err := s.cases.Versions(c.Request.Context(), caseID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"case_id": caseID, "versions": versions})
}

func (s *Server) handleChain(c *gin.Context) {
	res, err := s.cases.VerifyChain(c.Request.Context(), c.Param("case_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleCritical(c *gin.Context) {
	caseID := c.Param("case_id")
	findings, err := s.cases.CriticalFindings(c.Request.Context(), caseID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"case_id": caseID, "critical_findings": findings})
}

func (s *Server) handleVerify(c *gin.Context) {
	s.verify(c, c.Param("case_id"), c.Query("sig"))
}

func (s *Server) handlePublicVerify(c *gin.Context) {
	caseID := c.Query("case_id")
	if caseID == "" {
		s.respondError(c, domain.NewValidationError("case_id", "is required", caseID))
		return
	}
	s.verify(c, caseID, c.Query("sig"))
}

func (s *Server) verify(c *gin.Context, caseID, sig string) {
	res, err := s.cases.Verify(c.Request.Context(), caseID, sig)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleStats(c *gin.Context) {
	st, err := s.cases.Stats(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// handleChecklist serves the systematic review list for a body region.
// Unknown regions get the abdomen list.
func (s *Server) handleChecklist(c *gin.Context) {
	c.JSON(http.StatusOK, service.GetChecklist(c.Param("region")))
}
