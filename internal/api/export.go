package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lirads-audit-server/internal/export"
	"github.com/lirads-audit-server/internal/repository"
)

func attachment(c *gin.Context, name string) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
}

func (s *Server) handleExportJSON(c *gin.Context) {
	p, err := s.cases.Get(c.Request.Context(), c.Param("case_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteJSON(&buf, p); err != nil {
		s.respondError(c, err)
		return
	}
	attachment(c, export.Filename(p.CaseID, "json"))
	c.Data(http.StatusOK, "application/json", buf.Bytes())
}

func (s *Server) handleExportHTML(c *gin.Context) {
	p, err := s.cases.Get(c.Request.Context(), c.Param("case_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	html, err := export.HTML(p)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (s *Server) handleExportPDF(c *gin.Context) {
	if s.pdf == nil {
		s.respondError(c, export.ErrRendererUnavailable)
		return
	}
	p, err := s.cases.Get(c.Request.Context(), c.Param("case_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	html, err := export.HTML(p)
	if err != nil {
		s.respondError(c, err)
		return
	}
	pdf, err := s.pdf.RenderPDF(c.Request.Context(), html)
	if err != nil {
		if !errors.Is(err, export.ErrRendererUnavailable) {
			s.log.WithError(err).WithField("case_id", p.CaseID).Warn("PDF rendering failed")
			err = fmt.Errorf("%w: %v", export.ErrRendererUnavailable, err)
		}
		s.respondError(c, err)
		return
	}
	attachment(c, export.Filename(p.CaseID, "pdf"))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (s *Server) handleExportXLSX(c *gin.Context) {
	cases, _, err := s.cases.List(c.Request.Context(), repository.MaxListLimit, 0)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCasesXLSX(&buf, cases); err != nil {
		s.respondError(c, err)
		return
	}
	attachment(c, "lirads_cases.xlsx")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
