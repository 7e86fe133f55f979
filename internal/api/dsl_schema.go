package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/pkg/lirads"
)

const maxBodyBytes = 1 << 20

// bindDSL reads a DSL body and validates it against the finding schema.
// It writes the error response itself and returns false on failure.
func (s *Server) bindDSL(c *gin.Context) (lirads.DSL, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		s.badRequest(c, err)
		return lirads.DSL{}, false
	}

	dsl, err := lirads.DecodeDSL(body)
	var se *lirads.SchemaError
	switch {
	case errors.As(err, &se):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, domain.NewAPIError(domain.ErrValidation,
			"Finding does not match the DSL schema", strings.Join(se.Violations, "; "), requestID(c)))
		return dsl, false
	case err != nil:
		s.badRequest(c, err)
		return dsl, false
	}
	return dsl, true
}
