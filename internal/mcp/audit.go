package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// auditMiddleware logs every tool call and resource read with its outcome.
// Arguments are not logged because they may carry patient data.
func (s *LiteServer) auditMiddleware(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
	return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
		if method != "tools/call" && method != "resources/read" && method != "prompts/get" {
			return next(ctx, method, req)
		}

		start := time.Now()
		fields := logrus.Fields{
			"correlation_id": uuid.NewString(),
			"method":         method,
		}
		switch p := req.GetParams().(type) {
		case *sdkmcp.CallToolParamsRaw:
			fields["tool"] = p.Name
		case *sdkmcp.ReadResourceParams:
			fields["uri"] = p.URI
		case *sdkmcp.GetPromptParams:
			fields["prompt"] = p.Name
		}

		res, err := next(ctx, method, req)

		fields["duration_ms"] = time.Since(start).Milliseconds()
		entry := s.logger.WithFields(fields)
		switch {
		case err != nil:
			entry.WithError(err).Warn("MCP request failed")
		case isToolError(res):
			entry.Warn("MCP tool returned an error")
		default:
			entry.Info("MCP request handled")
		}
		return res, err
	}
}

func isToolError(res sdkmcp.Result) bool {
	r, ok := res.(*sdkmcp.CallToolResult)
	return ok && r != nil && r.IsError
}
