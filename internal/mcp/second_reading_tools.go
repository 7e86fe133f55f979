package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/lirads-audit-server/internal/secondread"
)

// readingView flattens timestamps to RFC 3339 strings for tool output.
type readingView struct {
	ID               string `json:"id"`
	CaseID           string `json:"case_id"`
	ReaderUsername   string `json:"reader_username"`
	Status           string `json:"status"`
	OriginalCategory string `json:"original_category,omitempty"`
	SecondCategory   string `json:"second_category,omitempty"`
	Agreement        string `json:"agreement,omitempty"`
	Comments         string `json:"comments,omitempty"`
	CreatedAt        string `json:"created_at"`
	CompletedAt      string `json:"completed_at,omitempty"`
}

func viewOf(r *secondread.Reading) readingView {
	v := readingView{
		ID:               r.ID,
		CaseID:           r.CaseID,
		ReaderUsername:   r.ReaderUsername,
		Status:           string(r.Status),
		OriginalCategory: r.OriginalCategory,
		SecondCategory:   r.SecondCategory,
		Agreement:        string(r.Agreement),
		Comments:         r.Comments,
		CreatedAt:        r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		v.CompletedAt = r.CompletedAt.UTC().Format(time.RFC3339)
	}
	return v
}

type requestReadingInput struct {
	CaseID         string `json:"case_id" jsonschema:"case to review"`
	ReaderUsername string `json:"reader_username" jsonschema:"second reader"`
}

type completeReadingInput struct {
	ID             string `json:"id" jsonschema:"second reading ID"`
	Agreement      string `json:"agreement" jsonschema:"agree, disagree or partial"`
	SecondCategory string `json:"second_category,omitempty" jsonschema:"category assigned by the second reader, e.g. LR-4"`
	Comments       string `json:"comments,omitempty" jsonschema:"free-text comments"`
}

type listReadingsInput struct {
	CaseID string `json:"case_id,omitempty" jsonschema:"only readings of this case"`
	Status string `json:"status,omitempty" jsonschema:"pending or completed"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum results (default 50)"`
}

type listReadingsOutput struct {
	Readings []readingView `json:"readings"`
	Total    int64         `json:"total"`
}

type exportReadingsInput struct{}

type exportReadingsOutput struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

type importReadingsInput struct {
	File string `json:"file" jsonschema:"file name inside the export directory"`
}

type importReadingsOutput struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

func (s *LiteServer) registerSecondReadingTools() {
	sdkmcp.AddTool(s.mcpServer, &sdkmcp.Tool{
		Name:        "request_second_reading",
		Description: "Assign a second reader to the latest version of a case.",
	}, s.handleRequestReading)

	sdkmcp.AddTool(s.mcpServer, &sdkmcp.Tool{
		Name:        "complete_second_reading",
		Description: "Record the second reader's verdict on a pending reading.",
	}, s.handleCompleteReading)

	sdkmcp.AddTool(s.mcpServer, &sdkmcp.Tool{
		Name:        "list_second_readings",
		Description: "List second readings, newest first, by case or status.",
	}, s.handleListReadings)

	sdkmcp.AddTool(s.mcpServer, &sdkmcp.Tool{
		Name:        "export_second_readings",
		Description: "Write every second reading to a JSON file in the export directory.",
	}, s.handleExportReadings)

	sdkmcp.AddTool(s.mcpServer, &sdkmcp.Tool{
		Name:        "import_second_readings",
		Description: "Import second readings from a JSON export, skipping IDs already present.",
	}, s.handleImportReadings)
}

func (s *LiteServer) handleRequestReading(ctx context.Context, _ *sdkmcp.CallToolRequest, in requestReadingInput) (*sdkmcp.CallToolResult, readingView, error) {
	p, err := s.cases.Get(ctx, in.CaseID)
	if err != nil {
		return nil, readingView{}, fmt.Errorf("case %q: %w", in.CaseID, err)
	}
	r := &secondread.Reading{
		CaseID:           in.CaseID,
		ReaderUsername:   in.ReaderUsername,
		OriginalCategory: string(p.Content.LIRADS.Category),
	}
	if err := s.readings.Create(ctx, r); err != nil {
		return nil, readingView{}, err
	}
	s.logger.WithFields(logrus.Fields{"id": r.ID, "case_id": r.CaseID, "reader": r.ReaderUsername}).Info("Second reading requested")
	return nil, viewOf(r), nil
}

func (s *LiteServer) handleCompleteReading(ctx context.Context, _ *sdkmcp.CallToolRequest, in completeReadingInput) (*sdkmcp.CallToolResult, readingView, error) {
	r, err := s.readings.Complete(ctx, in.ID, secondread.Completion{
		Agreement:      secondread.Agreement(in.Agreement),
		SecondCategory: in.SecondCategory,
		Comments:       in.Comments,
	})
	if err != nil {
		return nil, readingView{}, err
	}
	return nil, viewOf(r), nil
}

func (s *LiteServer) handleListReadings(ctx context.Context, _ *sdkmcp.CallToolRequest, in listReadingsInput) (*sdkmcp.CallToolResult, listReadingsOutput, error) {
	var (
		readings []*secondread.Reading
		total    int64
		err      error
	)
	if in.CaseID != "" {
		readings, err = s.readings.ListByCase(ctx, in.CaseID)
		total = int64(len(readings))
	} else {
		status := secondread.Status(in.Status)
		readings, err = s.readings.List(ctx, status, in.Limit)
		if err == nil {
			total, err = s.readings.Count(ctx, status)
		}
	}
	if err != nil {
		return nil, listReadingsOutput{}, err
	}

	out := listReadingsOutput{Readings: make([]readingView, 0, len(readings)), Total: total}
	for _, r := range readings {
		out.Readings = append(out.Readings, viewOf(r))
	}
	return nil, out, nil
}

func (s *LiteServer) handleExportReadings(ctx context.Context, _ *sdkmcp.CallToolRequest, _ exportReadingsInput) (*sdkmcp.CallToolResult, exportReadingsOutput, error) {
	count, err := s.readings.Count(ctx, "")
	if err != nil {
		return nil, exportReadingsOutput{}, err
	}

	name := fmt.Sprintf("second_readings_%s.json", time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(s.config.ExportDir(), name)
	f, err := os.Create(path)
	if err != nil {
		return nil, exportReadingsOutput{}, fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	if err := s.readings.ExportJSON(ctx, f); err != nil {
		return nil, exportReadingsOutput{}, err
	}
	s.logger.WithFields(logrus.Fields{"path": path, "count": count}).Info("Second readings exported")
	return nil, exportReadingsOutput{Path: path, Count: count}, nil
}

func (s *LiteServer) handleImportReadings(ctx context.Context, _ *sdkmcp.CallToolRequest, in importReadingsInput) (*sdkmcp.CallToolResult, importReadingsOutput, error) {
	name := filepath.Base(in.File)
	if name == "." || name == string(filepath.Separator) {
		return nil, importReadingsOutput{}, fmt.Errorf("file is required")
	}
	f, err := os.Open(filepath.Join(s.config.ExportDir(), name))
	if err != nil {
		return nil, importReadingsOutput{}, fmt.Errorf("opening import file: %w", err)
	}
	defer f.Close()

	imported, skipped, err := s.readings.ImportJSON(ctx, f)
	if err != nil {
		return nil, importReadingsOutput{}, err
	}
	s.logger.WithFields(logrus.Fields{"file": name, "imported": imported, "skipped": skipped}).Info("Second readings imported")
	return nil, importReadingsOutput{Imported: imported, Skipped: skipped}, nil
}
