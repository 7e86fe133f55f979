// Package export renders stored audit packs for download: canonical JSON,
// a printable HTML/PDF report and a spreadsheet of case summaries.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/lirads-audit-server/pkg/auditpack"
	"github.com/lirads-audit-server/pkg/lirads"
)

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// Filename returns a download name for a case with path characters removed.
func Filename(caseID, ext string) string {
	safe := unsafeFilename.ReplaceAllString(caseID, "_")
	if safe == "" {
		safe = "unknown"
	}
	return safe + "." + ext
}

// WriteJSON writes the pack exactly as stored, indented.
func WriteJSON(w io.Writer, p *auditpack.Pack) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

var categoryColors = map[lirads.Category]string{
	lirads.LR1:   "#16a34a",
	lirads.LR2:   "#22c55e",
	lirads.LR3:   "#ca8a04",
	lirads.LR4:   "#ea580c",
	lirads.LR5:   "#dc2626",
	lirads.LRM:   "#9333ea",
	lirads.LRTIV: "#b91c1c",
}

// CategoryColor is the badge color used for a category in reports.
func CategoryColor(c lirads.Category) string {
	if col, ok := categoryColors[c]; ok {
		return col
	}
	return "#71717a"
}

// clinicalFields lists the clinical summary keys in report order.
var clinicalFields = []struct{ key, label string }{
	{"region", "Region"},
	{"age", "Age"},
	{"gender", "Gender"},
	{"indication", "Indication"},
	{"risk_factors", "Risk factors"},
}

// Markdown renders the report body of a pack.
func Markdown(p *auditpack.Pack) (string, error) {
	var b strings.Builder
	res := p.Content.LIRADS

	fmt.Fprintf(&b, "# Radiology Audit Pack\n\n")
	fmt.Fprintf(&b, "**Case:** %s  \n**Version:** %d  \n**Generated:** %s\n\n", p.CaseID, p.Version, p.GeneratedAt)
	fmt.Fprintf(&b, "## Decision\n\n**%s**\n\n", p.Content.Decision)
	if len(res.AppliedCriteria) > 0 {
		fmt.Fprintf(&b, "Applied criteria: %s\n\n", strings.Join(res.AppliedCriteria, ", "))
	}
	if len(res.AncillaryFavorHCC) > 0 {
		fmt.Fprintf(&b, "Ancillary features favoring HCC: %s\n\n", strings.Join(res.AncillaryFavorHCC, ", "))
	}

	var parts []string
	for _, f := range clinicalFields {
		if v, ok := p.Content.ClinicalData[f.key]; ok && fmt.Sprint(v) != "" {
			parts = append(parts, fmt.Sprintf("%s: %v", f.label, v))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(&b, "## Clinical information\n\n%s\n\n", strings.Join(parts, " | "))
	}

	dsl, err := json.MarshalIndent(p.Content.DSL, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling dsl: %w", err)
	}
	fmt.Fprintf(&b, "## Findings\n\n```json\n%s\n```\n\n", dsl)

	if p.Content.AgentReport != "" {
		fmt.Fprintf(&b, "## Radiologist report\n\n%s\n\n", strings.TrimSpace(p.Content.AgentReport))
	}

	fmt.Fprintf(&b, "## Verification\n\n")
	if p.VerifyURL != "" {
		fmt.Fprintf(&b, "Verify at <%s>\n\n", p.VerifyURL)
	}
	sig := p.Signature
	if len(sig) > 32 {
		sig = sig[:32] + "..."
	}
	fmt.Fprintf(&b, "Signature `%s` | schema `%s`\n", sig, p.Schema)
	if p.PreviousHash != "" {
		fmt.Fprintf(&b, "\nPrevious version hash `%s`\n", p.PreviousHash)
	}
	return b.String(), nil
}

// markdownToHTML converts report markdown, dropping any raw HTML the agent
// report may contain.
func markdownToHTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.SkipHTML})
	return markdown.ToHTML([]byte(md), p, r)
}

var reportTemplate = template.Must(template.New("report").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Audit pack {{.CaseID}}</title>
  <style>
    body { font-family: 'Helvetica Neue', Arial, sans-serif; margin: 32px; color: #18181b; font-size: 13px; }
    h1 { margin: 0 0 12px; }
    h2 { font-size: 15px; margin: 18px 0 6px; border-bottom: 1px solid #e4e4e7; }
    pre { background: #f4f4f5; padding: 8px; border-radius: 4px; font-size: 11px; }
    code { font-size: 11px; }
    .badge { display: inline-block; padding: 4px 10px; border-radius: 6px; color: #fff; background: {{.Color}}; font-weight: 700; }
  </style>
</head>
<body>
  <div class="badge">{{.Category}}</div>
  {{.Body}}
</body>
</html>
`))

// HTML renders the full printable report.
func HTML(p *auditpack.Pack) (string, error) {
	md, err := Markdown(p)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = reportTemplate.Execute(&buf, struct {
		CaseID   string
		Category string
		Color    template.CSS
		Body     template.HTML
	}{
		CaseID:   p.CaseID,
		Category: string(p.Content.LIRADS.Category),
		Color:    template.CSS(CategoryColor(p.Content.LIRADS.Category)),
		Body:     template.HTML(markdownToHTML(md)),
	})
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}
