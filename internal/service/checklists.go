package service

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultChecklistRegion is served for unknown regions.
const DefaultChecklistRegion = "abdomen"

// ChecklistItem is one step of a systematic review.
type ChecklistItem struct {
	ID       string `json:"id" yaml:"id"`
	Label    string `json:"label" yaml:"label"`
	Category string `json:"category" yaml:"category"`
}

// Checklist is the systematic review list for one body region.
type Checklist struct {
	Region string          `json:"region" yaml:"-"`
	Title  string          `json:"title" yaml:"title"`
	Items  []ChecklistItem `json:"items" yaml:"items"`
}

//go:embed checklists.yaml
var checklistsYAML []byte

var checklists = func() map[string]Checklist {
	var m map[string]Checklist
	if err := yaml.Unmarshal(checklistsYAML, &m); err != nil {
		panic(fmt.Sprintf("parsing checklists: %v", err))
	}
	if _, ok := m[DefaultChecklistRegion]; !ok {
		panic("checklists: missing default region " + DefaultChecklistRegion)
	}
	for region, c := range m {
		c.Region = region
		m[region] = c
	}
	return m
}()

// GetChecklist returns the checklist for region, falling back to the
// abdomen list. The returned Region names the list actually served.
func GetChecklist(region string) Checklist {
	c, ok := checklists[strings.ToLower(strings.TrimSpace(region))]
	if !ok {
		c = checklists[DefaultChecklistRegion]
	}
	c.Items = append([]ChecklistItem(nil), c.Items...)
	return c
}

// ChecklistRegions lists the regions with a dedicated checklist.
func ChecklistRegions() []string {
	out := make([]string, 0, len(checklists))
	for r := range checklists {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
