package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/pkg/lirads"
)

func decision(c lirads.Category) *lirads.DecisionResult {
	return &lirads.DecisionResult{Category: c, Label: c.Label()}
}

func codes(findings []domain.CriticalFinding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Code)
	}
	return out
}

func TestDetectCriticalFindings_Categories(t *testing.T) {
	tests := []struct {
		category  lirads.Category
		wantCode  string
		wantLevel string
	}{
		{lirads.LR5, "LIRADS_5", domain.LevelCritical},
		{lirads.LRTIV, "LIRADS_TIV", domain.LevelCritical},
		{lirads.LRM, "LIRADS_M", domain.LevelUrgent},
		{lirads.LR4, "LIRADS_4", domain.LevelSignificant},
		{lirads.LR3, "LIRADS_3", domain.LevelSignificant},
		{lirads.LR2, "", ""},
		{lirads.LR1, "", ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			findings := DetectCriticalFindings(domain.ClinicalData{}, decision(tt.category))
			if tt.wantCode == "" {
				assert.Empty(t, findings)
				return
			}
			require.Len(t, findings, 1)
			assert.Equal(t, tt.wantCode, findings[0].Code)
			assert.Equal(t, tt.wantLevel, findings[0].Level)
			assert.NotEmpty(t, findings[0].Message)
			assert.NotEmpty(t, findings[0].Action)
		})
	}
}

func TestDetectCriticalFindings_NoDecision(t *testing.T) {
	findings := DetectCriticalFindings(domain.ClinicalData{}, nil)
	assert.NotNil(t, findings)
	assert.Empty(t, findings)
}

func TestDetectCriticalFindings_TumorInVein(t *testing.T) {
	cd := domain.ClinicalData{Lesions: []domain.Lesion{{TumorInVein: true}, {TumorInVein: true}}}

	assert.Equal(t, []string{"TUMOR_IN_VEIN"}, codes(DetectCriticalFindings(cd, nil)))
	assert.Equal(t, []string{"LIRADS_TIV"}, codes(DetectCriticalFindings(cd, decision(lirads.LRTIV))))
}

func TestDetectCriticalFindings_Regions(t *testing.T) {
	tests := []struct {
		name string
		cd   domain.ClinicalData
		want []string
	}{
		{
			name: "midline shift",
			cd:   domain.ClinicalData{BrainLesions: []domain.BrainLesion{{MidlineShift: true}}},
			want: []string{"MIDLINE_SHIFT"},
		},
		{
			name: "mass effect with edema",
			cd:   domain.ClinicalData{BrainLesions: []domain.BrainLesion{{MassEffect: true, PerilesionalEdema: true}}},
			want: []string{"MASS_EFFECT_EDEMA"},
		},
		{
			name: "mass effect alone",
			cd:   domain.ClinicalData{BrainLesions: []domain.BrainLesion{{MassEffect: true}}},
			want: []string{},
		},
		{
			name: "cord compression with fracture",
			cd:   domain.ClinicalData{SpineLesions: []domain.SpineLesion{{CordCompression: true, VertebralFracture: true}}},
			want: []string{"CORD_COMPRESSION", "UNSTABLE_FRACTURE"},
		},
		{
			name: "fracture alone",
			cd:   domain.ClinicalData{SpineLesions: []domain.SpineLesion{{VertebralFracture: true}}},
			want: []string{},
		},
		{
			name: "spiculation with lymphadenopathy",
			cd:   domain.ClinicalData{ThoraxLesions: []domain.ThoraxLesion{{Spiculation: true, Lymphadenopathy: true}}},
			want: []string{"LUNG_MALIGNANCY_SUSPECT"},
		},
		{
			name: "spiculation alone",
			cd:   domain.ClinicalData{ThoraxLesions: []domain.ThoraxLesion{{Spiculation: true}}},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codes(DetectCriticalFindings(tt.cd, nil)))
		})
	}
}

func TestDetectCriticalFindings_Ordering(t *testing.T) {
	cd := domain.ClinicalData{
		Lesions:       []domain.Lesion{{TumorInVein: true}},
		BrainLesions:  []domain.BrainLesion{{MassEffect: true, PerilesionalEdema: true}, {MidlineShift: true}},
		ThoraxLesions: []domain.ThoraxLesion{{Spiculation: true, Lymphadenopathy: true}},
	}

	findings := DetectCriticalFindings(cd, decision(lirads.LR4))

	// Stable within a level: insertion order is kept
	assert.Equal(t, []string{
		"TUMOR_IN_VEIN",
		"MIDLINE_SHIFT",
		"MASS_EFFECT_EDEMA",
		"LUNG_MALIGNANCY_SUSPECT",
		"LIRADS_4",
	}, codes(findings))
}
