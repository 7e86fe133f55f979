package service

import (
	"sort"

	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/pkg/lirads"
)

var levelPriority = map[string]int{
	domain.LevelCritical:    0,
	domain.LevelUrgent:      1,
	domain.LevelSignificant: 2,
}

var categoryFindings = map[lirads.Category]domain.CriticalFinding{
	lirads.LR5: {
		Level:   domain.LevelCritical,
		Code:    "LIRADS_5",
		Message: "LR-5: definite HCC, urgent multidisciplinary tumor board recommended",
		Action:  "Refer to the tumor board. Evaluate for resection, TACE or ablation.",
	},
	lirads.LRTIV: {
		Level:   domain.LevelCritical,
		Code:    "LIRADS_TIV",
		Message: "LR-TIV: tumor in vein, very high risk",
		Action:  "Urgent oncology consultation. Assess portal vein tumor thrombus.",
	},
	lirads.LRM: {
		Level:   domain.LevelUrgent,
		Code:    "LIRADS_M",
		Message: "LR-M: malignancy other than HCC suspected, consider biopsy",
		Action:  "Plan a biopsy. Exclude intrahepatic cholangiocarcinoma or metastasis.",
	},
	lirads.LR4: {
		Level:   domain.LevelSignificant,
		Code:    "LIRADS_4",
		Message: "LR-4: probably HCC, close follow-up or biopsy",
		Action:  "Repeat MRI within 3 months or plan a biopsy.",
	},
	lirads.LR3: {
		Level:   domain.LevelSignificant,
		Code:    "LIRADS_3",
		Message: "LR-3: intermediate probability, 6 month surveillance recommended",
		Action:  "Repeat MRI within 6 months and watch for growth or new major features.",
	},
}

var (
	findingTumorInVein = domain.CriticalFinding{
		Level:   domain.LevelCritical,
		Code:    "TUMOR_IN_VEIN",
		Message: "Tumor invasion of a vein detected",
		Action:  "Urgent vascular surgery or oncology assessment.",
	}
	findingMidlineShift = domain.CriticalFinding{
		Level:   domain.LevelCritical,
		Code:    "MIDLINE_SHIFT",
		Message: "Midline shift, urgent neurological assessment required",
		Action:  "Urgent neurosurgery consultation. Assess herniation risk.",
	}
	findingMassEffectEdema = domain.CriticalFinding{
		Level:   domain.LevelUrgent,
		Code:    "MASS_EFFECT_EDEMA",
		Message: "Mass effect with perilesional edema, raised intracranial pressure risk",
		Action:  "Consider steroid therapy and neurosurgery consultation.",
	}
	findingCordCompression = domain.CriticalFinding{
		Level:   domain.LevelCritical,
		Code:    "CORD_COMPRESSION",
		Message: "Spinal cord compression, urgent intervention may be needed",
		Action:  "Urgent neurosurgery or orthopedic consultation. Exclude cauda equina syndrome.",
	}
	findingUnstableFracture = domain.CriticalFinding{
		Level:   domain.LevelCritical,
		Code:    "UNSTABLE_FRACTURE",
		Message: "Vertebral fracture with cord compression, unstable fracture risk",
		Action:  "Urgent spinal stabilisation assessment.",
	}
	findingLungMalignancy = domain.CriticalFinding{
		Level:   domain.LevelUrgent,
		Code:    "LUNG_MALIGNANCY_SUSPECT",
		Message: "Spiculation with lymphadenopathy, high suspicion of lung malignancy",
		Action:  "Plan PET-CT and biopsy. Thoracic surgery or oncology consultation.",
	}
)

// DetectCriticalFindings returns the alerts raised by clinical data and an
// optional decision, deduplicated by code and ordered most severe first.
// The result is never nil.
func DetectCriticalFindings(cd domain.ClinicalData, decision *lirads.DecisionResult) []domain.CriticalFinding {
	var findings []domain.CriticalFinding

	hasCode := func(code string) bool {
		for _, f := range findings {
			if f.Code == code {
				return true
			}
		}
		return false
	}

	if decision != nil {
		if f, ok := categoryFindings[decision.Category]; ok {
			findings = append(findings, f)
		}
	}

	for _, l := range cd.Lesions {
		if bool(l.TumorInVein) && !hasCode("LIRADS_TIV") {
			findings = append(findings, findingTumorInVein)
		}
	}

	for _, l := range cd.BrainLesions {
		if l.MidlineShift {
			findings = append(findings, findingMidlineShift)
		}
		if l.MassEffect && l.PerilesionalEdema {
			findings = append(findings, findingMassEffectEdema)
		}
	}

	for _, l := range cd.SpineLesions {
		if l.CordCompression {
			findings = append(findings, findingCordCompression)
		}
		if l.VertebralFracture && l.CordCompression {
			findings = append(findings, findingUnstableFracture)
		}
	}

	for _, l := range cd.ThoraxLesions {
		if l.Spiculation && l.Lymphadenopathy {
			findings = append(findings, findingLungMalignancy)
		}
	}

	seen := make(map[string]bool, len(findings))
	unique := make([]domain.CriticalFinding, 0, len(findings))
	for _, f := range findings {
		if seen[f.Code] {
			continue
		}
		seen[f.Code] = true
		unique = append(unique, f)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return levelPriority[unique[i].Level] < levelPriority[unique[j].Level]
	})
	return unique
}
