package lirads

// Category is a LI-RADS v2018 diagnostic category.
type Category string

const (
	LR1   Category = "LR-1"
	LR2   Category = "LR-2"
	LR3   Category = "LR-3"
	LR4   Category = "LR-4"
	LR5   Category = "LR-5"
	LRM   Category = "LR-M"
	LRTIV Category = "LR-TIV"
)

var categoryLabels = map[Category]string{
	LR1:   "LR-1 (Definitely benign)",
	LR2:   "LR-2 (Probably benign)",
	LR3:   "LR-3 (Intermediate probability)",
	LR4:   "LR-4 (Probable HCC)",
	LR5:   "LR-5 (Definite HCC)",
	LRM:   "LR-M (Probably or definitely malignant, not HCC specific)",
	LRTIV: "LR-TIV (Tumor in Vein)",
}

// Label returns the human readable label for the category.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// IsValid reports whether c is one of the known categories.
func (c Category) IsValid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Criterion names recorded in DecisionResult.AppliedCriteria.
const (
	CriterionCirrhosis                 = "cirrhosis"
	CriterionArterialHyperenhancement  = "arterial_hyperenhancement"
	CriterionWashout                   = "washout"
	CriterionCapsule                   = "capsule_appearance"
	CriterionRimAPHE                   = "rim_aphe"
	CriterionPeripheralWashout         = "peripheral_washout"
	CriterionDelayedCentralEnhancement = "delayed_central_enhancement"
	CriterionInfiltrative              = "infiltrative_appearance"
	CriterionTumorInVein               = "tumor_in_vein"
)

// Ancillary feature keys understood by the engine and produced by the bridge.
const (
	AncillaryFatSparing          = "fat_sparing_in_solid_mass"
	AncillaryBloodProducts       = "blood_products_in_mass"
	AncillaryCoronaEnhancement   = "corona_enhancement"
	AncillaryMildHBPHypointense  = "mild_hbp_hypointensity"
	AncillaryRestrictedDiffusion = "restricted_diffusion"
	AncillaryMosaicArchitecture  = "mosaic_architecture"
	AncillaryNoduleInNodule      = "nodule_in_nodule"
)

// ancillaryFavorHCC lists, in reporting order, the ancillary features that
// favor HCC in particular.
var ancillaryFavorHCC = []string{
	AncillaryFatSparing,
	AncillaryBloodProducts,
	AncillaryCoronaEnhancement,
	AncillaryMildHBPHypointense,
}

// ArterialPhase holds arterial phase observations.
type ArterialPhase struct {
	Hyperenhancement bool `json:"hyperenhancement"`
}

// PortalPhase holds portal venous phase observations.
type PortalPhase struct {
	Washout bool `json:"washout"`
}

// DelayedPhase holds delayed phase observations.
type DelayedPhase struct {
	Capsule bool `json:"capsule"`
}

// DSL is the canonical finding description consumed by Classify.
// The zero value is the empty finding.
type DSL struct {
	ArterialPhase             ArterialPhase   `json:"arterial_phase"`
	PortalPhase               PortalPhase     `json:"portal_phase"`
	DelayedPhase              DelayedPhase    `json:"delayed_phase"`
	LesionSizeMM              int             `json:"lesion_size_mm"`
	Cirrhosis                 bool            `json:"cirrhosis"`
	RimAPHE                   bool            `json:"rim_aphe"`
	PeripheralWashout         bool            `json:"peripheral_washout"`
	DelayedCentralEnhancement bool            `json:"delayed_central_enhancement"`
	Infiltrative              bool            `json:"infiltrative"`
	TumorInVein               bool            `json:"tumor_in_vein"`
	AncillaryFeatures         map[string]bool `json:"ancillary_features,omitempty"`
}

// HasAncillary reports whether the named ancillary feature is present.
func (d DSL) HasAncillary(name string) bool {
	return d.AncillaryFeatures[name]
}

// DecisionResult is the outcome of a classification.
type DecisionResult struct {
	Category             Category `json:"category"`
	Label                string   `json:"label"`
	Rule                 string   `json:"rule"`
	AppliedCriteria      []string `json:"applied_criteria"`
	AncillaryFavorHCC    []string `json:"ancillary_favor_hcc"`
	AncillaryFavorBenign []string `json:"ancillary_favor_benign"`
}
