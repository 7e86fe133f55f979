// Package lirads implements the LI-RADS v2018 decision tree for liver
// observations and the helpers that derive its input from clinical forms.
package lirads

// Size thresholds in millimetres. Comparisons are inclusive.
const (
	MinSizeMM       = 10
	LargeLesionSize = 20
)

// MaxSizeMM is the largest lesion size accepted on input.
const MaxSizeMM = 500

// evidence is the DSL reduced to the facts the rules look at.
type evidence struct {
	cirrhosis    bool
	aphe         bool
	washout      bool
	capsule      bool
	sizeMM       int
	rimAPHE      bool
	peripheral   bool
	delayedEnh   bool
	infiltrative bool
	tumorInVein  bool
	ancillaryHCC []string
}

func collectEvidence(d DSL) evidence {
	ev := evidence{
		cirrhosis:    d.Cirrhosis,
		aphe:         d.ArterialPhase.Hyperenhancement,
		washout:      d.PortalPhase.Washout,
		capsule:      d.DelayedPhase.Capsule,
		sizeMM:       d.LesionSizeMM,
		rimAPHE:      d.RimAPHE,
		peripheral:   d.PeripheralWashout,
		delayedEnh:   d.DelayedCentralEnhancement,
		infiltrative: d.Infiltrative,
		tumorInVein:  d.TumorInVein,
		ancillaryHCC: []string{},
	}
	for _, name := range ancillaryFavorHCC {
		if d.HasAncillary(name) {
			ev.ancillaryHCC = append(ev.ancillaryHCC, name)
		}
	}
	return ev
}

func (ev evidence) majorFeatures() int {
	n := 0
	if ev.washout {
		n++
	}
	if ev.capsule {
		n++
	}
	return n
}

// gate is the cirrhosis + APHE + size >= 10 precondition shared by LR-5, LR-4
// and the first LR-3 branch.
func (ev evidence) gate() bool {
	return ev.cirrhosis && ev.aphe && ev.sizeMM >= MinSizeMM
}

func (ev evidence) gateCriteria() []string {
	c := []string{CriterionCirrhosis, CriterionArterialHyperenhancement}
	if ev.washout {
		c = append(c, CriterionWashout)
	}
	if ev.capsule {
		c = append(c, CriterionCapsule)
	}
	return c
}

// Rule is one entry of the decision cascade. Match reports whether the rule
// applies and, if so, the criteria that led to it.
type Rule struct {
	Name     string
	Category Category
	Match    func(ev evidence) ([]string, bool)
}

// rules is evaluated top to bottom and the first match wins.
// Order encodes precedence: TIV > M > 5 > 4 > 3 > 2.
var rules = []Rule{
	{
		Name:     "tumor_in_vein",
		Category: LRTIV,
		Match: func(ev evidence) ([]string, bool) {
			return []string{CriterionTumorInVein}, ev.tumorInVein
		},
	},
	{
		Name:     "targetoid_or_infiltrative",
		Category: LRM,
		Match: func(ev evidence) ([]string, bool) {
			var c []string
			if ev.rimAPHE {
				c = append(c, CriterionRimAPHE)
			}
			if ev.peripheral {
				c = append(c, CriterionPeripheralWashout)
			}
			if ev.delayedEnh {
				c = append(c, CriterionDelayedCentralEnhancement)
			}
			if ev.infiltrative {
				c = append(c, CriterionInfiltrative)
			}
			return c, len(c) > 0
		},
	},
	{
		Name:     "aphe_two_major_features",
		Category: LR5,
		Match: func(ev evidence) ([]string, bool) {
			return ev.gateCriteria(), ev.gate() && ev.majorFeatures() >= 2
		},
	},
	{
		Name:     "aphe_one_major_feature_large",
		Category: LR5,
		Match: func(ev evidence) ([]string, bool) {
			return ev.gateCriteria(), ev.gate() && ev.majorFeatures() == 1 && ev.sizeMM >= LargeLesionSize
		},
	},
	{
		Name:     "aphe_major_or_ancillary",
		Category: LR4,
		Match: func(ev evidence) ([]string, bool) {
			return ev.gateCriteria(), ev.gate() && (ev.majorFeatures() > 0 || len(ev.ancillaryHCC) > 0)
		},
	},
	{
		Name:     "aphe_without_major_features",
		Category: LR3,
		Match: func(ev evidence) ([]string, bool) {
			return ev.gateCriteria(), ev.gate()
		},
	},
	{
		Name:     "aphe_with_ancillary",
		Category: LR3,
		Match: func(ev evidence) ([]string, bool) {
			return []string{CriterionCirrhosis, CriterionArterialHyperenhancement},
				ev.cirrhosis && ev.aphe && len(ev.ancillaryHCC) > 0
		},
	},
	{
		Name:     "aphe_small",
		Category: LR3,
		Match: func(ev evidence) ([]string, bool) {
			return []string{CriterionArterialHyperenhancement}, ev.aphe && ev.sizeMM < MinSizeMM
		},
	},
}

// fallback is reached when no rule matches.
var fallback = Rule{Name: "default", Category: LR2}

// Rules returns a copy of the decision cascade in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Classify maps a finding to its LI-RADS category. It never fails and does
// not modify d.
func Classify(d DSL) DecisionResult {
	ev := collectEvidence(d)

	matched := fallback
	criteria := []string{}
	for _, r := range rules {
		if c, ok := r.Match(ev); ok {
			matched = r
			criteria = c
			break
		}
	}

	return DecisionResult{
		Category:             matched.Category,
		Label:                matched.Category.Label(),
		Rule:                 matched.Name,
		AppliedCriteria:      criteria,
		AncillaryFavorHCC:    ev.ancillaryHCC,
		AncillaryFavorBenign: []string{},
	}
}
