package lirads

import (
	"math"
	"strconv"
	"strings"

	"github.com/lirads-audit-server/internal/domain"
)

// Risk score weights used to pick the lesion that drives the report.
const (
	scoreTumorInVein = 200
	scoreTargetoid   = 100
	scoreMajor       = 10
)

var noduleInNoduleKeywords = []string{
	"nodule-in-nodule",
	"nodule in nodule",
	"nodül içinde nodül",
	"nodul icinde nodul",
	"nodül-içinde-nodül",
}

var mosaicKeywords = []string{"mosaic", "mozaik"}

// ParseSizeMM parses a lesion size in millimetres and rounds it to the
// nearest integer. Malformed, missing or negative values yield 0; values
// above MaxSizeMM are clamped to it.
func ParseSizeMM(s string) int {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	s = strings.TrimSpace(strings.TrimSuffix(strings.ToLower(s), "mm"))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	if v > MaxSizeMM {
		return MaxSizeMM
	}
	return int(math.Round(v))
}

// LesionDSL converts a single form lesion into a DSL.
func LesionDSL(l domain.Lesion, cirrhosis bool) DSL {
	d := DSL{
		Cirrhosis:                 cirrhosis,
		LesionSizeMM:              ParseSizeMM(string(l.SizeMM)),
		PortalPhase:               PortalPhase{Washout: bool(l.Washout)},
		DelayedPhase:              DelayedPhase{Capsule: bool(l.Capsule)},
		PeripheralWashout:         bool(l.PeripheralWashout),
		DelayedCentralEnhancement: bool(l.DelayedCentralEnhancement),
		Infiltrative:              bool(l.Infiltrative),
		TumorInVein:               bool(l.TumorInVein),
	}

	switch ClassifyArterialText(l.ArterialEnhancement) {
	case ArterialRim:
		d.RimAPHE = true
	case ArterialAPHE:
		d.ArterialPhase.Hyperenhancement = true
	}

	ancillary := map[string]bool{}
	if l.DWIRestriction {
		ancillary[AncillaryRestrictedDiffusion] = true
	}
	notes := strings.ToLower(l.Additional)
	if containsAny(notes, mosaicKeywords) {
		ancillary[AncillaryMosaicArchitecture] = true
	}
	if containsAny(notes, noduleInNoduleKeywords) {
		ancillary[AncillaryNoduleInNodule] = true
	}
	if len(ancillary) > 0 {
		d.AncillaryFeatures = ancillary
	}
	return d
}

// RiskScore ranks a lesion DSL for selection. Vascular invasion outranks
// targetoid morphology, which outranks major features and size.
func RiskScore(d DSL) int {
	score := d.LesionSizeMM
	if d.TumorInVein {
		score += scoreTumorInVein
	}
	if d.RimAPHE || d.PeripheralWashout || d.DelayedCentralEnhancement || d.Infiltrative {
		score += scoreTargetoid
	}
	for _, f := range []bool{d.ArterialPhase.Hyperenhancement, d.PortalPhase.Washout, d.DelayedPhase.Capsule} {
		if f {
			score += scoreMajor
		}
	}
	return score
}

// ExtractDSL derives one DSL from a clinical form, choosing the highest
// risk lesion. Ties go to the earliest lesion. With no lesions only the
// cirrhosis flag is carried over.
func ExtractDSL(cd domain.ClinicalData) DSL {
	cirrhosis := bool(cd.Cirrhosis)
	if len(cd.Lesions) == 0 {
		return DSL{Cirrhosis: cirrhosis}
	}

	best := LesionDSL(cd.Lesions[0], cirrhosis)
	bestScore := RiskScore(best)
	for _, l := range cd.Lesions[1:] {
		d := LesionDSL(l, cirrhosis)
		if s := RiskScore(d); s > bestScore {
			best, bestScore = d, s
		}
	}
	return best
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
