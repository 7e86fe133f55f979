package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// FlexBool decodes booleans from form data that may arrive as JSON
// booleans, numbers or strings. Anything it does not recognise is false.
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler. It never returns an error.
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")):
		*b = true
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*b = false
			return nil
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "1", "evet", "var", "on":
			*b = true
		default:
			*b = false
		}
	default:
		n, err := strconv.ParseFloat(string(data), 64)
		*b = FlexBool(err == nil && n != 0)
	}
	return nil
}

// FlexString decodes strings from form data that may arrive as JSON
// strings or numbers. Other JSON values decode to the empty string.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler. It never returns an error.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			*s = ""
			return nil
		}
		*s = FlexString(v)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err == nil {
		*s = FlexString(data)
		return nil
	}
	*s = ""
	return nil
}

// Lesion is one liver observation as entered on the clinical form.
type Lesion struct {
	Location                  string     `json:"location,omitempty"`
	SizeMM                    FlexString `json:"size_mm,omitempty"`
	ArterialEnhancement       string     `json:"arterial_enhancement,omitempty"`
	Washout                   FlexBool   `json:"washout,omitempty"`
	Capsule                   FlexBool   `json:"capsule,omitempty"`
	DWIRestriction            FlexBool   `json:"dwi_restriction,omitempty"`
	Additional                string     `json:"additional,omitempty"`
	PeripheralWashout         FlexBool   `json:"peripheral_washout,omitempty"`
	DelayedCentralEnhancement FlexBool   `json:"delayed_central_enhancement,omitempty"`
	Infiltrative              FlexBool   `json:"infiltrative,omitempty"`
	TumorInVein               FlexBool   `json:"tumor_in_vein,omitempty"`
}

// BrainLesion carries the neuro findings checked for critical alerts.
type BrainLesion struct {
	Location          string   `json:"location,omitempty"`
	MidlineShift      FlexBool `json:"midline_shift,omitempty"`
	MassEffect        FlexBool `json:"mass_effect,omitempty"`
	PerilesionalEdema FlexBool `json:"perilesional_edema,omitempty"`
}

// SpineLesion carries the spinal findings checked for critical alerts.
type SpineLesion struct {
	Level             string   `json:"level,omitempty"`
	CordCompression   FlexBool `json:"cord_compression,omitempty"`
	VertebralFracture FlexBool `json:"vertebral_fracture,omitempty"`
}

// ThoraxLesion carries the thoracic findings checked for critical alerts.
type ThoraxLesion struct {
	Location        string   `json:"location,omitempty"`
	Spiculation     FlexBool `json:"spiculation,omitempty"`
	Lymphadenopathy FlexBool `json:"lymphadenopathy,omitempty"`
}

// ClinicalData is a structured clinical form submission.
type ClinicalData struct {
	Region        string         `json:"region,omitempty"`
	Cirrhosis     FlexBool       `json:"cirrhosis,omitempty"`
	Lesions       []Lesion       `json:"lesions,omitempty"`
	BrainLesions  []BrainLesion  `json:"brain_lesions,omitempty"`
	SpineLesions  []SpineLesion  `json:"spine_lesions,omitempty"`
	ThoraxLesions []ThoraxLesion `json:"thorax_lesions,omitempty"`
	Age           FlexString     `json:"age,omitempty"`
	Gender        string         `json:"gender,omitempty"`
	Indication    string         `json:"indication,omitempty"`
	RiskFactors   FlexString     `json:"risk_factors,omitempty"`
}

// RegionOrDefault returns the anatomical region, abdomen when unset.
func (c ClinicalData) RegionOrDefault() string {
	if c.Region == "" {
		return "abdomen"
	}
	return c.Region
}

// Summary returns the subset of clinical data stored inside an audit pack.
func (c ClinicalData) Summary() map[string]any {
	return map[string]any{
		"region":       c.RegionOrDefault(),
		"age":          string(c.Age),
		"gender":       c.Gender,
		"indication":   c.Indication,
		"risk_factors": string(c.RiskFactors),
	}
}
