package lirads

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDSL(t *testing.T) {
	d, err := DecodeDSL([]byte(`{
	  "arterial_phase": {"hyperenhancement": true},
	  "portal_phase": {"washout": true},
	  "lesion_size_mm": 18,
	  "ancillary_features": {"restricted_diffusion": true}
	}`))
	require.NoError(t, err)
	assert.True(t, d.ArterialPhase.Hyperenhancement)
	assert.True(t, d.PortalPhase.Washout)
	assert.Equal(t, 18, d.LesionSizeMM)
	assert.True(t, d.HasAncillary(AncillaryRestrictedDiffusion))
}

func TestDecodeDSL_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		loc  string
	}{
		{"size above max", `{"lesion_size_mm": 501}`, "/lesion_size_mm"},
		{"negative size", `{"lesion_size_mm": -3}`, "/lesion_size_mm"},
		{"fractional size", `{"lesion_size_mm": 12.5}`, "/lesion_size_mm"},
		{"unknown field", `{"lesion_size_mm": 1, "foo": true}`, "/"},
		{"non boolean feature", `{"lesion_size_mm": 1, "ancillary_features": {"x": "yes"}}`, "/ancillary_features/x"},
		{"not an object", `[1,2]`, "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDSL([]byte(tt.doc))
			var se *SchemaError
			require.True(t, errors.As(err, &se), "got %v", err)
			require.NotEmpty(t, se.Violations)
			assert.Contains(t, se.Violations[0], tt.loc)
		})
	}
}

func TestDecodeDSL_Malformed(t *testing.T) {
	_, err := DecodeDSL([]byte(`{"lesion_size_mm":`))
	require.Error(t, err)
	var se *SchemaError
	assert.False(t, errors.As(err, &se))
}

func TestDecodeDSL_AbsentFieldsDefault(t *testing.T) {
	d, err := DecodeDSL([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, DSL{}, d)
	assert.Equal(t, LR2, Classify(d).Category)

	d, err = DecodeDSL([]byte(`{"cirrhosis": true}`))
	require.NoError(t, err)
	assert.True(t, d.Cirrhosis)
	assert.Zero(t, d.LesionSizeMM)
}

func TestDecodeDSL_IntegralFloatSize(t *testing.T) {
	d, err := DecodeDSL([]byte(`{"lesion_size_mm": 12.0}`))
	require.NoError(t, err)
	assert.Equal(t, 12, d.LesionSizeMM)

	d, err = DecodeDSL([]byte(`{"lesion_size_mm": 1.2e1}`))
	require.NoError(t, err)
	assert.Equal(t, 12, d.LesionSizeMM)
}

func TestDecodeDSL_BoundaryAccepted(t *testing.T) {
	for _, doc := range []string{`{"lesion_size_mm": 0}`, `{"lesion_size_mm": 500}`} {
		_, err := DecodeDSL([]byte(doc))
		assert.NoError(t, err, doc)
	}
}
