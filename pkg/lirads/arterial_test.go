package lirads

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyArterialText(t *testing.T) {
	tests := []struct {
		input    string
		expected ArterialPattern
	}{
		{"rim enhancement", ArterialRim},
		{"rim enhansman", ArterialRim},
		{"Rim APHE", ArterialRim},
		{"RIM", ArterialRim},
		{"Rİm enhansman", ArterialRim},
		{"  rim-like peripheral", ArterialRim},
		{"arterial hyperenhancement (non-rim APHE)", ArterialAPHE},
		{"hiperenhansman (non-rim APHE)", ArterialAPHE},
		{"HİPERENHANSMAN", ArterialAPHE},
		{"APHE", ArterialAPHE},
		{"hyperenhancing nodule", ArterialAPHE},
		{"hipoenhansman", ArterialNone},
		{"isoenhancement", ArterialNone},
		{"", ArterialNone},
		{"   ", ArterialNone},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyArterialText(tt.input))
		})
	}
}

func TestArterialPattern_String(t *testing.T) {
	assert.Equal(t, "rim", ArterialRim.String())
	assert.Equal(t, "aphe", ArterialAPHE.String())
	assert.Equal(t, "none", ArterialNone.String())
}
