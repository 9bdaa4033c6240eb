package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		name   string
		label  string
		want   ClassificationResult
		wantOK bool
	}{
		{"simple", "brakes|pad_replacement", ClassificationResult{"brakes", "pad_replacement"}, true},
		{"split on first separator", "engine|oil|filter", ClassificationResult{"engine", "oil|filter"}, true},
		{"empty name", "engine|", ClassificationResult{"engine", ""}, true},
		{"no separator", "engine", ClassificationResult{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLabel(tt.label)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnknownResult(t *testing.T) {
	r := UnknownResult()
	assert.True(t, r.IsUnknown())
	assert.Equal(t, "unknown|unknown", r.String())
	assert.False(t, ClassificationResult{Section: "unknown", Name: "pads"}.IsUnknown())
}
