package refactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSynthesize(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"a + b", "ab"},
		{"42", "newField"},
		{"", "newField"},
		{"user.Name", "username"},
		{`strings.ToUpper(name)`, "stringstouppername"},
		{"len(xs) * 2", "lenxs"},
		{"Ärger(1)", "ärger"},
		{"`raw` + \"quoted\"", "rawquoted"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got := Synthesize(tt.expr)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Synthesize(tt.expr), "synthesis must be deterministic")
		})
	}
}

func TestSynthesizeWithFallback(t *testing.T) {
	assert.Equal(t, "value", SynthesizeWithFallback("1 << 3", "value"))
	assert.Equal(t, "x", SynthesizeWithFallback("x", "value"))
}

func TestDisambiguate(t *testing.T) {
	tests := []struct {
		name  string
		taken []string
		want  string
	}{
		{"total", nil, "total"},
		{"total", []string{"total"}, "total1"},
		{"total", []string{"total", "total1", "total2"}, "total3"},
		{"len", nil, "len1"},
		{"type", nil, "type1"},
		{"x", []string{"x1"}, "x"},
	}
	for _, tt := range tests {
		taken := make(map[string]bool)
		for _, n := range tt.taken {
			taken[n] = true
		}
		assert.Equal(t, tt.want, Disambiguate(tt.name, taken), "%s %v", tt.name, tt.taken)
	}
}

func TestExported(t *testing.T) {
	assert.Equal(t, "Total", Exported("total"))
	assert.Equal(t, "Ärger", Exported("ärger"))
	assert.Equal(t, "", Exported(""))
}
