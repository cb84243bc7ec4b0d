package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"HanRunsSplitOnSeparators", "报工 产量 完工", []string{"报工", "产量", "完工"}},
		{"MixedHanAndASCII", "查询WO2024的进度", []string{"查询", "WO2024", "的进度"}},
		{"ASCIIWordBoundaries", "show order WO-100", []string{"show", "order", "WO", "100"}},
		{"PunctuationSplits", "报工，产量300", []string{"报工", "产量", "300"}},
		{"Empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenize(tt.input))
		})
	}
}

func TestEligibleKeyword(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"报工", true},
		{"WO2024", true},
		{"的", false},    // single rune
		{"帮我", false},   // stop word
		{"please", false},
		{"300", false}, // purely numeric
		{"x", false},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, eligibleKeyword(tt.token, defaultStopWords))
		})
	}
}
