package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToHalfWidth(t *testing.T) {
	assert.Equal(t, "abc(123)", ToHalfWidth("abc(１２３)"))
	assert.Equal(t, "no change", ToHalfWidth("no change"))
	assert.Equal(t, "（55）", ToHalfWidth("（５５）"), "parens stay full-width, digits fold")
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"iso date", "2025-10-30", "2025-10-30", true},
		{"slash date", "2025/10/30", "2025-10-30", true},
		{"compact date", "20251030", "2025-10-30", true},
		{"datetime drops time", "2025-10-30 08:15:00", "2025-10-30", true},
		{"full-width digits", "２０２５-１０-３０", "2025-10-30", true},
		{"summary sentinel", "数据汇总", "", false},
		{"empty", "   ", "", false},
		{"garbage", "yesterday", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeDate(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractTailAgentID(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   int64
		wantOK bool
	}{
		{"half-width parens", "A8_BR_333_KKK_AAA(55)", 55, true},
		{"full-width parens", "A8_BR_333_KKK_AAA（55）", 55, true},
		{"full-width digits", "A8_BR（５５）", 55, true},
		{"trailing whitespace", "A8_BR(123)  ", 123, true},
		{"mid-string parens ignored", "A8(7)_BR", 0, false},
		{"no parens", "A8_BR_333", 0, false},
		{"non-numeric tail", "A8_BR(abc)", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractTailAgentID(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripTailParenthesis(t *testing.T) {
	assert.Equal(t, "A8_BR_333_KKK_AAA", StripTailParenthesis("A8_BR_333_KKK_AAA(55) "))
	assert.Equal(t, "A8_BR_333_KKK_AAA", StripTailParenthesis("A8_BR_333_KKK_AAA（55）"))
	assert.Equal(t, "A8_BR_333", StripTailParenthesis("A8_BR_333"))
	assert.Equal(t, "", StripTailParenthesis("   "))
}

func TestStableAgentIDDeterministic(t *testing.T) {
	a := StableAgentID("A8_BR_333_KKK_AAA")
	b := StableAgentID("A8_BR_333_KKK_AAA")
	c := StableAgentID("A8_BR_333_KKK_BBB")

	assert.Equal(t, a, b, "same name, same id")
	assert.NotEqual(t, a, c)
	assert.Positive(t, a)
	assert.Less(t, a, int64(1)<<32, "id stays in 32-bit range")
	assert.Zero(t, StableAgentID(""))
}

func TestStableAgentIDKnownValue(t *testing.T) {
	// md5("abc") = 900150983cd24fb0..., first 8 hex digits as an integer.
	assert.Equal(t, int64(0x90015098), StableAgentID("abc"))
}

func TestExtractLTVValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"11.34(110.00)", 11.34},
		{"0(0)", 0.0},
		{"", 0.0},
		{"7.5", 7.5},
		{"-2.5(10)", -2.5},
		{"n/a", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractLTVValue(tt.in))
		})
	}
}

func TestExtractRetentionRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"2 (8.70%)", 8.70},
		{"8.7%", 8.7},
		{"0.087", 8.7},
		{"42", 42.0},
		{"1.0", 100.0},
		{"", 0.0},
		{"none", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, ExtractRetentionRate(tt.in), 1e-9)
		})
	}
}
