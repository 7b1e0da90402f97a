package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickColumn(t *testing.T) {
	headers := []string{"日期", "渠道名称", "Register", "充值金额"}

	tests := []struct {
		name    string
		aliases []string
		want    string
	}{
		{
			name:    "exact match wins on priority order",
			aliases: []string{"日期", "时间", "date"},
			want:    "日期",
		},
		{
			name:    "later alias matches when earlier absent",
			aliases: []string{"统计日期", "渠道名称"},
			want:    "渠道名称",
		},
		{
			name:    "case insensitive second pass",
			aliases: []string{"注册人数", "register"},
			want:    "Register",
		},
		{
			name:    "exact match preferred over case-insensitive",
			aliases: []string{"充值金额", "REGISTER"},
			want:    "充值金额",
		},
		{
			name:    "no match returns empty",
			aliases: []string{"盘口", "platform"},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PickColumn(headers, tt.aliases))
		})
	}
}

func TestFloat(t *testing.T) {
	tests := []struct {
		name   string
		in     Cell
		want   float64
		wantOK bool
	}{
		{"plain string", "12.5", 12.5, true},
		{"thousands separators", "1,234,567", 1234567, true},
		{"float passthrough", float64(3.25), 3.25, true},
		{"int passthrough", int64(7), 7, true},
		{"empty string", "", 0, false},
		{"nil", nil, 0, false},
		{"garbage", "n/a", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Float(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInt(t *testing.T) {
	assert.Equal(t, int64(100), Int("100"))
	assert.Equal(t, int64(0), Int(nil))
	assert.Equal(t, int64(0), Int("-5"), "counts are non-negative")
	assert.Equal(t, int64(12), Int("12.9"), "fractional counts truncate")
}

func TestFlattenScalar(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"scalar passthrough", "abc", "abc"},
		{"numeric passthrough", 4.5, 4.5},
		{"slice picks first non-nil", []any{nil, "x", "y"}, "x"},
		{"empty slice", []any{}, nil},
		{"nested slice", []any{[]any{nil, 2.0}}, 2.0},
		{"map picks smallest key", map[string]any{"b": "two", "a": "one"}, "one"},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FlattenScalar(tt.in))
		})
	}
}

func TestFlattenScalarBoundedDepth(t *testing.T) {
	// Deeper than the bound resolves to a string rather than recursing forever.
	v := any("leaf")
	for i := 0; i < 15; i++ {
		v = []any{v}
	}
	got := FlattenScalar(v)
	_, isString := got.(string)
	assert.True(t, isString)
}
