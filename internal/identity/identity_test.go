package identity

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcli/internal/tabular"
	"agentcli/internal/textutil"
)

func TestParseChannel(t *testing.T) {
	info := ParseChannel("A8_BR_333_KKK_AAA_G1")

	assert.Equal(t, "TT产品", info.Product)
	assert.Equal(t, "A8", info.PlatformToken)
	assert.Equal(t, "BR", info.Department)
	assert.Equal(t, "群发(短信等)", info.TypeName)
	assert.Equal(t, "FB", info.MediaName)
	assert.Equal(t, "H5", info.MethodName)
	assert.Equal(t, "G1", info.Group)
}

func TestParseChannelUnknownCodesPassThrough(t *testing.T) {
	info := ParseChannel("A8_BR_999_XYZ_NOP")

	assert.Equal(t, "999", info.TypeName)
	assert.Equal(t, "XYZ", info.MediaName)
	assert.Equal(t, "NOP", info.MethodName)
}

func TestParseChannelMixedSeparators(t *testing.T) {
	info := ParseChannel("A8-BR 333__KKK-AAA")

	assert.Equal(t, "A8", info.PlatformToken)
	assert.Equal(t, "BR", info.Department)
	assert.Equal(t, "333", info.TypeCode)
	assert.Equal(t, "KKK", info.MediaCode)
	assert.Equal(t, "AAA", info.MethodCode)
}

func TestPromotionMethod(t *testing.T) {
	tests := []struct {
		name     string
		channels []string
		want     string
	}{
		{"sms keyword", []string{"A8_dx_br"}, "短信"},
		{"multiple methods sorted", []string{"A8_toufang", "A8_duanxin"}, "投放+短信"},
		{"chinese keyword", []string{"官方渠道1"}, "官方"},
		{"no keyword defaults", []string{"A8_BR_333"}, "投放"},
		{"empty defaults", nil, "投放"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PromotionMethod(tt.channels))
		})
	}
}

func opsRow(clean string, id int64) tabular.Row {
	return tabular.Row{
		tabular.FieldChannelClean: clean,
		tabular.FieldAgentID:      id,
	}
}

func TestBuildNameIDMapPicksMostFrequent(t *testing.T) {
	ops := []tabular.Row{
		opsRow("A8_BR", 55),
		opsRow("A8_BR", 55),
		opsRow("A8_BR", 99),
		opsRow("A8_MX", 56),
	}

	m := BuildNameIDMap(ops)
	assert.Equal(t, int64(55), m["A8_BR"])
	assert.Equal(t, int64(56), m["A8_MX"])
}

func TestBuildNameIDMapTieBreaksToSmallestID(t *testing.T) {
	ops := []tabular.Row{opsRow("A8_BR", 99), opsRow("A8_BR", 55)}

	assert.Equal(t, int64(55), BuildNameIDMap(ops)["A8_BR"])
}

func baseRow(date, plat string, id int64, clean string) tabular.Row {
	return tabular.Row{
		tabular.FieldDate:         date,
		tabular.FieldPlatform:     plat,
		tabular.FieldAgentID:      id,
		tabular.FieldChannel:      clean + "(x)",
		tabular.FieldChannelClean: clean,
	}
}

func TestBuildBaseDeduplicates(t *testing.T) {
	agent := []tabular.Row{
		baseRow("2025-10-30", "1xspin", 55, "A8_BR"),
		baseRow("2025-10-30", "1xspin", 55, "A8_BR"),
		baseRow("2025-10-30", "1xspin", 56, "A8_MX"),
	}

	base := BuildBase(agent)
	assert.Len(t, base, 2)
}

func TestSupplementAddsMissingCombinations(t *testing.T) {
	base := BuildBase([]tabular.Row{baseRow("2025-10-30", "1xspin", 55, "A8_BR")})
	names := map[int64]AgentName{77: {Name: "A8_XX(77)", Clean: "A8_XX"}}

	retention := []tabular.Row{
		baseRow("2025-10-30", "1xspin", 55, "A8_BR"), // already present
		{tabular.FieldDate: "2025-10-30", tabular.FieldPlatform: "1xspin", tabular.FieldAgentID: int64(77)},
		{tabular.FieldDate: "2025-10-30", tabular.FieldAgentID: int64(88)}, // no platform: skipped
	}

	out := Supplement(base, [][]tabular.Row{retention}, names, slog.Default())
	require.Len(t, out, 2)
	assert.Equal(t, "A8_XX", out[1][tabular.FieldChannelClean], "name backfilled from agent map")
}

func TestFillDims(t *testing.T) {
	base := []tabular.Row{
		{
			tabular.FieldDate:         "2025-10-30",
			tabular.FieldChannelClean: "A8_BR_333",
		},
	}

	out := FillDims(base)
	require.Len(t, out, 1)
	assert.Equal(t, Product, out[0][tabular.FieldProduct])
	assert.Equal(t, "BR", out[0][tabular.FieldDepartment], "department parsed from name")
	assert.Equal(t, "A8", out[0][tabular.FieldPlatform], "platform token fallback")
	assert.Equal(t, textutil.StableAgentID("A8_BR_333"), out[0][tabular.FieldAgentID])
	assert.Equal(t, "A8_BR_333", out[0][tabular.FieldChannel], "name falls back to cleaned form")
}

func TestFillDimsKeepsExplicitDims(t *testing.T) {
	base := []tabular.Row{
		{
			tabular.FieldDate:         "2025-10-30",
			tabular.FieldPlatform:     "1xspin",
			tabular.FieldDepartment:   "A8",
			tabular.FieldAgentID:      int64(55),
			tabular.FieldChannelClean: "XX_YY_333",
		},
	}

	out := FillDims(base)
	assert.Equal(t, "1xspin", out[0][tabular.FieldPlatform])
	assert.Equal(t, "A8", out[0][tabular.FieldDepartment])
	assert.Equal(t, int64(55), out[0][tabular.FieldAgentID])
}

func TestFillDimsSortsStable(t *testing.T) {
	base := []tabular.Row{
		baseRow("2025-10-30", "b", 2, "B"),
		baseRow("2025-10-30", "a", 9, "A"),
		baseRow("2025-10-29", "z", 1, "Z"),
	}

	out := FillDims(base)
	assert.Equal(t, "2025-10-29", out[0][tabular.FieldDate])
	assert.Equal(t, "a", out[1][tabular.FieldPlatform])
	assert.Equal(t, "b", out[2][tabular.FieldPlatform])
}
