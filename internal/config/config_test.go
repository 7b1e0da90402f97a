package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcli/internal/tabular"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Tables.FinalColumns, 53)
}

func TestValidateRejectsBadModes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad offset mode", func(c *Config) { c.Run.OffsetMode = "guess" }},
		{"bad withdraw mode", func(c *Config) { c.Run.WithdrawMode = "estimate" }},
		{"bad segment", func(c *Config) { c.Run.PrimaryFirstPaySegment = "child" }},
		{"zero default rate", func(c *Config) { c.Tables.DefaultExchangeRate = 0 }},
		{"negative region rate", func(c *Config) { c.Tables.ExchangeRates["巴西"] = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestExchangeRateFor(t *testing.T) {
	tables := Default().Tables

	assert.Equal(t, 6.0, tables.ExchangeRateFor("巴西"))
	assert.Equal(t, 6.0, tables.ExchangeRateFor("巴西BR"), "substring match")
	assert.Equal(t, 18.7, tables.ExchangeRateFor("墨西哥"))
	assert.Equal(t, 6.0, tables.ExchangeRateFor("火星"), "unknown region gets default")
	assert.Equal(t, 6.0, tables.ExchangeRateFor(""), "empty region gets default")
}

func TestDepartmentFor(t *testing.T) {
	tables := Default().Tables

	assert.Equal(t, "A8", tables.DepartmentFor("SP1"))
	assert.Equal(t, "天成", tables.DepartmentFor("OK7"))
	assert.Equal(t, "XX9", tables.DepartmentFor("XX9"), "unmapped platform falls back to itself")
}

func TestAliasTablesCoverPipelineFields(t *testing.T) {
	tables := Default().Tables

	for _, field := range []string{
		tabular.FieldDate, tabular.FieldChannel, tabular.FieldAgentID,
		tabular.FieldPlatform, tabular.FieldRegister, tabular.FieldPayAmount,
		tabular.FieldSpend, tabular.FieldSegment,
	} {
		assert.NotEmpty(t, tables.AliasesFor(field), field)
	}
	for _, d := range []int{1, 2, 3, 7, 14, 15, 30} {
		assert.NotEmpty(t, tables.AliasesFor(tabular.FirstPayLTVField(d)))
	}
	for _, d := range []int{1, 3, 7, 14, 15, 30} {
		assert.NotEmpty(t, tables.AliasesFor(tabular.RetentionField(d)))
	}
}

func TestFillDefaultsKeepsOverrides(t *testing.T) {
	tables := Tables{ExchangeRates: map[string]float64{"巴西": 5.5}}
	tables.fillDefaults()

	assert.Equal(t, 5.5, tables.ExchangeRates["巴西"], "explicit table kept")
	assert.NotEmpty(t, tables.Aliases, "missing tables defaulted")
	assert.Len(t, tables.FinalColumns, 53)
}
