package config

import (
	"fmt"
	"strings"

	"agentcli/internal/tabular"
)

// Tables holds the operational lookup tables: header aliases per canonical
// field, currency exchange rates per region, the platform→department map,
// and the fixed output schema. All are data, not code — the sources they
// describe evolve their naming faster than releases ship.
type Tables struct {
	// Aliases maps a canonical field identifier to its acceptable literal
	// headers in priority order.
	Aliases map[string][]string `yaml:"aliases"`
	// ExchangeRates maps a region keyword (matched as a substring of the
	// filename region token) to the local-currency divisor.
	ExchangeRates map[string]float64 `yaml:"exchange_rates"`
	// DefaultExchangeRate applies when no region can be parsed from a
	// filename.
	DefaultExchangeRate float64 `yaml:"default_exchange_rate"`
	// PlatformDepartments maps a platform short code to its promotion
	// department.
	PlatformDepartments map[string]string `yaml:"platform_departments"`
	// FinalColumns is the exact output column order (53 business columns).
	FinalColumns []string `yaml:"final_columns"`
}

// AliasesFor returns the alias list for a canonical field, empty when the
// field has no table entry.
func (t Tables) AliasesFor(field string) []string {
	return t.Aliases[field]
}

// ExchangeRateFor resolves a region token from a filename to its rate.
// Matching is substring-based so "巴西BR" and "巴西" both hit the 巴西 entry.
func (t Tables) ExchangeRateFor(region string) float64 {
	if region != "" {
		for keyword, rate := range t.ExchangeRates {
			if keyword != "" && strings.Contains(region, keyword) {
				return rate
			}
		}
	}
	return t.DefaultExchangeRate
}

// DepartmentFor maps a platform code to its department; unmapped platforms
// fall back to the platform code itself.
func (t Tables) DepartmentFor(platform string) string {
	if dept, ok := t.PlatformDepartments[platform]; ok {
		return dept
	}
	return platform
}

// fillDefaults replaces any table left empty by config sources with the
// shipped defaults, so a partial YAML override keeps the rest intact.
func (t *Tables) fillDefaults() {
	def := defaultTables()
	if len(t.Aliases) == 0 {
		t.Aliases = def.Aliases
	}
	if len(t.ExchangeRates) == 0 {
		t.ExchangeRates = def.ExchangeRates
	}
	if t.DefaultExchangeRate == 0 {
		t.DefaultExchangeRate = def.DefaultExchangeRate
	}
	if len(t.PlatformDepartments) == 0 {
		t.PlatformDepartments = def.PlatformDepartments
	}
	if len(t.FinalColumns) == 0 {
		t.FinalColumns = def.FinalColumns
	}
}

func defaultTables() Tables {
	return Tables{
		Aliases:             defaultAliases(),
		ExchangeRates:       map[string]float64{"巴西": 6.0, "墨西哥": 18.7},
		DefaultExchangeRate: 6.0,
		PlatformDepartments: defaultPlatformDepartments(),
		FinalColumns:        defaultFinalColumns(),
	}
}

func defaultAliases() map[string][]string {
	aliases := map[string][]string{
		tabular.FieldDate:     {"日期", "时间", "date", "统计日期", "dt"},
		tabular.FieldChannel:  {"渠道名称", "总代名称", "渠道", "channel", "agent_name", "渠道名", "agent", "channel_name", "代理名称"},
		tabular.FieldAgentID:  {"代理ID", "agent_id", "AgentID", "总代ID"},
		tabular.FieldPlatform: {"盘口", "平台", "platform", "game_platform"},

		tabular.FieldRegister:       {"注册人数", "新增注册", "注册"},
		tabular.FieldActive:         {"活跃人数", "活跃"},
		tabular.FieldPayUsers:       {"充值人数", "付费人数"},
		tabular.FieldPayAmount:      {"充值金额", "付费金额", "金额", "总充值"},
		tabular.FieldFirstPayUsers:  {"首充人数", "首充人数（当日）"},
		tabular.FieldFirstPayAmount: {"首充金额", "首充金额（当日）", "首充付费金额", "当日首充金额"},
		tabular.FieldPayActiveUsers: {"活跃充值人数"},
		tabular.FieldImpressions:    {"展示", "impressions"},
		tabular.FieldClicks:         {"点击", "clicks"},
		tabular.FieldSpend:          {"消耗", "cost", "花费", "spent"},
		tabular.FieldWithdraw:       {"提现金额", "withdrew", "withdrawal"},

		tabular.FieldDepositWithdrawGap: {"充提差", "充值提现差"},

		tabular.FieldBetAmount: {"投注金额", "总投注额"},
		tabular.FieldWinAmount: {"中奖金额", "总中奖额"},
		tabular.FieldBetCount:  {"投注次数"},
		tabular.FieldBetUsers:  {"投注人数"},

		tabular.FieldSegment: {"裂变类型"},
	}

	// Platform LTV horizon columns.
	for _, d := range []int{1, 3, 7, 14, 30} {
		aliases[tabular.LTVField(d)] = []string{
			fmt.Sprintf("LTV(D%d)", d), fmt.Sprintf("ltv_d%d", d), fmt.Sprintf("ltv%d", d),
		}
	}

	// First-pay LTV horizon columns; day 1 additionally answers to the bare
	// cohort header the newer exports use.
	fpltvExtra := map[int][]string{
		1: {"首充", "考核1"},
		2: {"考核2"}, 3: {"考核3"}, 7: {"考核7"},
		14: {"考核14"}, 15: {"考核15"}, 30: {"考核30"},
	}
	for _, d := range []int{1, 2, 3, 7, 14, 15, 30} {
		list := append([]string{}, fpltvExtra[d]...)
		list = append(list,
			fmt.Sprintf("第%d天", d),
			fmt.Sprintf("FPLTV_D%d", d),
			fmt.Sprintf("fpltv_d%d", d),
			fmt.Sprintf("D%d", d),
		)
		aliases[tabular.FirstPayLTVField(d)] = list
	}

	// Retention horizon columns. Horizon n is exported as the "(n+1)日留存"
	// header (day-1 retention appears as 2日留存).
	retHeader := map[int]string{1: "2日留存", 3: "3日留存", 7: "7日留存", 14: "14日留存", 15: "15日留存", 30: "30日留存"}
	for _, d := range []int{1, 3, 7, 14, 15, 30} {
		aliases[tabular.RetentionField(d)] = []string{
			retHeader[d],
			fmt.Sprintf("D%d", d),
			fmt.Sprintf("留存率(D%d)", d),
			fmt.Sprintf("ret_d%d", d),
		}
	}

	return aliases
}

func defaultPlatformDepartments() map[string]string {
	return map[string]string{
		"OK7": "天成", "58": "天成", "AI7": "天成", "98": "天成", "LV7": "天成",
		"OO7": "天成", "Bmw7": "天成", "bmw7": "天成", "T33": "天成", "t33": "天成",
		"U777": "行远", "u777": "行远",
		"ONE7": "强盛", "one7": "强盛", "b77": "强盛",
		"17SS": "天龙", "17ss": "天龙", "tp7": "天龙",
		"1xspin": "A8", "SP1": "A8", "sp1": "A8", "BRL77": "A8", "brl77": "A8",
		"b777": "A8", "spin77": "A8", "brplay7": "A8", "hot77": "A8",
		"super7": "A8", "viva7": "A8", "gana7": "A8",
		"7sortudo": "57",
		"novabr":   "T9", "ak9": "T9", "samba": "T9",
		"pg7k": "KK",
		"5151": "大河",
		"bra1": "TTVSA8",
		"M333": "M7", "m333": "M7",
		"IV7": "TL", "iv7": "TL", "kq7": "TL",
	}
}

// defaultFinalColumns is the locked 53-column output order.
func defaultFinalColumns() []string {
	return []string{
		"产品", "盘口", "日期", "总代号", "总代名称", "推广部门", "推广方式", "消耗", "展示", "点击", "千展成本crm", "点击率",
		"注册成本", "首充成本", "一级首充成本", "注册人数", "首充人数", "一级首充人数", "首充转化率", "首充arppu", "首充roas",
		"首充当日ltv", "首充当日roi", "首充充提差比", "当日首充金额", "首充当日充提差",
		"首充次日复登率_偏移", "首充三日复登率_偏移", "首充七日复登率_偏移", "首充十五日复登率_偏移", "首充三十日复登率_偏移",
		"首充次日复投率_偏移", "首充三日复投率_偏移", "首充七日复投率_偏移", "首充十五日复投率_偏移", "首充三十日复投率_偏移",
		"首充次日复充率_偏移", "首充三日复充率_偏移", "首充七日复充率_偏移", "首充十五日复充率_偏移", "首充三十日复充率_偏移",
		"首充两日ltv_偏移", "首充三日ltv_偏移", "首充七日ltv_偏移", "首充十五日ltv_偏移", "首充三十日ltv_偏移",
		"累计roas", "自然月消耗", "非一级首充人数/首充人数", "非一级首充人数/充值人数", "充值金额", "充值人数", "充提差",
	}
}
