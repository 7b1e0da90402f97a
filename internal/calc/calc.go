// Package calc derives the report metrics from the merged main table and
// projects every row onto the business output schema. Division is safe
// throughout: an absent or zero denominator yields 0, never NaN or Inf.
package calc

import (
	"fmt"

	"agentcli/internal/config"
	"agentcli/internal/tabular"
)

// Retention family prefixes used for the kind-qualified horizon fields the
// merge stage writes ("ret_login_d1" and so on).
const (
	FamilyLogin = "ret_login"
	FamilyPlay  = "ret_play"
	FamilyPay   = "ret_fpay"
)

// FamilyField names a kind-qualified retention horizon field.
func FamilyField(family string, day int) string {
	return fmt.Sprintf("%s_d%d", family, day)
}

var offsetDayNames = map[int]string{1: "次日", 3: "三日", 7: "七日", 15: "十五日", 30: "三十日"}

var offsetDays = []int{1, 3, 7, 15, 30}

// num reads a numeric field with 0 as the missing-value default.
func num(row tabular.Row, field string) float64 {
	return tabular.FloatOr(row[field], 0)
}

// str reads a text field with "" as the missing-value default.
func str(row tabular.Row, field string) string {
	s, _ := row[field].(string)
	return s
}

func safeDiv(a, b float64) float64 {
	if b > 0 {
		return a / b
	}
	return 0
}

// groupKey identifies an agent within a platform for the running-total
// metrics.
type groupKey struct {
	agentID  int64
	platform string
}

// Compute derives every output metric and returns rows keyed by the
// business column names. Input rows must be sorted by date within each
// (agent, platform) group; the cumulative metrics accumulate in iteration
// order.
func Compute(main []tabular.Row, cfg *config.Config) []tabular.Row {
	// Calendar-month spend sums per (agent, platform, month) in a first
	// pass so every row of the month carries the full month's figure.
	monthSpend := make(map[string]float64)
	monthKey := func(row tabular.Row) string {
		date := str(row, tabular.FieldDate)
		month := date
		if len(date) >= 7 {
			month = date[:7]
		}
		id, _ := row[tabular.FieldAgentID].(int64)
		return fmt.Sprintf("%d\x1f%s\x1f%s", id, str(row, tabular.FieldPlatform), month)
	}
	for _, row := range main {
		monthSpend[monthKey(row)] += num(row, tabular.FieldSpend)
	}

	type running struct{ pay, spend float64 }
	cumulative := make(map[groupKey]*running)

	out := make([]tabular.Row, 0, len(main))
	for _, row := range main {
		id, _ := row[tabular.FieldAgentID].(int64)
		gk := groupKey{agentID: id, platform: str(row, tabular.FieldPlatform)}

		reg := num(row, tabular.FieldRegister)
		fpu := num(row, tabular.FieldFirstPayUsers)
		payUsers := num(row, tabular.FieldPayUsers)
		payAmount := num(row, tabular.FieldPayAmount)
		firstPayAmount := num(row, tabular.FieldFirstPayAmount)
		withdraw := num(row, tabular.FieldWithdraw)
		spend := num(row, tabular.FieldSpend)
		impr := num(row, tabular.FieldImpressions)
		click := num(row, tabular.FieldClicks)
		primary := num(row, tabular.FieldPrimaryFirstPay)

		rec := tabular.Row{
			"产品":   str(row, tabular.FieldProduct),
			"盘口":   str(row, tabular.FieldPlatform),
			"日期":   str(row, tabular.FieldDate),
			"总代号":  id,
			"总代名称": str(row, tabular.FieldChannel),
			"推广部门": str(row, tabular.FieldDepartment),
			"推广方式": str(row, tabular.FieldPromotionMethod),

			"消耗":   spend,
			"展示":   impr,
			"点击":   click,
			"注册人数": reg,
			"充值人数": payUsers,
			"充值金额": payAmount,
			"提现金额": withdraw,
			"活跃人数": num(row, tabular.FieldActive),

			"首充人数":   fpu,
			"一级首充人数": primary,
			"当日首充金额": firstPayAmount,
		}

		rec["充提差"] = payAmount - withdraw
		rec["千展成本crm"] = safeDiv(spend, impr/1000.0)
		rec["点击率"] = safeDiv(click, impr)
		rec["注册成本"] = safeDiv(spend, reg)
		rec["首充成本"] = safeDiv(spend, fpu)
		rec["一级首充成本"] = safeDiv(spend, primary)
		rec["首充转化率"] = safeDiv(fpu, reg)
		rec["首充arppu"] = safeDiv(firstPayAmount, fpu)
		rec["首充roas"] = safeDiv(firstPayAmount, spend)
		rec["首充当日ltv"] = num(row, tabular.FirstPayLTVField(1))

		// First-pay deposit/withdraw gap. The statistics system reports
		// withdrawals for all payers only, so the first-pay share is either
		// approximated by headcount ratio or not deducted at all.
		var gap float64
		if cfg.Run.WithdrawMode == config.WithdrawModeScale {
			gap = firstPayAmount - withdraw*safeDiv(fpu, payUsers)
		} else {
			gap = firstPayAmount
		}
		rec["首充当日充提差"] = gap
		rec["首充当日roi"] = safeDiv(gap, spend)
		rec["首充充提差比"] = safeDiv(gap, firstPayAmount)

		// Offset LTVs from the lookback joins. The 15-day figure prefers
		// D15 and falls back to D14 for sites whose assessment window is a
		// day shorter.
		rec["首充两日ltv_偏移"] = num(row, tabular.FirstPayLTVField(2))
		rec["首充三日ltv_偏移"] = num(row, tabular.FirstPayLTVField(3))
		rec["首充七日ltv_偏移"] = num(row, tabular.FirstPayLTVField(7))
		d15 := num(row, tabular.FirstPayLTVField(15))
		if d15 == 0 {
			d15 = num(row, tabular.FirstPayLTVField(14))
		}
		rec["首充十五日ltv_偏移"] = d15
		rec["首充三十日ltv_偏移"] = num(row, tabular.FirstPayLTVField(30))

		// Offset retention rates per family. In formula mode the platform
		// retention rate is scaled to the first-pay cohort by the
		// firstpay/register ratio.
		ratio := safeDiv(fpu, reg)
		applyOffset := func(rate float64) float64 {
			if cfg.Run.OffsetMode == config.OffsetModeFormula {
				return rate * ratio
			}
			return rate
		}
		for family, label := range map[string]string{FamilyLogin: "复登率", FamilyPlay: "复投率", FamilyPay: "复充率"} {
			for _, day := range offsetDays {
				col := fmt.Sprintf("首充%s%s_偏移", offsetDayNames[day], label)
				rec[col] = applyOffset(num(row, FamilyField(family, day)))
			}
		}

		// Cumulative ROAS per (agent, platform) across the dates in this
		// run, in date order.
		r := cumulative[gk]
		if r == nil {
			r = &running{}
			cumulative[gk] = r
		}
		r.pay += payAmount
		r.spend += spend
		rec["累计roas"] = safeDiv(r.pay, r.spend)

		rec["自然月消耗"] = monthSpend[monthKey(row)]

		nonPrimary := fpu - primary
		if nonPrimary < 0 {
			nonPrimary = 0
		}
		rec["非一级首充人数/首充人数"] = safeDiv(nonPrimary, fpu)
		rec["非一级首充人数/充值人数"] = safeDiv(nonPrimary, payUsers)

		out = append(out, rec)
	}
	return out
}
