// Package classify determines which record kind a source file represents.
// Classification is two-phase: filename keywords first (deterministic
// priority order), then a content signature over the header set for the
// scraper-downloaded files whose names carry no hint.
package classify

import (
	"path/filepath"
	"strings"

	"agentcli/internal/tabular"
)

// Kind identifies one of the record kinds the pipeline understands.
type Kind string

const (
	KindOps               Kind = "ops"
	KindAgent             Kind = "agent"
	KindPlatform          Kind = "platform"
	KindDaily             Kind = "daily"
	KindRetentionLogin    Kind = "ret_login"
	KindRetentionRegister Kind = "ret_register"
	KindRetentionFirstPay Kind = "ret_fpay"
	KindRetentionPlay     Kind = "ret_play"
	KindFirstPayLTV       Kind = "fpltv"
	KindCost              Kind = "cost"
	KindUnknown           Kind = "unknown"
)

// RetentionKinds lists the four retention variants in lookback source
// preference order (pay > play > login > register).
var RetentionKinds = []Kind{KindRetentionFirstPay, KindRetentionPlay, KindRetentionLogin, KindRetentionRegister}

// SelectedExclusively reports whether a kind is prone to duplicate daily
// exports and therefore goes through the best-file selector; other kinds
// keep all candidate files (their records are unioned).
func (k Kind) SelectedExclusively() bool {
	switch k {
	case KindRetentionLogin, KindRetentionRegister, KindRetentionFirstPay, KindRetentionPlay, KindFirstPayLTV:
		return true
	}
	return false
}

// filenameRule maps filename keywords to a kind; rules apply in order and
// the first hit wins.
type filenameRule struct {
	keywords []string
	kind     Kind
}

var filenameRules = []filenameRule{
	{[]string{"operation_export"}, KindOps},
	{[]string{"agent_report", "代理报表"}, KindAgent},
	{[]string{"platform_report"}, KindPlatform},
	{[]string{"user_daily_export"}, KindDaily},
	{[]string{"first_paid_ltv", "ltv"}, KindFirstPayLTV},
	{[]string{"user_retention_first_login", "首充用户登录留存", "登录留存"}, KindRetentionLogin},
	{[]string{"user_retention_register_user", "注册留存"}, KindRetentionRegister},
	{[]string{"user_retention_first_pay", "首充用户付费留存", "付费留存"}, KindRetentionFirstPay},
	{[]string{"user_retention_first_play", "首充用户下注留存", "下注留存"}, KindRetentionPlay},
	{[]string{"阈值营收表", "阈值", "cost", "ads"}, KindCost},
}

// ByFilename classifies by filename keyword alone.
func ByFilename(path string) Kind {
	name := strings.ToLower(filepath.Base(path))
	for _, rule := range filenameRules {
		for _, kw := range rule.keywords {
			if strings.Contains(name, kw) {
				return rule.kind
			}
		}
	}
	return KindUnknown
}

// Classify resolves a file's kind: filename first, header signature second.
// Unclassifiable files are tagged unknown and excluded from the pipeline;
// that is not an error.
func Classify(path string, table *tabular.Table) Kind {
	if kind := ByFilename(path); kind != KindUnknown {
		return kind
	}
	return ByContent(table)
}

// ByContent classifies by the concatenated header set. The retention
// sub-kind check runs most-specific keyword first so the 首充 prefix shared
// by three variants cannot shadow the narrower ones.
func ByContent(table *tabular.Table) Kind {
	if table.Empty() {
		return KindUnknown
	}
	cols := table.HeaderText()

	hasAny := func(keywords ...string) bool {
		for _, kw := range keywords {
			if strings.Contains(cols, kw) {
				return true
			}
		}
		return false
	}

	hasChannel := hasAny("渠道", "总代", "代理", "agent", "channel", "总代名称")
	hasRegister := hasAny("注册", "register", "新增注册")
	hasActive := hasAny("活跃", "active")
	hasPay := hasAny("充值", "付费", "pay", "充值人数", "充值金额")

	if hasChannel && (hasRegister || hasActive || hasPay) {
		return KindAgent
	}

	if hasAny("FPLTV", "首充LTV", "首充ltv") {
		return KindFirstPayLTV
	}

	if hasAny("ltv_d1", "ltv_d3", "ltv_d7", "LTV(D") {
		return KindPlatform
	}

	if hasAny("留存", "retention", "D1", "D3", "D7", "D14", "D30") {
		switch {
		case hasAny("下注", "投注", "first_play", "play"):
			return KindRetentionPlay
		case hasAny("首充", "first_pay") && hasAny("付费", "充值"):
			return KindRetentionFirstPay
		case hasAny("首登", "登录", "first_login", "login"):
			return KindRetentionLogin
		default:
			// register keywords and anything else default here
			return KindRetentionRegister
		}
	}

	if hasAny("消耗", "展示", "点击", "spend", "cost", "impression", "click") {
		return KindCost
	}

	if hasAny("首充人数", "首充金额", "firstpay") {
		return KindDaily
	}

	return KindUnknown
}
