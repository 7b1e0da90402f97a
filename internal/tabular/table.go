package tabular

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Canonical field identifiers. Alias tables in config map each of these to
// the ordered list of literal headers a source may use for it.
const (
	FieldDate                = "date"
	FieldChannel             = "channel"
	FieldAgentID             = "agent_id"
	FieldPlatform            = "platform"
	FieldRegister            = "register"
	FieldActive              = "active"
	FieldPayUsers            = "pay_users"
	FieldPayAmount           = "pay_amount"
	FieldFirstPayUsers       = "firstpay_u"
	FieldFirstPayAmount      = "firstpay_a"
	FieldPayActiveUsers      = "pay_active_u"
	FieldImpressions         = "impr"
	FieldClicks              = "click"
	FieldSpend               = "spend"
	FieldWithdraw            = "withdraw"
	FieldDepositWithdrawGap  = "deposit_withdraw_diff"
	FieldBetAmount           = "bet_amt"
	FieldWinAmount           = "win_amt"
	FieldBetCount            = "bet_cnt"
	FieldBetUsers            = "bet_users"
	FieldSegment             = "segment"

	// Derived fields produced by standardization, never read from a source
	// header directly.
	FieldChannelClean    = "channel_clean"
	FieldChannelRaw      = "channel_raw"
	FieldDepartment      = "department"
	FieldPrimaryFirstPay = "primary_firstpay_u"
	FieldProduct         = "product"
	FieldPromotionMethod = "promotion_method"
)

// LTVField returns the canonical key for a platform LTV horizon column.
func LTVField(day int) string { return fmt.Sprintf("ltv_d%d", day) }

// FirstPayLTVField returns the canonical key for a first-pay LTV horizon column.
func FirstPayLTVField(day int) string { return fmt.Sprintf("fpltv_d%d", day) }

// RetentionField returns the canonical key for a retention horizon column.
func RetentionField(day int) string { return fmt.Sprintf("ret_d%d", day) }

// Cell holds a single table value: string, float64, int64, or nil.
type Cell = any

// Row maps a literal header to its cell value.
type Row map[string]Cell

// Table is an ordered set of rows sharing one header set. Headers preserve
// the source column order; rows may omit headers (treated as nil).
type Table struct {
	Headers []string
	Rows    []Row
}

// Empty reports whether the table has no usable content.
func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0 || len(t.Headers) == 0
}

// HasHeader reports whether the table carries the exact literal header.
func (t *Table) HasHeader(name string) bool {
	for _, h := range t.Headers {
		if h == name {
			return true
		}
	}
	return false
}

// HeaderText returns all headers joined for keyword matching.
func (t *Table) HeaderText() string {
	return strings.Join(t.Headers, " ")
}

// PickColumn resolves a canonical field to whichever literal header this
// table actually uses. Aliases are tried in priority order, exact match
// first; a second pass retries case-insensitively. Returns "" when nothing
// matches — callers must tolerate that and substitute a default.
func PickColumn(headers []string, aliases []string) string {
	set := make(map[string]struct{}, len(headers))
	lower := make(map[string]string, len(headers))
	for _, h := range headers {
		set[h] = struct{}{}
		lc := strings.ToLower(h)
		if _, ok := lower[lc]; !ok {
			lower[lc] = h
		}
	}
	for _, a := range aliases {
		if _, ok := set[a]; ok {
			return a
		}
	}
	for _, a := range aliases {
		if h, ok := lower[strings.ToLower(a)]; ok {
			return h
		}
	}
	return ""
}

// String coerces a cell to its string form; nil becomes "".
func String(v Cell) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// Float coerces a cell to a float64. Thousands separators are stripped the
// way source exports format large counts. Returns ok=false on empty or
// unparseable values.
func Float(v Cell) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// FloatOr coerces a cell to float64 with a default for missing/unparseable.
func FloatOr(v Cell, def float64) float64 {
	if f, ok := Float(v); ok {
		return f
	}
	return def
}

// Int coerces a cell to a non-negative count; null or unparseable yields 0.
func Int(v Cell) int64 {
	f, ok := Float(v)
	if !ok || f < 0 {
		return 0
	}
	return int64(f)
}

const flattenMaxDepth = 10

// FlattenScalar reduces a container-valued cell to a scalar: first non-nil
// element of a slice, first value of a (key-sorted) map, recursively up to a
// bounded depth. Values that cannot resolve to a scalar within the bound
// fall back to their string form. Scalars pass through untouched. Applied
// only at serialization boundaries — a correctly typed merge never produces
// container cells.
func FlattenScalar(v any) any {
	for i := 0; i < flattenMaxDepth; i++ {
		switch x := v.(type) {
		case nil:
			return nil
		case []any:
			if len(x) == 0 {
				return nil
			}
			picked := x[0]
			for _, item := range x {
				if item != nil {
					picked = item
					break
				}
			}
			v = picked
		case []string:
			if len(x) == 0 {
				return nil
			}
			v = x[0]
		case map[string]any:
			if len(x) == 0 {
				return nil
			}
			keys := make([]string, 0, len(x))
			for k := range x {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			v = x[keys[0]]
		case string, float64, int64, int, bool:
			return x
		default:
			return fmt.Sprint(x)
		}
	}
	return fmt.Sprint(v)
}
