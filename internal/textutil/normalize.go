// Package textutil normalizes the free-text values that flow through the
// reconciliation pipeline: dates in half a dozen formats, channel display
// names carrying a trailing agent ID, and the composite LTV/retention cell
// formats the statistics exports use.
package textutil

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var tailPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\((\d+)\)\s*$`),
	regexp.MustCompile(`（(\d+)）\s*$`),
}

var (
	parenPercentPattern = regexp.MustCompile(`\(([-\d.]+)%\)`)
	ltvHeadPattern      = regexp.MustCompile(`^([-\d.]+)\(`)
)

// summaryRowSentinel marks aggregate footer rows some exports append; those
// rows carry no calendar date and are dropped.
const summaryRowSentinel = "数据汇总"

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	"2006-1-2",
	"2006/1/2",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
}

// ToHalfWidth folds full-width digit characters (U+FF10–U+FF19) to their
// ASCII equivalents; everything else passes through.
func ToHalfWidth(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '０' && r <= '９' {
			r -= 0xFEE0
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeDate parses a cell value to its calendar day in canonical
// YYYY-MM-DD form, discarding any time component. Fails soft: empty,
// summary-row sentinel, and unparseable text all return ok=false.
func NormalizeDate(v string) (string, bool) {
	s := strings.TrimSpace(ToHalfWidth(v))
	if s == "" || strings.Contains(s, summaryRowSentinel) {
		return "", false
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format("2006-01-02"), true
		}
	}
	return "", false
}

// ExtractTailAgentID returns the trailing parenthetical integer of a
// channel display name: "A8_BR_333(55)" and "A8_BR_333（55）" both yield 55.
func ExtractTailAgentID(name string) (int64, bool) {
	s := strings.TrimSpace(ToHalfWidth(name))
	for _, pat := range tailPatterns {
		if m := pat.FindStringSubmatch(s); m != nil {
			id, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return 0, false
			}
			return id, true
		}
	}
	return 0, false
}

// StripTailParenthesis removes the trailing agent-ID group and trims
// whitespace, yielding the cleaned channel name used as a join key.
func StripTailParenthesis(name string) string {
	s := strings.TrimSpace(ToHalfWidth(name))
	for _, pat := range tailPatterns {
		s = strings.TrimSpace(pat.ReplaceAllString(s, ""))
	}
	return s
}

// StableAgentID derives a deterministic positive ID for a channel name with
// no authoritative ID: the first 8 hex digits of md5(name) as an integer.
// Same name always yields the same ID across runs and sources. Not
// collision-free — accepted at this domain's cardinality.
func StableAgentID(name string) int64 {
	if name == "" {
		return 0
	}
	sum := md5.Sum([]byte(name))
	id, err := strconv.ParseInt(hex.EncodeToString(sum[:])[:8], 16, 64)
	if err != nil {
		return 0
	}
	return id
}

// ExtractLTVValue parses the "11.34(110.00)" cell format to its leading
// LTV value. Bare numeric strings parse directly; empty, "0(0)", and
// unparseable values yield 0.
func ExtractLTVValue(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "0(0)" {
		return 0.0
	}
	if m := ltvHeadPattern.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0.0
		}
		return v
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0.0
	}
	return v
}

// ExtractRetentionRate parses a retention cell to a percentage on the 0–100
// scale. Accepted forms: "2 (8.70%)" → 8.70, "8.7%" → 8.7, a bare fraction
// ≤ 1.0 is scaled ×100, a bare number > 1.0 is already a percentage.
// Unparseable values yield 0.
func ExtractRetentionRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0.0
	}
	if m := parenPercentPattern.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0.0
		}
		return v
	}
	if strings.Contains(s, "%") {
		v, err := strconv.ParseFloat(strings.ReplaceAll(s, "%", ""), 64)
		if err != nil {
			return 0.0
		}
		return v
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0.0
	}
	if v <= 1.0 {
		return v * 100.0
	}
	return v
}
