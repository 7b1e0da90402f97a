// Package merge assembles the per-agent main table: deduplication of
// standardized records, progressive-key left joins of each metric source
// onto the identity universe, platform-level broadcasts, and the
// offset-date lookbacks that pull assessment-window values from historical
// exports.
package merge

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"agentcli/internal/tabular"
)

// joinKey builds a composite key from the given fields. ok is false when
// any field is absent, which keeps unkeyable rows out of joins instead of
// colliding on empty strings.
func joinKey(row tabular.Row, fields []string) (string, bool) {
	parts := make([]string, len(fields))
	for i, f := range fields {
		v, present := row[f]
		if !present || v == nil {
			return "", false
		}
		parts[i] = tabular.String(v)
	}
	return strings.Join(parts, "\x1f"), true
}

// DedupSpec controls how duplicate rows sharing a key collapse.
type DedupSpec struct {
	// Keys are the group-by fields.
	Keys []string
	// Text fields keep the first non-empty value per group.
	Text []string
	// Mean averages numeric fields instead of summing them. Counts and
	// amounts sum; rates and LTVs average.
	Mean bool
}

// Dedup collapses rows sharing a key. Numeric fields (float64 cells not
// named in Keys or Text) sum or average per the spec; group order follows
// first appearance.
func Dedup(rows []tabular.Row, spec DedupSpec) []tabular.Row {
	textSet := make(map[string]struct{}, len(spec.Text))
	for _, f := range spec.Text {
		textSet[f] = struct{}{}
	}
	keySet := make(map[string]struct{}, len(spec.Keys))
	for _, f := range spec.Keys {
		keySet[f] = struct{}{}
	}

	type group struct {
		row    tabular.Row
		counts map[string]int
	}
	index := make(map[string]*group)
	var order []string

	for _, row := range rows {
		key, ok := joinKey(row, spec.Keys)
		if !ok {
			continue
		}
		g, exists := index[key]
		if !exists {
			g = &group{row: make(tabular.Row, len(row)), counts: make(map[string]int)}
			for _, f := range spec.Keys {
				g.row[f] = row[f]
			}
			index[key] = g
			order = append(order, key)
		}
		for field, value := range row {
			if _, isKey := keySet[field]; isKey {
				continue
			}
			if _, isText := textSet[field]; isText {
				if cur, _ := g.row[field].(string); cur == "" {
					if s := tabular.String(value); s != "" {
						g.row[field] = s
					}
				}
				continue
			}
			if f, isNum := tabular.Float(value); isNum {
				cur, _ := g.row[field].(float64)
				g.row[field] = cur + f
				g.counts[field]++
			}
		}
	}

	out := make([]tabular.Row, 0, len(order))
	for _, key := range order {
		g := index[key]
		if spec.Mean {
			for field, n := range g.counts {
				if n > 1 {
					g.row[field] = g.row[field].(float64) / float64(n)
				}
			}
		}
		out = append(out, g.row)
	}
	return out
}

// LeftJoin copies the named fields from the first matching other-row onto
// each main row. With fillOnly, a field already set on the main row is kept
// — used for platform-level broadcasts that must not overwrite channel-level
// values. Other rows must already be deduplicated per key; extras after the
// first are ignored.
func LeftJoin(main, other []tabular.Row, keys, fields []string, fillOnly bool) {
	index := make(map[string]tabular.Row, len(other))
	for _, row := range other {
		key, ok := joinKey(row, keys)
		if !ok {
			continue
		}
		if _, dup := index[key]; !dup {
			index[key] = row
		}
	}

	for _, row := range main {
		key, ok := joinKey(row, keys)
		if !ok {
			continue
		}
		src, found := index[key]
		if !found {
			continue
		}
		for _, f := range fields {
			v, present := src[f]
			if !present || v == nil {
				continue
			}
			if fillOnly {
				if _, already := row[f]; already {
					continue
				}
			}
			row[f] = v
		}
	}
}

// HasField reports whether any row carries a non-nil value for the field.
// Join key selection degrades based on what a source actually provides.
func HasField(rows []tabular.Row, field string) bool {
	for _, row := range rows {
		if v, ok := row[field]; ok && v != nil {
			return true
		}
	}
	return false
}

// OffsetLookback pulls assessment-window values from historical exports:
// for each offset n, the authoritative value for the report date's cohort
// lives in the export dated targetDate−n (or the most recent one before
// it). Values are joined onto main per key without touching main's date.
func OffsetLookback(main, hist []tabular.Row, targetDate string, offsets map[int]string, keys []string, logger *slog.Logger) {
	target, err := time.Parse("2006-01-02", targetDate)
	if err != nil {
		logger.Warn("offset lookback skipped, bad target date", slog.String("target_date", targetDate))
		return
	}

	sorted := make([]tabular.Row, len(hist))
	copy(sorted, hist)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, _ := sorted[i][tabular.FieldDate].(string)
		dj, _ := sorted[j][tabular.FieldDate].(string)
		return di < dj
	})

	for offset, field := range offsets {
		cutoff := target.AddDate(0, 0, -offset).Format("2006-01-02")

		// Latest row at or before the cutoff per key; ascending date order
		// means later rows overwrite earlier ones.
		latest := make(map[string]tabular.Row)
		for _, row := range sorted {
			date, _ := row[tabular.FieldDate].(string)
			if date == "" || date > cutoff {
				continue
			}
			if _, has := row[field]; !has {
				continue
			}
			key, ok := joinKey(row, keys)
			if !ok {
				continue
			}
			latest[key] = row
		}
		if len(latest) == 0 {
			logger.Debug("no rows available for offset",
				slog.Int("offset", offset), slog.String("cutoff", cutoff))
			continue
		}

		for _, row := range main {
			key, ok := joinKey(row, keys)
			if !ok {
				continue
			}
			if src, found := latest[key]; found {
				row[field] = src[field]
			}
		}
	}
}

// RetentionJoin broadcasts retention horizons from the chosen historical
// source onto main: the source collapses to one row per key (rates
// averaged over the history) and left-joins per key.
func RetentionJoin(main, hist []tabular.Row, keys, fields []string) {
	collapsed := Dedup(hist, DedupSpec{Keys: keys, Mean: true})
	LeftJoin(main, collapsed, keys, fields, false)
}
