// Package aggregate collapses the computed rows to one row per
// (date, platform, agent) and locks the output to the business column
// order. This is the last defense against duplicate keys surviving the
// merges: numerics sum, text takes the first usable scalar.
package aggregate

import (
	"fmt"
	"math"
	"sort"

	"agentcli/internal/tabular"
)

// groupFields is the output grain.
var groupFields = []string{"日期", "盘口", "总代号"}

// textColumns are the dimensional output columns; everything else in the
// schema is numeric.
var textColumns = map[string]struct{}{
	"日期": {}, "产品": {}, "盘口": {}, "总代名称": {}, "推广部门": {}, "推广方式": {},
}

// Aggregate groups rows by the output grain, fills any column the schema
// names that no source produced, rounds every float to two decimals and
// returns rows projected to exactly the schema's columns in order.
func Aggregate(rows []tabular.Row, finalColumns []string) []tabular.Row {
	type group struct {
		key string
		row tabular.Row
	}
	index := make(map[string]*group)
	var order []*group

	for _, row := range rows {
		key := groupKeyOf(row)
		g, exists := index[key]
		if !exists {
			g = &group{key: key, row: tabular.Row{}}
			for _, f := range groupFields {
				g.row[f] = row[f]
			}
			index[key] = g
			order = append(order, g)
		}
		for field, value := range row {
			if field == "日期" || field == "盘口" || field == "总代号" {
				continue
			}
			if _, isText := textColumns[field]; isText {
				if cur, _ := g.row[field].(string); cur == "" {
					if s, ok := tabular.FlattenScalar(value).(string); ok && s != "" {
						g.row[field] = s
					}
				}
				continue
			}
			if f, ok := tabular.Float(tabular.FlattenScalar(value)); ok {
				cur, _ := g.row[field].(float64)
				g.row[field] = cur + f
			}
		}
	}

	out := make([]tabular.Row, 0, len(order))
	for _, g := range order {
		out = append(out, project(g.row, finalColumns))
	}

	sort.SliceStable(out, func(i, j int) bool {
		di, _ := out[i]["日期"].(string)
		dj, _ := out[j]["日期"].(string)
		if di != dj {
			return di < dj
		}
		pi, _ := out[i]["盘口"].(string)
		pj, _ := out[j]["盘口"].(string)
		if pi != pj {
			return pi < pj
		}
		return agentID(out[i]) < agentID(out[j])
	})
	return out
}

func agentID(row tabular.Row) int64 {
	switch v := row["总代号"].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func groupKeyOf(row tabular.Row) string {
	return fmt.Sprintf("%s\x1f%s\x1f%d",
		tabular.String(row["日期"]), tabular.String(row["盘口"]), agentID(row))
}

// project returns a row holding exactly the schema columns: missing text
// columns become "", missing numerics 0.0, floats round to two decimals.
func project(row tabular.Row, finalColumns []string) tabular.Row {
	out := make(tabular.Row, len(finalColumns))
	for _, col := range finalColumns {
		value, present := row[col]
		if _, isText := textColumns[col]; isText {
			if !present || value == nil {
				out[col] = ""
			} else {
				out[col] = tabular.String(value)
			}
			continue
		}
		if col == "总代号" {
			out[col] = agentID(row)
			continue
		}
		if !present || value == nil {
			out[col] = 0.0
			continue
		}
		if f, ok := tabular.Float(value); ok {
			out[col] = round2(f)
		} else {
			out[col] = 0.0
		}
	}
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
