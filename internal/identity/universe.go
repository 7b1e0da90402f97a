package identity

import (
	"log/slog"
	"sort"

	"agentcli/internal/tabular"
	"agentcli/internal/textutil"
)

// BuildNameIDMap derives the cleaned-name→agent-ID map from operations
// records, where the display name carries the authoritative ID. When a name
// maps to several IDs across rows the most frequent wins; ties break to the
// smallest ID so reruns stay deterministic.
func BuildNameIDMap(ops []tabular.Row) map[string]int64 {
	counts := make(map[string]map[int64]int)
	for _, row := range ops {
		clean, _ := row[tabular.FieldChannelClean].(string)
		id, ok := row[tabular.FieldAgentID].(int64)
		if clean == "" || !ok {
			continue
		}
		if counts[clean] == nil {
			counts[clean] = make(map[int64]int)
		}
		counts[clean][id]++
	}

	out := make(map[string]int64, len(counts))
	for clean, ids := range counts {
		best, bestCount := int64(0), -1
		for id, n := range ids {
			if n > bestCount || (n == bestCount && id < best) {
				best, bestCount = id, n
			}
		}
		out[clean] = best
	}
	return out
}

// AgentName is the display identity attached to an agent ID.
type AgentName struct {
	Name  string
	Clean string
}

// NamesByID collects one display name per agent ID from agent records,
// first occurrence wins.
func NamesByID(agent []tabular.Row) map[int64]AgentName {
	out := make(map[int64]AgentName)
	for _, row := range agent {
		id, ok := row[tabular.FieldAgentID].(int64)
		if !ok {
			continue
		}
		if _, seen := out[id]; seen {
			continue
		}
		name, _ := row[tabular.FieldChannel].(string)
		clean, _ := row[tabular.FieldChannelClean].(string)
		out[id] = AgentName{Name: name, Clean: clean}
	}
	return out
}

// baseKey identifies one (date, platform, agent) combination.
type baseKey struct {
	date     string
	platform string
	agentID  int64
}

// BuildBase constructs the identity universe for the report: one row per
// distinct (date, platform, agent) seen in the deduplicated agent records,
// carrying the dimensional fields forward.
func BuildBase(agent []tabular.Row) []tabular.Row {
	seen := make(map[baseKey]struct{}, len(agent))
	var base []tabular.Row
	for _, row := range agent {
		id, _ := row[tabular.FieldAgentID].(int64)
		plat, _ := row[tabular.FieldPlatform].(string)
		date, _ := row[tabular.FieldDate].(string)
		k := baseKey{date: date, platform: plat, agentID: id}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		rec := tabular.Row{
			tabular.FieldDate:         date,
			tabular.FieldAgentID:      id,
			tabular.FieldChannel:      row[tabular.FieldChannel],
			tabular.FieldChannelClean: row[tabular.FieldChannelClean],
		}
		if plat != "" {
			rec[tabular.FieldPlatform] = plat
		}
		if dept, ok := row[tabular.FieldDepartment].(string); ok && dept != "" {
			rec[tabular.FieldDepartment] = dept
		}
		if method, ok := row[tabular.FieldPromotionMethod].(string); ok && method != "" {
			rec[tabular.FieldPromotionMethod] = method
		}
		base = append(base, rec)
	}
	return base
}

// Supplement extends the base universe with (date, platform, agent)
// combinations that appear in retention or LTV sources but not in agent
// records, so a cohort still reporting retention after its acquisition
// source went quiet keeps its row. Display names backfill from the agent
// name map when known. Sources are applied in the given order.
func Supplement(base []tabular.Row, sources [][]tabular.Row, names map[int64]AgentName, logger *slog.Logger) []tabular.Row {
	have := make(map[baseKey]struct{}, len(base))
	for _, row := range base {
		have[keyOf(row)] = struct{}{}
	}

	added := 0
	for _, src := range sources {
		for _, row := range src {
			id, okID := row[tabular.FieldAgentID].(int64)
			plat, _ := row[tabular.FieldPlatform].(string)
			date, _ := row[tabular.FieldDate].(string)
			if !okID || plat == "" || date == "" {
				continue
			}
			k := baseKey{date: date, platform: plat, agentID: id}
			if _, dup := have[k]; dup {
				continue
			}
			have[k] = struct{}{}

			rec := tabular.Row{
				tabular.FieldDate:     date,
				tabular.FieldPlatform: plat,
				tabular.FieldAgentID:  id,
			}
			if n, ok := names[id]; ok {
				rec[tabular.FieldChannel] = n.Name
				rec[tabular.FieldChannelClean] = n.Clean
			}
			base = append(base, rec)
			added++
		}
	}
	if added > 0 {
		logger.Info("supplemented identity universe", slog.Int("added", added), slog.Int("total", len(base)))
	}
	return base
}

func keyOf(row tabular.Row) baseKey {
	id, _ := row[tabular.FieldAgentID].(int64)
	plat, _ := row[tabular.FieldPlatform].(string)
	date, _ := row[tabular.FieldDate].(string)
	return baseKey{date: date, platform: plat, agentID: id}
}

// FillDims completes the dimensional fields on each base row: product is
// fixed, missing departments parse from the channel naming convention, a
// missing agent ID falls back to the stable hash, names fall back to the
// cleaned form. Rows are returned sorted by (date, platform, id) so every
// downstream stage sees a stable order.
func FillDims(base []tabular.Row) []tabular.Row {
	for _, row := range base {
		row[tabular.FieldProduct] = Product

		clean, _ := row[tabular.FieldChannelClean].(string)
		if clean != "" {
			info := ParseChannel(clean)
			if dept, _ := row[tabular.FieldDepartment].(string); dept == "" && info.Department != "" {
				row[tabular.FieldDepartment] = info.Department
			}
			if plat, _ := row[tabular.FieldPlatform].(string); plat == "" && info.PlatformToken != "" {
				row[tabular.FieldPlatform] = info.PlatformToken
			}
		}

		if id, ok := row[tabular.FieldAgentID].(int64); !ok || id == 0 {
			if clean != "" {
				row[tabular.FieldAgentID] = textutil.StableAgentID(clean)
			}
		}
		if name, _ := row[tabular.FieldChannel].(string); name == "" && clean != "" {
			row[tabular.FieldChannel] = clean
		}
	}

	sort.SliceStable(base, func(i, j int) bool {
		a, b := keyOf(base[i]), keyOf(base[j])
		if a.date != b.date {
			return a.date < b.date
		}
		if a.platform != b.platform {
			return a.platform < b.platform
		}
		return a.agentID < b.agentID
	})
	return base
}
