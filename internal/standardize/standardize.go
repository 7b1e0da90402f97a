// Package standardize projects raw source tables onto the canonical record
// shape the merge stage consumes: one flat row per source line, keyed by
// canonical field identifiers, with dates normalized, channel names cleaned,
// agent IDs resolved, and local-currency amounts converted.
package standardize

import (
	"log/slog"

	"agentcli/internal/config"
	"agentcli/internal/tabular"
	"agentcli/internal/textutil"
)

// Segment values exported by the statistics system. 全部 covers all user
// tiers; parent restricts to directly acquired users.
const (
	segmentAll    = "全部"
	segmentParent = "parent"
)

// retentionDays are the horizon columns retention exports carry. Horizon n
// is headed "(n+1)日留存" in the sources.
var retentionDays = []int{1, 3, 7, 15, 30}

// fpltvDays are the first-pay LTV horizons; D14 is carried for the sites
// whose D15 assessment window is still open.
var fpltvDays = []int{1, 2, 3, 7, 14, 15, 30}

// ltvDays are the platform-level LTV horizons.
var ltvDays = []int{1, 3, 7, 14, 30}

// Standardizer converts classified raw tables to canonical records.
type Standardizer struct {
	tables  config.Tables
	segment string
	logger  *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) *Standardizer {
	return &Standardizer{
		tables:  cfg.Tables,
		segment: cfg.Run.PrimaryFirstPaySegment,
		logger:  logger,
	}
}

// pick resolves a canonical field to the literal header a table uses.
func (s *Standardizer) pick(t *tabular.Table, field string) string {
	return tabular.PickColumn(t.Headers, s.tables.AliasesFor(field))
}

// Ops standardizes an operations export. It is the authoritative source of
// the name→ID relationship: the channel display name carries the agent ID
// in its trailing parenthetical. Platform-level aggregates without a
// channel column contribute nothing.
func (s *Standardizer) Ops(t *tabular.Table) []tabular.Row {
	if t.Empty() {
		return nil
	}
	dateCol := s.pick(t, tabular.FieldDate)
	channelCol := s.pick(t, tabular.FieldChannel)
	if channelCol == "" {
		s.logger.Info("operations data has no channel column, skipping platform-level aggregate")
		return nil
	}

	metricCols := map[string]string{
		tabular.FieldBetAmount: s.pick(t, tabular.FieldBetAmount),
		tabular.FieldWinAmount: s.pick(t, tabular.FieldWinAmount),
		tabular.FieldBetCount:  s.pick(t, tabular.FieldBetCount),
		tabular.FieldBetUsers:  s.pick(t, tabular.FieldBetUsers),
	}

	var out []tabular.Row
	for _, row := range t.Rows {
		date, ok := textutil.NormalizeDate(tabular.String(row[dateCol]))
		if !ok {
			continue
		}
		name := tabular.String(row[channelCol])
		if name == "" {
			continue
		}
		rec := tabular.Row{
			tabular.FieldDate:         date,
			tabular.FieldChannel:      name,
			tabular.FieldChannelClean: textutil.StripTailParenthesis(name),
		}
		if id, ok := textutil.ExtractTailAgentID(name); ok {
			rec[tabular.FieldAgentID] = id
		}
		for field, col := range metricCols {
			if col != "" {
				rec[field] = tabular.FloatOr(row[col], 0)
			}
		}
		out = append(out, rec)
	}
	return out
}

// Agent standardizes an agent report: registration, activity and payment
// counts per channel per day. Monetary columns arrive in local currency and
// are divided by the exchange rate parsed from the filename region. The
// agent ID comes from an explicit ID column when present, then the ops
// name→ID map, then the deterministic hash of the cleaned name.
func (s *Standardizer) Agent(t *tabular.Table, path string, nameIDs map[string]int64) []tabular.Row {
	if t.Empty() {
		return nil
	}
	dateCol := s.pick(t, tabular.FieldDate)
	channelCol := s.pick(t, tabular.FieldChannel)
	if channelCol == "" {
		s.logger.Info("agent data has no channel column, skipping", slog.String("path", path))
		return nil
	}

	meta := ParseFileName(path, s.tables)
	s.logger.Info("agent file metadata",
		slog.String("platform", meta.Platform),
		slog.String("department", meta.Department),
		slog.String("region", meta.Region),
		slog.Float64("exchange_rate", meta.ExchangeRate))

	idCol := s.pick(t, tabular.FieldAgentID)
	// 渠道名称 specifically, not the alias set: promotion-method inference
	// reads the raw marketing channel label, which other channel aliases
	// do not carry.
	rawCol := ""
	if t.HasHeader("渠道名称") {
		rawCol = "渠道名称"
	}

	countCols := map[string]string{
		tabular.FieldRegister:      s.pick(t, tabular.FieldRegister),
		tabular.FieldActive:        s.pick(t, tabular.FieldActive),
		tabular.FieldPayUsers:      s.pick(t, tabular.FieldPayUsers),
		tabular.FieldFirstPayUsers: s.pick(t, tabular.FieldFirstPayUsers),
	}
	moneyCols := map[string]string{
		tabular.FieldPayAmount:          s.pick(t, tabular.FieldPayAmount),
		tabular.FieldFirstPayAmount:     s.pick(t, tabular.FieldFirstPayAmount),
		tabular.FieldWithdraw:           s.pick(t, tabular.FieldWithdraw),
		tabular.FieldDepositWithdrawGap: s.pick(t, tabular.FieldDepositWithdrawGap),
	}

	var out []tabular.Row
	for _, row := range t.Rows {
		date, ok := textutil.NormalizeDate(tabular.String(row[dateCol]))
		if !ok {
			continue
		}
		name := tabular.String(row[channelCol])
		clean := textutil.StripTailParenthesis(name)
		if clean == "" {
			continue
		}
		rec := tabular.Row{
			tabular.FieldDate:         date,
			tabular.FieldChannel:      name,
			tabular.FieldChannelClean: clean,
			tabular.FieldAgentID:      s.resolveAgentID(row, idCol, clean, nameIDs),
		}
		if rawCol != "" {
			rec[tabular.FieldChannelRaw] = tabular.String(row[rawCol])
		}
		if meta.Platform != "" {
			rec[tabular.FieldPlatform] = meta.Platform
		}
		if meta.Department != "" {
			rec[tabular.FieldDepartment] = meta.Department
		}
		for field, col := range countCols {
			if col != "" {
				rec[field] = tabular.FloatOr(row[col], 0)
			}
		}
		for field, col := range moneyCols {
			if col != "" {
				rec[field] = tabular.FloatOr(row[col], 0) / meta.ExchangeRate
			}
		}
		out = append(out, rec)
	}
	return out
}

// resolveAgentID applies the ID source priority: explicit column, ops map,
// stable hash of the cleaned name.
func (s *Standardizer) resolveAgentID(row tabular.Row, idCol, clean string, nameIDs map[string]int64) int64 {
	if idCol != "" {
		if f, ok := tabular.Float(row[idCol]); ok {
			return int64(f)
		}
	}
	if id, ok := nameIDs[clean]; ok {
		return id
	}
	return textutil.StableAgentID(clean)
}

// Platform standardizes a platform report carrying platform-level LTV
// horizons.
func (s *Standardizer) Platform(t *tabular.Table) []tabular.Row {
	if t.Empty() {
		return nil
	}
	dateCol := s.pick(t, tabular.FieldDate)
	platCol := s.pick(t, tabular.FieldPlatform)
	if dateCol == "" || platCol == "" {
		return nil
	}

	ltvCols := make(map[string]string, len(ltvDays))
	for _, d := range ltvDays {
		ltvCols[tabular.LTVField(d)] = s.pick(t, tabular.LTVField(d))
	}

	var out []tabular.Row
	for _, row := range t.Rows {
		date, ok := textutil.NormalizeDate(tabular.String(row[dateCol]))
		if !ok {
			continue
		}
		plat := tabular.String(row[platCol])
		if plat == "" {
			continue
		}
		rec := tabular.Row{
			tabular.FieldDate:     date,
			tabular.FieldPlatform: plat,
		}
		for field, col := range ltvCols {
			if col != "" {
				rec[field] = tabular.FloatOr(row[col], 0)
			}
		}
		out = append(out, rec)
	}
	return out
}

// Daily standardizes a user-daily export: first-pay and paying-active
// counts. Channel is optional; when present, the ID resolves through the
// explicit column or the ops map only, never the hash (daily exports use
// the same display names as ops, so an unmapped name means an unknown
// agent, not a new one).
func (s *Standardizer) Daily(t *tabular.Table, nameIDs map[string]int64) []tabular.Row {
	if t.Empty() {
		return nil
	}
	dateCol := s.pick(t, tabular.FieldDate)
	if dateCol == "" {
		return nil
	}
	channelCol := s.pick(t, tabular.FieldChannel)
	idCol := s.pick(t, tabular.FieldAgentID)

	metricCols := map[string]string{
		tabular.FieldFirstPayUsers:  s.pick(t, tabular.FieldFirstPayUsers),
		tabular.FieldFirstPayAmount: s.pick(t, tabular.FieldFirstPayAmount),
		tabular.FieldPayActiveUsers: s.pick(t, tabular.FieldPayActiveUsers),
	}

	var out []tabular.Row
	for _, row := range t.Rows {
		date, ok := textutil.NormalizeDate(tabular.String(row[dateCol]))
		if !ok {
			continue
		}
		rec := tabular.Row{tabular.FieldDate: date}
		if channelCol != "" {
			name := tabular.String(row[channelCol])
			clean := textutil.StripTailParenthesis(name)
			rec[tabular.FieldChannel] = name
			rec[tabular.FieldChannelClean] = clean
			if idCol != "" {
				if f, ok := tabular.Float(row[idCol]); ok {
					rec[tabular.FieldAgentID] = int64(f)
				}
			} else if id, ok := nameIDs[clean]; ok {
				rec[tabular.FieldAgentID] = id
			}
		}
		for field, col := range metricCols {
			if col != "" {
				rec[field] = tabular.FloatOr(row[col], 0)
			}
		}
		out = append(out, rec)
	}
	return out
}

// Retention standardizes a retention export to percentage horizons on the
// 0–100 scale. Rows are restricted to the 全部 segment so per-tier breakdown
// rows do not double-count. Platform comes from the filename when the file
// follows the scraper naming convention, else from an in-file column.
func (s *Standardizer) Retention(t *tabular.Table, path string) []tabular.Row {
	if t.Empty() {
		return nil
	}
	dateCol := s.pick(t, tabular.FieldDate)
	if dateCol == "" {
		s.logger.Warn("retention data has no date column, skipping", slog.String("path", path))
		return nil
	}
	channelCol := s.pick(t, tabular.FieldChannel)
	platCol := s.pick(t, tabular.FieldPlatform)
	idCol := s.pick(t, tabular.FieldAgentID)
	segCol := s.pick(t, tabular.FieldSegment)

	meta := ParseFileName(path, s.tables)

	retCols := make(map[string]string, len(retentionDays))
	for _, d := range retentionDays {
		retCols[tabular.RetentionField(d)] = s.pick(t, tabular.RetentionField(d))
	}

	var out []tabular.Row
	for _, row := range t.Rows {
		if segCol != "" && tabular.String(row[segCol]) != segmentAll {
			continue
		}
		date, ok := textutil.NormalizeDate(tabular.String(row[dateCol]))
		if !ok {
			continue
		}
		rec := tabular.Row{tabular.FieldDate: date}
		if channelCol != "" {
			name := tabular.String(row[channelCol])
			rec[tabular.FieldChannel] = name
			rec[tabular.FieldChannelClean] = textutil.StripTailParenthesis(name)
		}
		// An explicit agent-id column is authoritative even when the export
		// carries no channel column at all.
		if idCol != "" {
			if f, ok := tabular.Float(row[idCol]); ok {
				rec[tabular.FieldAgentID] = int64(f)
			}
		} else if name, ok := rec[tabular.FieldChannel].(string); ok {
			if id, ok := textutil.ExtractTailAgentID(name); ok {
				rec[tabular.FieldAgentID] = id
			}
		}
		if meta.Platform != "" {
			rec[tabular.FieldPlatform] = meta.Platform
		} else if platCol != "" {
			rec[tabular.FieldPlatform] = tabular.String(row[platCol])
		}
		for field, col := range retCols {
			if col != "" {
				rec[field] = textutil.ExtractRetentionRate(tabular.String(row[col]))
			}
		}
		out = append(out, rec)
	}
	return out
}

// PrimaryFirstPay extracts the primary (directly acquired) first-pay count
// from a retention export's segment breakdown. Which segment counts as
// primary is configurable: all sites report the parent tier, some fold it
// into 全部.
func (s *Standardizer) PrimaryFirstPay(t *tabular.Table) []tabular.Row {
	if t.Empty() {
		return nil
	}
	dateCol := s.pick(t, tabular.FieldDate)
	segCol := s.pick(t, tabular.FieldSegment)
	if dateCol == "" || segCol == "" {
		return nil
	}
	idCol := s.pick(t, tabular.FieldAgentID)
	channelCol := s.pick(t, tabular.FieldChannel)
	fpCol := tabular.PickColumn(t.Headers, []string{"首充人数", "firstpay_u"})
	if fpCol == "" {
		return nil
	}

	target := segmentParent
	if s.segment == config.SegmentAll {
		target = segmentAll
	}

	var out []tabular.Row
	for _, row := range t.Rows {
		if tabular.String(row[segCol]) != target {
			continue
		}
		date, ok := textutil.NormalizeDate(tabular.String(row[dateCol]))
		if !ok {
			continue
		}
		rec := tabular.Row{
			tabular.FieldDate:            date,
			tabular.FieldPrimaryFirstPay: tabular.FloatOr(row[fpCol], 0),
		}
		if idCol != "" {
			if f, ok := tabular.Float(row[idCol]); ok {
				rec[tabular.FieldAgentID] = int64(f)
			}
		} else if channelCol != "" {
			name := tabular.String(row[channelCol])
			rec[tabular.FieldChannel] = name
			rec[tabular.FieldChannelClean] = textutil.StripTailParenthesis(name)
			if id, ok := textutil.ExtractTailAgentID(name); ok {
				rec[tabular.FieldAgentID] = id
			}
		}
		out = append(out, rec)
	}
	if len(out) > 0 {
		s.logger.Info("extracted primary first-pay rows",
			slog.String("segment", target), slog.Int("rows", len(out)))
	}
	return out
}

// FirstPayLTV standardizes a first-pay LTV export, parsing the composite
// "11.34(110.00)" cell format per horizon.
func (s *Standardizer) FirstPayLTV(t *tabular.Table, path string) []tabular.Row {
	if t.Empty() {
		return nil
	}
	dateCol := s.pick(t, tabular.FieldDate)
	if dateCol == "" {
		return nil
	}
	idCol := s.pick(t, tabular.FieldAgentID)
	channelCol := s.pick(t, tabular.FieldChannel)
	platCol := s.pick(t, tabular.FieldPlatform)

	meta := ParseFileName(path, s.tables)

	ltvCols := make(map[string]string, len(fpltvDays))
	for _, d := range fpltvDays {
		ltvCols[tabular.FirstPayLTVField(d)] = s.pick(t, tabular.FirstPayLTVField(d))
	}

	var out []tabular.Row
	for _, row := range t.Rows {
		date, ok := textutil.NormalizeDate(tabular.String(row[dateCol]))
		if !ok {
			continue
		}
		rec := tabular.Row{tabular.FieldDate: date}
		if idCol != "" {
			if f, ok := tabular.Float(row[idCol]); ok {
				rec[tabular.FieldAgentID] = int64(f)
			}
		}
		if channelCol != "" {
			name := tabular.String(row[channelCol])
			rec[tabular.FieldChannel] = name
			rec[tabular.FieldChannelClean] = textutil.StripTailParenthesis(name)
		}
		if meta.Platform != "" {
			rec[tabular.FieldPlatform] = meta.Platform
		} else if platCol != "" {
			rec[tabular.FieldPlatform] = tabular.String(row[platCol])
		}
		for field, col := range ltvCols {
			if col != "" {
				rec[field] = textutil.ExtractLTVValue(tabular.String(row[col]))
			}
		}
		out = append(out, rec)
	}
	return out
}

// Cost standardizes an advertising cost sheet: spend, impressions, clicks
// and withdrawals at channel or platform grain. Dateless files are
// configuration sheets that happen to share the cost keywords; they
// contribute nothing.
func (s *Standardizer) Cost(t *tabular.Table) []tabular.Row {
	if t.Empty() {
		return nil
	}
	dateCol := s.pick(t, tabular.FieldDate)
	if dateCol == "" {
		s.logger.Info("cost data has no date column, likely a configuration sheet, skipping")
		return nil
	}
	channelCol := s.pick(t, tabular.FieldChannel)
	platCol := s.pick(t, tabular.FieldPlatform)

	metricCols := map[string]string{
		tabular.FieldSpend:       s.pick(t, tabular.FieldSpend),
		tabular.FieldImpressions: s.pick(t, tabular.FieldImpressions),
		tabular.FieldClicks:      s.pick(t, tabular.FieldClicks),
		tabular.FieldWithdraw:    s.pick(t, tabular.FieldWithdraw),
	}

	var out []tabular.Row
	for _, row := range t.Rows {
		date, ok := textutil.NormalizeDate(tabular.String(row[dateCol]))
		if !ok {
			continue
		}
		rec := tabular.Row{tabular.FieldDate: date}
		if channelCol != "" {
			name := tabular.String(row[channelCol])
			rec[tabular.FieldChannel] = name
			rec[tabular.FieldChannelClean] = textutil.StripTailParenthesis(name)
		}
		if platCol != "" {
			rec[tabular.FieldPlatform] = tabular.String(row[platCol])
		}
		for field, col := range metricCols {
			if col != "" {
				rec[field] = tabular.FloatOr(row[col], 0)
			}
		}
		out = append(out, rec)
	}
	return out
}
