// Package pipeline orchestrates a report run end to end: discover input
// files, load and classify them, standardize each source kind, reconcile
// everything onto one identity universe for the target date, derive the
// output metrics and write the report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"agentcli/internal/aggregate"
	"agentcli/internal/calc"
	"agentcli/internal/classify"
	"agentcli/internal/config"
	"agentcli/internal/exporter"
	"agentcli/internal/identity"
	"agentcli/internal/infrastructure"
	"agentcli/internal/loader"
	"agentcli/internal/merge"
	"agentcli/internal/standardize"
	"agentcli/internal/tabular"
)

var (
	// ErrNoData means the run has nothing to report: no usable source
	// files, or no dated records in any of them.
	ErrNoData = errors.New("no usable input data")
	// ErrNoReportRows means reconciliation produced an empty report; the
	// sources exist but none carried the required date and channel columns.
	// It wraps ErrNoData so callers can treat both as the fatal empty-run
	// condition.
	ErrNoReportRows = fmt.Errorf("no report rows after reconciliation: %w", ErrNoData)
)

// loadConcurrency bounds parallel file loads; sources are small, the limit
// mostly keeps Excel decompression memory in check.
const loadConcurrency = 8

// Pipeline runs the daily reconciliation.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger
	std    *standardize.Standardizer
}

func New(cfg *config.Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, logger: logger, std: standardize.New(cfg, logger)}
}

// Result describes a finished run.
type Result struct {
	RunID           string
	ReportDate      string
	Rows            []tabular.Row
	OutputPath      string
	DiagnosticsPath string
}

type sourceFile struct {
	path  string
	table *tabular.Table
}

// datasets holds the standardized records per source kind.
type datasets struct {
	ops       []tabular.Row
	agent     []tabular.Row
	platform  []tabular.Row
	daily     []tabular.Row
	cost      []tabular.Row
	fpltv     []tabular.Row
	retention map[classify.Kind][]tabular.Row
	primary   []tabular.Row
}

// Run executes one report generation.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	ctx = infrastructure.WithRunID(ctx, runID)
	logger := p.logger.With(slog.String("run_id", runID))

	files, err := Discover(p.cfg.Paths.InputDir, logger)
	if err != nil {
		return nil, fmt.Errorf("input discovery failed: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoData
	}

	sources, err := p.loadAll(ctx, files, logger)
	if err != nil {
		return nil, err
	}

	groups := p.classifyAll(sources, logger)
	ds := p.standardizeAll(groups, logger)

	p.dedupBaseSources(ds)

	reportDate, ok := p.resolveTargetDate(ds, logger)
	if !ok {
		return nil, ErrNoData
	}
	logger.Info("target date resolved", slog.String("report_date", reportDate))

	main := p.reconcile(ds, reportDate, logger)
	if len(main) == 0 {
		return nil, ErrNoReportRows
	}

	computed := calc.Compute(main, p.cfg)
	rows := aggregate.Aggregate(computed, p.cfg.Tables.FinalColumns)
	if len(rows) == 0 {
		return nil, ErrNoReportRows
	}

	outputPath, diagPath, err := p.export(reportDate, rows, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("report run complete",
		slog.String("report_date", reportDate),
		slog.Int("rows", len(rows)),
		slog.String("output", outputPath))
	return &Result{
		RunID:           runID,
		ReportDate:      reportDate,
		Rows:            rows,
		OutputPath:      outputPath,
		DiagnosticsPath: diagPath,
	}, nil
}

// loadAll reads every discovered file concurrently. Unreadable files are
// logged and skipped; one corrupted download must not kill the daily run.
func (p *Pipeline) loadAll(ctx context.Context, files []string, logger *slog.Logger) ([]sourceFile, error) {
	tables := make([]*tabular.Table, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			table, err := loader.Load(path)
			if err != nil {
				logger.Warn("skipping unreadable file",
					slog.String("path", path), slog.String("error", err.Error()))
				return nil
			}
			tables[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []sourceFile
	for i, path := range files {
		if tables[i] != nil && !tables[i].Empty() {
			out = append(out, sourceFile{path: path, table: tables[i]})
		}
	}
	logger.Info("sources loaded", slog.Int("loaded", len(out)), slog.Int("discovered", len(files)))
	return out, nil
}

// classifyAll groups sources by kind and applies best-file selection to the
// kinds the scraper re-downloads with overlapping date windows.
func (p *Pipeline) classifyAll(sources []sourceFile, logger *slog.Logger) map[classify.Kind][]classify.Candidate {
	groups := make(map[classify.Kind][]classify.Candidate)
	for _, src := range sources {
		kind := classify.Classify(src.path, src.table)
		if kind == classify.KindUnknown {
			logger.Debug("unclassifiable file ignored", slog.String("path", src.path))
			continue
		}
		groups[kind] = append(groups[kind], classify.Candidate{Path: src.path, Table: src.table})
	}

	dateAliases := p.cfg.Tables.AliasesFor(tabular.FieldDate)
	for kind, candidates := range groups {
		if !kind.SelectedExclusively() || len(candidates) <= 1 {
			continue
		}
		if best, ok := classify.SelectBest(kind, candidates, dateAliases, logger); ok {
			groups[kind] = []classify.Candidate{best}
		}
	}

	for kind, candidates := range groups {
		logger.Info("classified sources", slog.String("kind", string(kind)), slog.Int("files", len(candidates)))
	}
	return groups
}

// standardizeAll converts each group to canonical records. Operations files
// go first: they seed the name→ID map everything else resolves against.
func (p *Pipeline) standardizeAll(groups map[classify.Kind][]classify.Candidate, logger *slog.Logger) *datasets {
	ds := &datasets{retention: make(map[classify.Kind][]tabular.Row)}

	for _, c := range groups[classify.KindOps] {
		ds.ops = append(ds.ops, p.std.Ops(c.Table)...)
	}
	nameIDs := identity.BuildNameIDMap(ds.ops)
	logger.Info("name-id map built", slog.Int("names", len(nameIDs)))

	for _, c := range groups[classify.KindAgent] {
		ds.agent = append(ds.agent, p.std.Agent(c.Table, c.Path, nameIDs)...)
	}
	for _, c := range groups[classify.KindPlatform] {
		ds.platform = append(ds.platform, p.std.Platform(c.Table)...)
	}
	for _, c := range groups[classify.KindDaily] {
		ds.daily = append(ds.daily, p.std.Daily(c.Table, nameIDs)...)
	}
	for _, c := range groups[classify.KindCost] {
		ds.cost = append(ds.cost, p.std.Cost(c.Table)...)
	}
	for _, c := range groups[classify.KindFirstPayLTV] {
		ds.fpltv = append(ds.fpltv, p.std.FirstPayLTV(c.Table, c.Path)...)
	}
	for _, kind := range classify.RetentionKinds {
		for _, c := range groups[kind] {
			ds.retention[kind] = append(ds.retention[kind], p.std.Retention(c.Table, c.Path)...)
		}
	}
	// The primary first-pay segment breakdown rides along in the login
	// retention export.
	for _, c := range groups[classify.KindRetentionLogin] {
		ds.primary = append(ds.primary, p.std.PrimaryFirstPay(c.Table)...)
	}
	return ds
}

// dedupBaseSources collapses duplicate rows in the keyed sources before any
// join: counts and amounts sum, display fields keep their first value, and
// the promotion method derives from the raw channel labels collected per
// agent-day before they are folded away.
func (p *Pipeline) dedupBaseSources(ds *datasets) {
	agentKeys := []string{tabular.FieldDate, tabular.FieldAgentID}

	rawChannels := make(map[string][]string)
	for _, row := range ds.agent {
		id, ok := row[tabular.FieldAgentID].(int64)
		if !ok {
			continue
		}
		raw, _ := row[tabular.FieldChannelRaw].(string)
		if raw == "" {
			continue
		}
		key := fmt.Sprintf("%s\x1f%d", tabular.String(row[tabular.FieldDate]), id)
		rawChannels[key] = append(rawChannels[key], raw)
	}

	ds.agent = merge.Dedup(ds.agent, merge.DedupSpec{
		Keys: agentKeys,
		Text: []string{tabular.FieldChannel, tabular.FieldChannelClean, tabular.FieldPlatform, tabular.FieldDepartment},
	})
	for _, row := range ds.agent {
		id, _ := row[tabular.FieldAgentID].(int64)
		key := fmt.Sprintf("%s\x1f%d", tabular.String(row[tabular.FieldDate]), id)
		if names, ok := rawChannels[key]; ok {
			row[tabular.FieldPromotionMethod] = identity.PromotionMethod(names)
		}
	}

	ds.daily = merge.Dedup(ds.daily, merge.DedupSpec{
		Keys: agentKeys,
		Text: []string{tabular.FieldChannel, tabular.FieldChannelClean},
	})
	ds.primary = merge.Dedup(ds.primary, merge.DedupSpec{
		Keys: agentKeys,
		Text: []string{tabular.FieldChannel, tabular.FieldChannelClean},
	})
}

// resolveTargetDate picks the report date: an explicit configured date when
// it exists in the data (warning and falling back to the newest date when
// it does not), otherwise the newest agent date, otherwise the newest date
// anywhere.
func (p *Pipeline) resolveTargetDate(ds *datasets, logger *slog.Logger) (string, bool) {
	maxDate := func(rows []tabular.Row) string {
		max := ""
		for _, row := range rows {
			if d, _ := row[tabular.FieldDate].(string); d > max {
				max = d
			}
		}
		return max
	}
	all := make(map[string]struct{})
	collect := func(rows []tabular.Row) {
		for _, row := range rows {
			if d, _ := row[tabular.FieldDate].(string); d != "" {
				all[d] = struct{}{}
			}
		}
	}
	collect(ds.agent)
	collect(ds.daily)
	collect(ds.platform)
	collect(ds.cost)
	collect(ds.fpltv)
	collect(ds.primary)
	for _, rows := range ds.retention {
		collect(rows)
	}
	if len(all) == 0 {
		return "", false
	}
	globalMax := ""
	for d := range all {
		if d > globalMax {
			globalMax = d
		}
	}

	target := strings.TrimSpace(p.cfg.Run.TargetDate)
	if target != "" && target != "latest" {
		if _, present := all[target]; present {
			return target, true
		}
		logger.Warn("configured target date absent from data, using newest",
			slog.String("target_date", target), slog.String("fallback", globalMax))
		return globalMax, true
	}

	if d := maxDate(ds.agent); d != "" {
		return d, true
	}
	return globalMax, true
}

func filterDate(rows []tabular.Row, date string) []tabular.Row {
	var out []tabular.Row
	for _, row := range rows {
		if d, _ := row[tabular.FieldDate].(string); d == date {
			out = append(out, row)
		}
	}
	return out
}

// splitHistorical separates a lookback-capable source into the target-date
// slice (identity supplementation) and the full history up to the target
// (offset lookbacks).
func splitHistorical(rows []tabular.Row, date string) (base, hist []tabular.Row) {
	for _, row := range rows {
		d, _ := row[tabular.FieldDate].(string)
		if d == "" || d > date {
			continue
		}
		hist = append(hist, row)
		if d == date {
			base = append(base, row)
		}
	}
	return base, hist
}

// dedupKeysFor builds the duplicate-collapse key for rate-valued sources
// from the fields the source actually carries.
func dedupKeysFor(rows []tabular.Row) []string {
	keys := []string{tabular.FieldDate}
	if merge.HasField(rows, tabular.FieldPlatform) {
		keys = append(keys, tabular.FieldPlatform)
	}
	if merge.HasField(rows, tabular.FieldAgentID) {
		keys = append(keys, tabular.FieldAgentID)
	}
	return keys
}

// reconcile builds the main table for the report date: filter each source
// to the date (keeping history where lookbacks need it), build and
// supplement the identity universe, then join every metric source on.
func (p *Pipeline) reconcile(ds *datasets, reportDate string, logger *slog.Logger) []tabular.Row {
	agent := filterDate(ds.agent, reportDate)
	daily := filterDate(ds.daily, reportDate)
	platform := filterDate(ds.platform, reportDate)
	cost := filterDate(ds.cost, reportDate)
	primary := filterDate(ds.primary, reportDate)

	fpltvBase, fpltvHist := splitHistorical(ds.fpltv, reportDate)
	fpltvBase = merge.Dedup(fpltvBase, merge.DedupSpec{Keys: dedupKeysFor(fpltvBase), Mean: true})
	fpltvHist = merge.Dedup(fpltvHist, merge.DedupSpec{Keys: dedupKeysFor(fpltvHist), Mean: true})

	retBase := make(map[classify.Kind][]tabular.Row)
	retHist := make(map[classify.Kind][]tabular.Row)
	for kind, rows := range ds.retention {
		base, hist := splitHistorical(rows, reportDate)
		retBase[kind] = merge.Dedup(base, merge.DedupSpec{Keys: dedupKeysFor(base), Mean: true})
		retHist[kind] = hist
	}

	// Identity universe: agent rows first, then combinations only the
	// retention or LTV sources saw.
	main := identity.BuildBase(agent)
	names := identity.NamesByID(agent)
	supplements := [][]tabular.Row{
		retBase[classify.KindRetentionLogin],
		retBase[classify.KindRetentionPlay],
		retBase[classify.KindRetentionFirstPay],
		fpltvBase,
	}
	main = identity.Supplement(main, supplements, names, logger)
	main = identity.FillDims(main)

	idKeys := []string{tabular.FieldDate, tabular.FieldAgentID}
	nameKeys := []string{tabular.FieldDate, tabular.FieldChannelClean}

	merge.LeftJoin(main, agent, idKeys, []string{
		tabular.FieldRegister, tabular.FieldActive,
		tabular.FieldPayUsers, tabular.FieldPayAmount,
		tabular.FieldFirstPayUsers, tabular.FieldFirstPayAmount,
		tabular.FieldWithdraw, tabular.FieldDepositWithdrawGap,
	}, false)

	// Daily fills gaps only: when agent and daily both report first-pay
	// figures for a day, the agent report wins.
	merge.LeftJoin(main, daily, idKeys, []string{
		tabular.FieldFirstPayUsers, tabular.FieldFirstPayAmount, tabular.FieldPayActiveUsers,
	}, true)

	merge.LeftJoin(main, primary, idKeys, []string{tabular.FieldPrimaryFirstPay}, false)

	// Cost at channel grain, then platform grain for rows still uncovered.
	costFields := []string{tabular.FieldSpend, tabular.FieldImpressions, tabular.FieldClicks, tabular.FieldWithdraw}
	if merge.HasField(cost, tabular.FieldChannelClean) {
		channelCost := merge.Dedup(cost, merge.DedupSpec{Keys: nameKeys})
		merge.LeftJoin(main, channelCost, nameKeys, costFields, true)
	}
	if merge.HasField(cost, tabular.FieldPlatform) {
		platKeys := []string{tabular.FieldDate, tabular.FieldPlatform}
		platformCost := merge.Dedup(cost, merge.DedupSpec{Keys: platKeys})
		merge.LeftJoin(main, platformCost, platKeys, costFields, true)
	}

	// Platform LTV broadcast.
	if len(platform) > 0 {
		platKeys := []string{tabular.FieldDate, tabular.FieldPlatform}
		ltvFields := make([]string, 0, 5)
		for _, d := range []int{1, 3, 7, 14, 30} {
			ltvFields = append(ltvFields, tabular.LTVField(d))
		}
		broadcast := merge.Dedup(platform, merge.DedupSpec{Keys: platKeys, Mean: true})
		merge.LeftJoin(main, broadcast, platKeys, ltvFields, false)
	}

	p.joinFirstPayLTV(main, fpltvHist, reportDate, logger)
	p.joinRetention(main, retHist, logger)

	return main
}

// joinFirstPayLTV pulls each assessment horizon from the export dated
// offset days before the report date; a D7 value for today's cohort is only
// authoritative in the file from seven days ago.
func (p *Pipeline) joinFirstPayLTV(main, hist []tabular.Row, reportDate string, logger *slog.Logger) {
	if len(hist) == 0 {
		return
	}
	keys := []string{tabular.FieldPlatform}
	if merge.HasField(hist, tabular.FieldAgentID) {
		keys = append(keys, tabular.FieldAgentID)
	} else if !merge.HasField(hist, tabular.FieldPlatform) {
		logger.Warn("first-pay LTV history carries neither platform nor agent id, skipping lookback")
		return
	}

	offsets := make(map[int]string, 7)
	for _, d := range []int{1, 2, 3, 7, 14, 15, 30} {
		offsets[d] = tabular.FirstPayLTVField(d)
	}
	merge.OffsetLookback(main, hist, reportDate, offsets, keys, logger)
}

// joinRetention broadcasts retention horizons from the best available
// source kind; the kinds substitute for each other in preference order
// rather than mixing.
func (p *Pipeline) joinRetention(main []tabular.Row, hist map[classify.Kind][]tabular.Row, logger *slog.Logger) {
	var picked classify.Kind
	var rows []tabular.Row
	for _, kind := range classify.RetentionKinds {
		if len(hist[kind]) > 0 {
			picked, rows = kind, hist[kind]
			break
		}
	}
	if rows == nil {
		logger.Info("no retention history available")
		return
	}
	logger.Info("retention source selected", slog.String("kind", string(picked)))

	var keys []string
	switch {
	case merge.HasField(rows, tabular.FieldAgentID) && merge.HasField(rows, tabular.FieldPlatform):
		keys = []string{tabular.FieldPlatform, tabular.FieldAgentID}
	case merge.HasField(rows, tabular.FieldAgentID):
		keys = []string{tabular.FieldAgentID}
	case merge.HasField(rows, tabular.FieldPlatform):
		keys = []string{tabular.FieldPlatform}
	default:
		logger.Warn("retention history carries no join key, skipping")
		return
	}

	days := []int{1, 3, 7, 15, 30}
	fields := make([]string, 0, len(days))
	renamed := make([]tabular.Row, 0, len(rows))
	for _, row := range rows {
		rec := tabular.Row{}
		for _, k := range keys {
			rec[k] = row[k]
		}
		for _, d := range days {
			if v, ok := row[tabular.RetentionField(d)]; ok {
				rec[calc.FamilyField(string(picked), d)] = v
			}
		}
		renamed = append(renamed, rec)
	}
	for _, d := range days {
		fields = append(fields, calc.FamilyField(string(picked), d))
	}
	merge.RetentionJoin(main, renamed, keys, fields)
}

// export writes the workbook, a CSV mirror and the coverage diagnostics.
func (p *Pipeline) export(reportDate string, rows []tabular.Row, logger *slog.Logger) (string, string, error) {
	columns := p.cfg.Tables.FinalColumns

	outputPath, err := exporter.NewExcelWriter(logger).Write(p.cfg.Paths.OutputFile, columns, rows)
	if err != nil {
		return "", "", err
	}

	csvPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".csv"
	if err := exporter.NewCSVWriter(logger).Write(csvPath, columns, rows); err != nil {
		logger.Warn("CSV mirror failed", slog.String("error", err.Error()))
	}

	diagPath := filepath.Join(p.cfg.Paths.ReportDir, "missing_fields_report.txt")
	diag := exporter.Diagnose(reportDate, columns, rows)
	if err := diag.Save(diagPath); err != nil {
		logger.Warn("diagnostics report failed", slog.String("error", err.Error()))
		diagPath = ""
	}
	return outputPath, diagPath, nil
}
