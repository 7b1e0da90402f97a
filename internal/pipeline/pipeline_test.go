package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcli/internal/config"
	"agentcli/internal/tabular"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T, inputDir string) (*Pipeline, *config.Config) {
	t.Helper()
	outDir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.InputDir = inputDir
	cfg.Paths.OutputFile = filepath.Join(outDir, "daily_agent_report.xlsx")
	cfg.Paths.ReportDir = outDir
	return New(cfg, discardLogger()), cfg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// TestRunEndToEnd drives a full run over one agent-day across every source
// kind: ops seeds the name→ID map, the agent report carries the converted
// money columns, cost joins at channel grain, the login retention export
// contributes both the retention horizon and the primary first-pay segment,
// and the first-pay LTV history resolves through the offset lookbacks.
func TestRunEndToEnd(t *testing.T) {
	inputDir := t.TempDir()
	downloads := filepath.Join(inputDir, "downloads")
	channel := "BRL_KKK_AAA_TT_01_x(1001)"

	writeFile(t, filepath.Join(downloads, "TT-1xspin-巴西BR-A8-operation_export-2025-10-30.csv"),
		"日期,渠道名称,投注金额,中奖金额\n"+
			"2025-10-30,"+channel+",5000,4000\n")

	// Money columns in BRL, divided by the 巴西 rate of 6.
	writeFile(t, filepath.Join(downloads, "TT-1xspin-巴西BR-A8-代理报表-2025-10-30.csv"),
		"日期,渠道名称,注册人数,活跃人数,充值人数,充值金额,首充人数,首充金额,提现金额\n"+
			"2025-10-30,"+channel+",100,50,20,600,10,300,120\n")

	writeFile(t, filepath.Join(downloads, "TT-1xspin-巴西BR-A8-ads_cost-2025-10-30.csv"),
		"日期,渠道名称,消耗,展示,点击\n"+
			"2025-10-30,"+channel+",50,10000,500\n")

	writeFile(t, filepath.Join(downloads, "TT-1xspin-巴西BR-A8-user_daily_export-2025-10-30.csv"),
		"日期,渠道名称,活跃充值人数\n"+
			"2025-10-30,"+channel+",15\n")

	// Segment breakdown rows: 全部 feeds both the retention horizon and the
	// default primary first-pay extraction; the parent row must be ignored.
	writeFile(t, filepath.Join(downloads, "TT-1xspin-巴西BR-A8-user_retention_first_login-2025-10-30.csv"),
		"日期,裂变类型,渠道名称,首充人数,2日留存\n"+
			"2025-10-30,全部,"+channel+",4,50.00%\n"+
			"2025-10-30,parent,"+channel+",3,40.00%\n")

	// Historical LTV exports: the D1 figure for the 10-30 cohort lives in
	// the 10-29 file, D2 in the 10-28 file.
	writeFile(t, filepath.Join(downloads, "TT-1xspin-巴西BR-A8-first_paid_ltv-2025-10-30.csv"),
		"日期,渠道名称,考核1,考核2\n"+
			"2025-10-29,"+channel+",11.34(110.00),\n"+
			"2025-10-28,"+channel+",9.10(90.00),8.50\n")

	// A corrupted workbook must be skipped, not fail the run.
	writeFile(t, filepath.Join(downloads, "TT-1xspin-巴西BR-A8-代理报表-2025-10-31.xlsx"), "not a zip archive")

	p, cfg := newTestPipeline(t, inputDir)
	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2025-10-30", result.ReportDate)
	assert.NotEmpty(t, result.RunID)
	assert.FileExists(t, result.OutputPath)
	assert.Equal(t, cfg.Paths.OutputFile, result.OutputPath)
	assert.FileExists(t, result.DiagnosticsPath)

	require.Len(t, result.Rows, 1)
	row := result.Rows[0]

	assert.Equal(t, "2025-10-30", row["日期"])
	assert.Equal(t, "1xspin", row["盘口"])
	assert.Equal(t, "TT产品", row["产品"])
	assert.Equal(t, "A8", row["推广部门"])
	assert.Equal(t, "投放", row["推广方式"])
	assert.Equal(t, channel, row["总代名称"])
	id, ok := tabular.Float(row["总代号"])
	require.True(t, ok)
	assert.Equal(t, 1001.0, id)

	assert.InDelta(t, 100.0, row["注册人数"], 1e-9)
	assert.InDelta(t, 100.0, row["充值金额"], 1e-9) // 600 BRL / 6
	assert.InDelta(t, 80.0, row["充提差"], 1e-9)   // 100 − 20
	assert.InDelta(t, 50.0, row["当日首充金额"], 1e-9)
	assert.InDelta(t, 50.0, row["消耗"], 1e-9)
	assert.InDelta(t, 0.5, row["注册成本"], 1e-9)
	assert.InDelta(t, 5.0, row["首充成本"], 1e-9)
	assert.InDelta(t, 5.0, row["千展成本crm"], 1e-9)
	assert.InDelta(t, 0.05, row["点击率"], 1e-9)
	assert.InDelta(t, 1.0, row["首充roas"], 1e-9)
	assert.InDelta(t, 0.1, row["首充转化率"], 1e-9)

	// Withdraw-scale gap: 50 − 20×(10/20).
	assert.InDelta(t, 40.0, row["首充当日充提差"], 1e-9)
	assert.InDelta(t, 0.8, row["首充当日roi"], 1e-9)

	// Primary segment from the 全部 breakdown row.
	assert.InDelta(t, 4.0, row["一级首充人数"], 1e-9)
	assert.InDelta(t, 12.5, row["一级首充成本"], 1e-9)
	assert.InDelta(t, 0.6, row["非一级首充人数/首充人数"], 1e-9)
	assert.InDelta(t, 0.3, row["非一级首充人数/充值人数"], 1e-9)

	// Offset lookbacks.
	assert.InDelta(t, 11.34, row["首充当日ltv"], 1e-9)
	assert.InDelta(t, 8.5, row["首充两日ltv_偏移"], 1e-9)

	// Formula-mode retention: 50 × (10/100).
	assert.InDelta(t, 5.0, row["首充次日复登率_偏移"], 1e-9)

	// CSV mirror sits next to the workbook.
	assert.FileExists(t, filepath.Join(filepath.Dir(result.OutputPath), "daily_agent_report.csv"))
}

func TestRunNoData(t *testing.T) {
	p, _ := newTestPipeline(t, t.TempDir())
	_, err := p.Run(context.Background())
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestResolveTargetDate(t *testing.T) {
	rows := func(dates ...string) []tabular.Row {
		out := make([]tabular.Row, 0, len(dates))
		for _, d := range dates {
			out = append(out, tabular.Row{tabular.FieldDate: d})
		}
		return out
	}

	t.Run("latest prefers newest agent date", func(t *testing.T) {
		p, _ := newTestPipeline(t, t.TempDir())
		ds := &datasets{
			agent: rows("2025-10-29", "2025-10-30"),
			daily: rows("2025-10-31"),
		}
		date, ok := p.resolveTargetDate(ds, discardLogger())
		require.True(t, ok)
		assert.Equal(t, "2025-10-30", date)
	})

	t.Run("latest without agent falls back to global max", func(t *testing.T) {
		p, _ := newTestPipeline(t, t.TempDir())
		ds := &datasets{daily: rows("2025-10-28", "2025-10-31")}
		date, ok := p.resolveTargetDate(ds, discardLogger())
		require.True(t, ok)
		assert.Equal(t, "2025-10-31", date)
	})

	t.Run("explicit date present in data", func(t *testing.T) {
		p, cfg := newTestPipeline(t, t.TempDir())
		cfg.Run.TargetDate = "2025-10-29"
		ds := &datasets{agent: rows("2025-10-29", "2025-10-30")}
		date, ok := p.resolveTargetDate(ds, discardLogger())
		require.True(t, ok)
		assert.Equal(t, "2025-10-29", date)
	})

	t.Run("explicit date absent falls back to newest", func(t *testing.T) {
		p, cfg := newTestPipeline(t, t.TempDir())
		cfg.Run.TargetDate = "2025-11-05"
		ds := &datasets{agent: rows("2025-10-29", "2025-10-30")}
		date, ok := p.resolveTargetDate(ds, discardLogger())
		require.True(t, ok)
		assert.Equal(t, "2025-10-30", date)
	})

	t.Run("no dates anywhere", func(t *testing.T) {
		p, _ := newTestPipeline(t, t.TempDir())
		_, ok := p.resolveTargetDate(&datasets{}, discardLogger())
		assert.False(t, ok)
	})
}

func TestSplitHistorical(t *testing.T) {
	rows := []tabular.Row{
		{tabular.FieldDate: "2025-10-28", "v": 1.0},
		{tabular.FieldDate: "2025-10-30", "v": 2.0},
		{tabular.FieldDate: "2025-10-31", "v": 3.0},
	}
	base, hist := splitHistorical(rows, "2025-10-30")
	require.Len(t, base, 1)
	assert.Equal(t, 2.0, base[0]["v"])
	require.Len(t, hist, 2)
	assert.Equal(t, 1.0, hist[0]["v"])
	assert.Equal(t, 2.0, hist[1]["v"])
}

func TestDedupKeysFor(t *testing.T) {
	full := []tabular.Row{{
		tabular.FieldDate: "2025-10-30", tabular.FieldPlatform: "1xspin", tabular.FieldAgentID: int64(7),
	}}
	assert.Equal(t, []string{tabular.FieldDate, tabular.FieldPlatform, tabular.FieldAgentID}, dedupKeysFor(full))

	platformOnly := []tabular.Row{{tabular.FieldDate: "2025-10-30", tabular.FieldPlatform: "1xspin"}}
	assert.Equal(t, []string{tabular.FieldDate, tabular.FieldPlatform}, dedupKeysFor(platformOnly))

	bare := []tabular.Row{{tabular.FieldDate: "2025-10-30"}}
	assert.Equal(t, []string{tabular.FieldDate}, dedupKeysFor(bare))
}

// TestDedupBaseSourcesPromotionMethod checks that the promotion method
// derives from every raw channel label of the agent-day, not just the row
// the dedup kept.
func TestDedupBaseSourcesPromotionMethod(t *testing.T) {
	p, _ := newTestPipeline(t, t.TempDir())
	ds := &datasets{agent: []tabular.Row{
		{
			tabular.FieldDate: "2025-10-30", tabular.FieldAgentID: int64(7),
			tabular.FieldChannel: "a", tabular.FieldChannelClean: "a",
			tabular.FieldChannelRaw: "BRL_短信_01",
			tabular.FieldRegister:   10.0,
		},
		{
			tabular.FieldDate: "2025-10-30", tabular.FieldAgentID: int64(7),
			tabular.FieldChannel: "a", tabular.FieldChannelClean: "a",
			tabular.FieldChannelRaw: "BRL_网红_02",
			tabular.FieldRegister:   5.0,
		},
	}}
	p.dedupBaseSources(ds)

	require.Len(t, ds.agent, 1)
	assert.Equal(t, 15.0, ds.agent[0][tabular.FieldRegister])
	assert.Equal(t, "短信+网红", ds.agent[0][tabular.FieldPromotionMethod])
}

func TestDiscoverWhitelist(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "TT-1xspin-巴西BR-A8-代理报表-2025-10-30.csv"), "日期\n")
	writeFile(t, filepath.Join(dir, "random_notes.csv"), "日期\n")
	writeFile(t, filepath.Join(dir, "每日总代数据_2025-10-29.xlsx"), "x")
	writeFile(t, filepath.Join(dir, "~$TT-1xspin-temp.xlsx"), "x")
	writeFile(t, filepath.Join(dir, "downloads", "any_export.csv"), "日期\n")
	writeFile(t, filepath.Join(dir, "downloads", "chrome_user_data", "cache.csv"), "x")
	writeFile(t, filepath.Join(dir, "downloads", "sites.csv"), "x")

	files, err := Discover(dir, discardLogger())
	require.NoError(t, err)

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.ElementsMatch(t, []string{
		"TT-1xspin-巴西BR-A8-代理报表-2025-10-30.csv",
		"any_export.csv",
	}, names)
}
