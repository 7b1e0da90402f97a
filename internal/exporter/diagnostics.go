package exporter

import (
	"fmt"
	"os"
	"strings"
	"time"

	"agentcli/internal/tabular"
)

// Diagnostics summarizes per-column coverage of a finished report, so a
// silently missing source (an export the scraper failed to download, a
// renamed header nothing matched) is visible without opening the workbook.
type Diagnostics struct {
	ReportDate string
	Rows       int
	Columns    []ColumnStat
}

// ColumnStat is one output column's coverage.
type ColumnStat struct {
	Name     string
	Numeric  bool
	NonZero  int
	NonEmpty int
	Total    float64
}

// Diagnose computes coverage for every schema column over the final rows.
func Diagnose(reportDate string, columns []string, rows []tabular.Row) Diagnostics {
	d := Diagnostics{ReportDate: reportDate, Rows: len(rows)}
	for _, col := range columns {
		stat := ColumnStat{Name: col}
		for _, row := range rows {
			switch v := row[col].(type) {
			case float64:
				stat.Numeric = true
				stat.Total += v
				if v != 0 {
					stat.NonZero++
				}
			case int64:
				stat.Numeric = true
				stat.Total += float64(v)
				if v != 0 {
					stat.NonZero++
				}
			case string:
				if v != "" {
					stat.NonEmpty++
				}
			}
		}
		d.Columns = append(d.Columns, stat)
	}
	return d
}

// Render formats the diagnostics as the plain-text report.
func (d Diagnostics) Render() string {
	var b strings.Builder
	b.WriteString("=== 每日总代数据 - 字段诊断报告 ===\n")
	fmt.Fprintf(&b, "报表日期: %s\n", d.ReportDate)
	fmt.Fprintf(&b, "总行数: %d\n", d.Rows)
	fmt.Fprintf(&b, "生成时间: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	for _, c := range d.Columns {
		if c.Numeric {
			fmt.Fprintf(&b, "%s: %d/%d 非零 (合计: %.2f)\n", c.Name, c.NonZero, d.Rows, c.Total)
		} else {
			fmt.Fprintf(&b, "%s: %d/%d 非空\n", c.Name, c.NonEmpty, d.Rows)
		}
	}
	return b.String()
}

// Save writes the rendered report to disk.
func (d Diagnostics) Save(path string) error {
	if err := os.WriteFile(path, []byte(d.Render()), 0644); err != nil {
		return fmt.Errorf("failed to write diagnostics report: %w", err)
	}
	return nil
}
