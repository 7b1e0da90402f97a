// Package scraper collects the daily channel statistics table from the
// operator backend with a headless browser: TOTP-assisted login, scrolling
// the virtualized table until it stops growing, then exporting the rows to
// a CSV the reporting pipeline picks up.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"

	"agentcli/internal/exporter"
	"agentcli/internal/tabular"
)

const (
	elementTimeout = 25 * time.Second
	tableTimeout   = 30 * time.Second

	// Scroll loop bounds: stop after maxIdleLoops passes with no new rows
	// and no height change, or after maxScrolls passes regardless.
	maxScrolls     = 60
	maxIdleLoops   = 4
	scrollInterval = 1200 * time.Millisecond

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"
)

// loadMoreJS clicks a pagination button when the table paginates instead of
// scrolling. Harmless when no such button exists.
const loadMoreJS = `(() => {
	const texts = ['加载更多', 'Load more', '下一页'];
	for (const btn of document.querySelectorAll('button')) {
		const label = (btn.innerText || '').trim();
		if (label && !btn.disabled && texts.some(t => label.includes(t))) {
			btn.click();
			return true;
		}
	}
	return false;
})()`

// Scraper drives one collection session.
type Scraper struct {
	cfg     *Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

func New(cfg *Config, logger *slog.Logger) *Scraper {
	return &Scraper{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(scrollInterval), 1),
		logger:  logger,
	}
}

// Run logs in, loads the complete statistics table and writes it to a CSV
// in the save directory. Returns the written path.
func (s *Scraper) Run(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.cfg.SaveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create save dir: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1400, 900),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := s.login(browserCtx); err != nil {
		return "", err
	}
	rows, err := s.loadAllRows(browserCtx)
	if err != nil {
		return "", err
	}
	s.logger.Info("table fully loaded", slog.Int("rows", rows))

	table, err := s.extract(browserCtx)
	if err != nil {
		return "", err
	}
	return s.save(table)
}

// login fills the credential form, adds the authenticator code when a
// secret is configured, and waits for the statistics table to confirm the
// session.
func (s *Scraper) login(ctx context.Context) error {
	if err := chromedp.Run(ctx, chromedp.Navigate(s.cfg.LoginURL)); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}

	userSel, err := s.waitForAny(ctx, s.cfg.Selectors.Username, elementTimeout)
	if err != nil {
		return fmt.Errorf("login form not found: %w", err)
	}
	if err := s.fill(ctx, userSel, s.cfg.Username); err != nil {
		return fmt.Errorf("failed to enter username: %w", err)
	}

	passSel, err := s.waitForAny(ctx, s.cfg.Selectors.Password, elementTimeout)
	if err != nil {
		return fmt.Errorf("password field not found: %w", err)
	}
	if err := s.fill(ctx, passSel, s.cfg.Password); err != nil {
		return fmt.Errorf("failed to enter password: %w", err)
	}

	if s.cfg.TOTPSecret != "" {
		code, err := TOTPCode(s.cfg.TOTPSecret)
		if err != nil {
			s.logger.Warn("totp generation failed, submitting without code", slog.String("error", err.Error()))
		} else if totpSel, err := s.waitForAny(ctx, s.cfg.Selectors.TOTP, 5*time.Second); err != nil {
			s.logger.Warn("no totp input found, two-factor may be disabled for this account")
		} else if err := s.fill(ctx, totpSel, code); err != nil {
			return fmt.Errorf("failed to enter totp code: %w", err)
		}
	}

	submitSel, err := s.waitForAny(ctx, s.cfg.Selectors.Submit, elementTimeout)
	if err != nil {
		return fmt.Errorf("submit button not found: %w", err)
	}
	if err := chromedp.Run(ctx, chromedp.Click(submitSel, queryOption(submitSel))); err != nil {
		return fmt.Errorf("failed to submit login form: %w", err)
	}

	if _, err := s.waitForAny(ctx, s.cfg.Selectors.TableContainer, tableTimeout); err != nil {
		return fmt.Errorf("statistics page did not load after login: %w", err)
	}
	s.logger.Info("login complete")
	return nil
}

func (s *Scraper) fill(ctx context.Context, sel, value string) error {
	opt := queryOption(sel)
	return chromedp.Run(ctx,
		chromedp.Clear(sel, opt),
		chromedp.SendKeys(sel, value, opt),
	)
}

// waitForAny tries each selector candidate in order, giving each the full
// timeout, and returns the first that becomes visible.
func (s *Scraper) waitForAny(ctx context.Context, selectors []string, timeout time.Duration) (string, error) {
	var lastErr error
	for _, sel := range selectors {
		attempt, cancel := context.WithTimeout(ctx, timeout)
		err := chromedp.Run(attempt, chromedp.WaitVisible(sel, queryOption(sel)))
		cancel()
		if err == nil {
			return sel, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no selector candidates configured")
	}
	return "", lastErr
}

func queryOption(sel string) chromedp.QueryOption {
	if isXPath(sel) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

type tableState struct {
	Rows   int     `json:"rows"`
	Height float64 `json:"height"`
}

// loadAllRows scrolls the virtualized table to the bottom repeatedly until
// the row count and scroll height both stop changing. Passes are paced by
// the rate limiter so the frontend gets time to fetch the next chunk.
func (s *Scraper) loadAllRows(ctx context.Context) (int, error) {
	scrollJS := fmt.Sprintf(`(() => {
		const containers = %s;
		let el = null;
		for (const sel of containers) {
			el = document.querySelector(sel);
			if (el) break;
		}
		if (!el) return {rows: 0, height: 0};
		el.scrollTo(0, el.scrollHeight);
		let rows = el.querySelectorAll('tbody tr');
		if (!rows.length) {
			for (const sel of %s) {
				rows = document.querySelectorAll(sel);
				if (rows.length) break;
			}
		}
		return {rows: rows.length, height: el.scrollHeight};
	})()`, jsStringArray(cssOnly(s.cfg.Selectors.TableContainer)), jsStringArray(cssOnly(s.cfg.Selectors.TableRows)))

	var lastRows int
	var lastHeight float64
	idle := 0
	for pass := 1; pass <= maxScrolls; pass++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return lastRows, err
		}

		var st tableState
		if err := chromedp.Run(ctx, chromedp.Evaluate(scrollJS, &st)); err != nil {
			return lastRows, fmt.Errorf("scroll pass %d failed: %w", pass, err)
		}
		var clicked bool
		_ = chromedp.Run(ctx, chromedp.Evaluate(loadMoreJS, &clicked))

		s.logger.Debug("scroll pass",
			slog.Int("pass", pass),
			slog.Int("rows", st.Rows),
			slog.Float64("scroll_height", st.Height),
			slog.Bool("load_more_clicked", clicked))

		if st.Rows == lastRows && st.Height == lastHeight {
			idle++
			if idle >= maxIdleLoops {
				break
			}
		} else {
			idle = 0
		}
		lastRows, lastHeight = st.Rows, st.Height
	}
	return lastRows, nil
}

type rawTable struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// extract reads the loaded table's header and cell text in one evaluation.
func (s *Scraper) extract(ctx context.Context) (*tabular.Table, error) {
	js := fmt.Sprintf(`(() => {
		let headers = [];
		for (const sel of %s) {
			const els = document.querySelectorAll(sel);
			if (els.length) {
				headers = Array.from(els).map(e => (e.innerText || '').trim());
				break;
			}
		}
		const rows = [];
		for (const sel of %s) {
			const els = document.querySelectorAll(sel);
			if (!els.length) continue;
			for (const row of els) {
				let cells = row.querySelectorAll('td');
				if (!cells.length) cells = row.querySelectorAll("div[role='gridcell']");
				if (!cells.length) cells = row.children;
				const values = Array.from(cells).map(c => (c.innerText || '').trim());
				if (values.some(v => v !== '')) rows.push(values);
			}
			break;
		}
		return {headers: headers, rows: rows};
	})()`, jsStringArray(cssOnly(s.cfg.Selectors.TableHeaders)), jsStringArray(cssOnly(s.cfg.Selectors.TableRows)))

	var raw rawTable
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &raw)); err != nil {
		return nil, fmt.Errorf("table extraction failed: %w", err)
	}
	if len(raw.Headers) == 0 {
		return nil, fmt.Errorf("could not identify table headers; adjust NEWPLATFORM_SELECTOR_TABLE_HEADERS")
	}
	if len(raw.Rows) == 0 {
		return nil, fmt.Errorf("no data rows collected; the table may not have finished loading")
	}
	return buildTable(raw), nil
}

// buildTable converts extracted cell text to the canonical table form.
// Short rows leave trailing headers unset.
func buildTable(raw rawTable) *tabular.Table {
	t := &tabular.Table{Headers: raw.Headers}
	for _, cells := range raw.Rows {
		row := make(tabular.Row, len(raw.Headers))
		for i, h := range raw.Headers {
			if i < len(cells) && cells[i] != "" {
				row[h] = cells[i]
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func (s *Scraper) save(table *tabular.Table) (string, error) {
	name := fmt.Sprintf("daily_channel_statistics_%s.csv", time.Now().Format("20060102_150405"))
	path := filepath.Join(s.cfg.SaveDir, name)
	if err := exporter.NewCSVWriter(s.logger).Write(path, table.Headers, table.Rows); err != nil {
		return "", err
	}
	s.logger.Info("statistics saved", slog.String("path", path), slog.Int("rows", len(table.Rows)))
	return path, nil
}

// cssOnly filters XPath candidates out of a selector list; the in-page
// extraction scripts can only use querySelectorAll.
func cssOnly(selectors []string) []string {
	out := make([]string, 0, len(selectors))
	for _, sel := range selectors {
		if !isXPath(sel) {
			out = append(out, sel)
		}
	}
	return out
}

// jsStringArray renders a selector list as a JS array literal.
func jsStringArray(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}
