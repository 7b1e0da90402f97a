package pipeline

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// skipDirs are directories that never hold source data: browser profiles,
// cookie stores, tool caches. The scraper shares its working directory with
// the report inputs, so these show up alongside real exports.
var skipDirs = map[string]struct{}{
	"chrome_user_data": {},
	"cookies":          {},
	"__pycache__":      {},
	".git":             {},
	"node_modules":     {},
	".venv":            {},
	"venv":             {},
	".cursor":          {},
}

// skipFilePatterns name configuration sheets and historical report outputs
// that would otherwise classify as data.
var skipFilePatterns = []string{"sites.csv", "阈值营收表", "每日总代数据"}

var dataExtensions = map[string]struct{}{".csv": {}, ".xlsx": {}, ".xls": {}}

// Discover returns every candidate source file under the input directory,
// sorted by path so runs over the same tree are deterministic. Everything
// under downloads/ is accepted; root-level files must carry a scraper
// naming prefix — the root also accumulates hand-edited workbooks that are
// not inputs.
func Discover(inputDir string, logger *slog.Logger) ([]string, error) {
	var files []string

	downloads := filepath.Join(inputDir, "downloads")
	if info, err := os.Stat(downloads); err == nil && info.IsDir() {
		err := filepath.WalkDir(downloads, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if _, skip := skipDirs[d.Name()]; skip {
					return filepath.SkipDir
				}
				return nil
			}
			if acceptFile(d.Name()) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !acceptFile(name) {
			continue
		}
		if !strings.HasPrefix(name, "TT-") && !strings.HasPrefix(name, "1xspingames_") {
			logger.Debug("skipping non-whitelisted root file", slog.String("file", name))
			continue
		}
		files = append(files, filepath.Join(inputDir, name))
	}

	sort.Strings(files)
	logger.Info("input discovery complete",
		slog.String("dir", inputDir), slog.Int("files", len(files)))
	return files, nil
}

func acceptFile(name string) bool {
	if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
		return false
	}
	if _, ok := dataExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
		return false
	}
	for _, pattern := range skipFilePatterns {
		if strings.Contains(name, pattern) {
			return false
		}
	}
	return true
}
