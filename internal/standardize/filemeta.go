package standardize

import (
	"path/filepath"
	"strings"

	"agentcli/internal/config"
)

// FileMeta is the metadata encoded in a scraper-renamed filename of the
// form TT-{platform}-{region}-{department}-{type}-{YYYY-MM-DD}.ext.
// Platform and exchange rate flow into standardized records; the department
// comes from the platform map rather than the filename token, which is
// free-form.
type FileMeta struct {
	Platform     string
	Region       string
	Department   string
	Type         string
	Date         string
	ExchangeRate float64
}

// ParseFileName extracts metadata from a TT-prefixed filename. Files not in
// the convention yield a zero meta with the default exchange rate; callers
// then fall back to in-file columns for platform.
func ParseFileName(path string, tables config.Tables) FileMeta {
	meta := FileMeta{ExchangeRate: tables.DefaultExchangeRate}

	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(name, "-")
	if len(parts) < 5 {
		return meta
	}

	meta.Platform = parts[1]
	meta.Region = parts[2]
	meta.Type = parts[4]
	if meta.Platform != "" {
		meta.Department = tables.DepartmentFor(meta.Platform)
	}
	// The date itself contains hyphens, so it spans the remaining parts.
	if len(parts) >= 8 {
		meta.Date = strings.Join(parts[5:8], "-")
	}
	meta.ExchangeRate = tables.ExchangeRateFor(meta.Region)
	return meta
}
