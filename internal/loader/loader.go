// Package loader reads raw CSV and Excel exports into the in-memory table
// form the pipeline consumes. Source files arrive from several operational
// systems with no encoding or delimiter discipline, so reading is
// best-effort: encodings are tried in a fixed order and the delimiter is
// sniffed from the header line.
package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"agentcli/internal/tabular"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Load reads a file into a Table, dispatching on extension. Unsupported
// extensions and unreadable content return an error; callers treat that as
// "this source contributed nothing" rather than a fatal condition.
func Load(path string) (*tabular.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt", ".tsv":
		return loadCSV(path)
	case ".xlsx", ".xls":
		return loadExcel(path)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}
}

// loadCSV reads a delimited text file, trying UTF-8 first and falling back
// to GBK and Windows-1252, the encodings the source systems actually emit.
func loadCSV(path string) (*tabular.Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	decoded, err := decodeText(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}

	reader := csv.NewReader(strings.NewReader(decoded))
	reader.Comma = sniffDelimiter(decoded)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		records = append(records, record)
	}

	return fromRecords(records), nil
}

// loadExcel reads the first sheet of a workbook.
func loadExcel(path string) (*tabular.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets: %s", filepath.Base(path))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	return fromRecords(rows), nil
}

// decodeText returns raw as UTF-8, converting from GBK or Windows-1252 when
// the bytes are not already valid UTF-8.
func decodeText(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	for _, enc := range []encoding.Encoding{simplifiedchinese.GBK, charmap.Windows1252} {
		decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
		if err == nil && utf8.Valid(decoded) {
			return string(decoded), nil
		}
	}
	return "", fmt.Errorf("no supported encoding matched")
}

// sniffDelimiter picks the delimiter with the most occurrences in the first
// line; comma wins ties.
func sniffDelimiter(content string) rune {
	line := content
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	best, bestCount := ',', strings.Count(line, ",")
	for _, cand := range []rune{'\t', ';'} {
		if n := strings.Count(line, string(cand)); n > bestCount {
			best, bestCount = cand, n
		}
	}
	return best
}

// fromRecords builds a Table from raw string records: first row is the
// header, duplicate header names are consolidated row-wise by first
// non-empty value, short rows pad with nil.
func fromRecords(records [][]string) *tabular.Table {
	if len(records) == 0 {
		return &tabular.Table{}
	}

	headerRow := records[0]
	headers := make([]string, 0, len(headerRow))
	// positions of every column carrying a given header name, in order
	positions := make(map[string][]int, len(headerRow))
	for i, h := range headerRow {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, seen := positions[h]; !seen {
			headers = append(headers, h)
		}
		positions[h] = append(positions[h], i)
	}

	table := &tabular.Table{Headers: headers}
	for _, record := range records[1:] {
		row := make(tabular.Row, len(headers))
		empty := true
		for _, h := range headers {
			var value tabular.Cell
			for _, pos := range positions[h] {
				if pos < len(record) && strings.TrimSpace(record[pos]) != "" {
					value = record[pos]
					break
				}
			}
			row[h] = value
			if value != nil {
				empty = false
			}
		}
		if !empty {
			table.Rows = append(table.Rows, row)
		}
	}
	return table
}
