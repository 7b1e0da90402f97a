package classify

import (
	"log/slog"
	"time"

	"agentcli/internal/tabular"
	"agentcli/internal/textutil"
)

// Candidate is one loaded file competing to represent a kind.
type Candidate struct {
	Path  string
	Table *tabular.Table
}

// score ranks a candidate by date coverage first, recency second, row count
// last. Comparison is lexicographic over the three fields.
type score struct {
	spanDays int
	maxDate  string
	rows     int
}

func (s score) better(other score) bool {
	if s.spanDays != other.spanDays {
		return s.spanDays > other.spanDays
	}
	if s.maxDate != other.maxDate {
		return s.maxDate > other.maxDate
	}
	return s.rows > other.rows
}

// SelectBest picks the single candidate with the widest date span, breaking
// ties by most recent date then by row count. The scraper re-downloads the
// retention and first-pay LTV exports daily with overlapping windows, so
// only the richest file of each such kind should feed the pipeline.
func SelectBest(kind Kind, candidates []Candidate, dateAliases []string, logger *slog.Logger) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}

	best := candidates[0]
	bestScore := scoreCandidate(candidates[0], dateAliases)
	for _, cand := range candidates[1:] {
		if s := scoreCandidate(cand, dateAliases); s.better(bestScore) {
			best, bestScore = cand, s
		}
	}

	logger.Info("selected best file among duplicates",
		slog.String("kind", string(kind)),
		slog.Int("candidates", len(candidates)),
		slog.String("path", best.Path),
		slog.Int("span_days", bestScore.spanDays),
		slog.String("max_date", bestScore.maxDate))
	return best, true
}

func scoreCandidate(c Candidate, dateAliases []string) score {
	s := score{rows: len(c.Table.Rows)}

	dateCol := tabular.PickColumn(c.Table.Headers, dateAliases)
	if dateCol == "" {
		return s
	}
	minDate := ""
	for _, row := range c.Table.Rows {
		if d, ok := textutil.NormalizeDate(tabular.String(row[dateCol])); ok {
			if minDate == "" || d < minDate {
				minDate = d
			}
			if d > s.maxDate {
				s.maxDate = d
			}
		}
	}
	// Span is the calendar distance between the oldest and newest dated
	// row: a sparse file covering a wide window still outranks a dense one
	// covering a narrow window.
	if minDate != "" {
		from, err1 := time.Parse("2006-01-02", minDate)
		to, err2 := time.Parse("2006-01-02", s.maxDate)
		if err1 == nil && err2 == nil {
			s.spanDays = int(to.Sub(from).Hours() / 24)
		}
	}
	return s
}
