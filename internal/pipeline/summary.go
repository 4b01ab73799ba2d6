package pipeline

import (
	"sort"
	"time"

	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
)

// Summary counts the outcomes of one run.
type Summary struct {
	Total    int
	ByStatus map[domain.Status]int
	Records  int
	Failed   []string
	Duration time.Duration
}

func newSummary(total int) Summary {
	return Summary{Total: total, ByStatus: make(map[domain.Status]int)}
}

func (s *Summary) add(o domain.Outcome) {
	s.ByStatus[o.Status]++
	s.Records += o.Records
	if o.Status == domain.StatusFailed {
		s.Failed = append(s.Failed, o.FeatureID)
	}
}

// Count returns the number of features that ended with status.
func (s Summary) Count(status domain.Status) int { return s.ByStatus[status] }

// Processed is the number of features that finished a job, whatever the outcome.
func (s Summary) Processed() int {
	n := 0
	for _, c := range s.ByStatus {
		n += c
	}
	return n
}

// LogAttrs renders the summary as slog key/value pairs.
func (s Summary) LogAttrs() []any {
	sort.Strings(s.Failed)
	attrs := []any{
		"total", s.Total,
		"processed", s.Processed(),
		"records", s.Records,
		"duration", s.Duration.Round(time.Millisecond).String(),
	}
	for _, st := range []domain.Status{
		domain.StatusDone, domain.StatusSkipped, domain.StatusEmpty, domain.StatusIneligible,
		domain.StatusFailed, domain.StatusRetryable, domain.StatusLocalError,
		domain.StatusClaimed, domain.StatusCancelled,
	} {
		if n := s.ByStatus[st]; n > 0 {
			attrs = append(attrs, string(st), n)
		}
	}
	if len(s.Failed) > 0 {
		attrs = append(attrs, "failed_ids", s.Failed)
	}
	return attrs
}
