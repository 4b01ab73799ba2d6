package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
	"github.com/gocarina/gocsv"
)

// EventRow is one row of the wildfire event catalog.
type EventRow struct {
	ID    string
	Start string
	End   string
	Line  int
}

// LoadEvents reads the event catalog CSV. A missing file, a missing column
// or a malformed date fails the whole load. Columns are checked against the
// header, so a catalog without rows still fails on a wrong header.
func LoadEvents(path string, s Schema) ([]EventRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open event catalog: %w", err)
	}

	header, err := gocsv.DefaultCSVReader(bytes.NewReader(data)).Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("event catalog %s: no header", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read event catalog %s: %w", path, err)
	}
	if err := checkColumns(header, s.IDField, s.StartField, s.EndField); err != nil {
		return nil, fmt.Errorf("event catalog %s: %w", path, err)
	}

	records, err := gocsv.CSVToMaps(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read event catalog %s: %w", path, err)
	}

	rows := make([]EventRow, 0, len(records))
	for i, rec := range records {
		// Header is line 1.
		line := i + 2
		start, end := rec[s.StartField], rec[s.EndField]
		if _, err := domain.ParseDate(start); err != nil {
			return nil, fmt.Errorf("line %d %s: %w", line, s.StartField, err)
		}
		if _, err := domain.ParseDate(end); err != nil {
			return nil, fmt.Errorf("line %d %s: %w", line, s.EndField, err)
		}
		rows = append(rows, EventRow{
			ID:    NormalizeID(rec[s.IDField]),
			Start: strings.TrimSpace(start),
			End:   strings.TrimSpace(end),
			Line:  line,
		})
	}
	return rows, nil
}

func checkColumns(header []string, names ...string) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var errs []error
	for _, name := range names {
		if !present[name] {
			errs = append(errs, fmt.Errorf("missing column %q", name))
		}
	}
	return errors.Join(errs...)
}

// NormalizeID renders integral numeric identifiers without a fractional part
// so "123", "123.0" and "123.000000" name the same feature.
func NormalizeID(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ".") {
		return s
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != math.Trunc(v) || math.Abs(v) > 1<<53 {
		return s
	}
	return strconv.FormatInt(int64(v), 10)
}
