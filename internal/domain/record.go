package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ValueDigits and ElapsedDigits are the rounding precisions of output lines.
const (
	ValueDigits   = 4
	ElapsedDigits = 2
)

// OutputBands are the reflectance bands reported on every output line, in
// order.
func OutputBands() []string {
	return []string{"B2", "B3", "B4", "B5", "B6", "B7"}
}

// ErrorPrefix starts the single line of an error-terminated output file.
const ErrorPrefix = "Error:"

// Record is the zonal statistic of one feature on one composite date.
type Record struct {
	EventStart string
	EventEnd   string
	FeatureID  string
	Date       string
	Values     []float64
	Elapsed    float64
}

// NewRecord rounds values and elapsed seconds to their output precision.
func NewRecord(f Feature, date string, values []float64, elapsedSeconds float64) Record {
	return Record{
		EventStart: f.EventStart,
		EventEnd:   f.EventEnd,
		FeatureID:  f.ID,
		Date:       date,
		Values:     RoundValues(values, ValueDigits),
		Elapsed:    Round(elapsedSeconds, ElapsedDigits),
	}
}

// Line renders the record as one whitespace-separated output line without
// the trailing newline.
func (r Record) Line() string {
	vals := make([]string, len(r.Values))
	for i, v := range r.Values {
		vals[i] = formatFloat(v)
	}
	return fmt.Sprintf("%s %s %s %s [%s] %s",
		r.EventStart, r.EventEnd, r.FeatureID, r.Date,
		strings.Join(vals, ","), formatFloat(r.Elapsed))
}

// HeaderLine is the optional first line of an output file.
func HeaderLine(label, featureID string, images int) string {
	return fmt.Sprintf("%s: %s ImageNum: %d", label, featureID, images)
}

// ErrorLine renders a feature-level failure.
func ErrorLine(err error) string {
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	return ErrorPrefix + " " + msg
}

// ParseRecord parses a line produced by Record.Line.
func ParseRecord(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) != 6 {
		return Record{}, fmt.Errorf("expected 6 fields, got %d", len(fields))
	}
	vals := fields[4]
	if !strings.HasPrefix(vals, "[") || !strings.HasSuffix(vals, "]") {
		return Record{}, errors.New("values are not bracketed")
	}
	vals = strings.TrimSuffix(strings.TrimPrefix(vals, "["), "]")

	var values []float64
	if vals != "" {
		for _, s := range strings.Split(vals, ",") {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return Record{}, fmt.Errorf("value %q: %w", s, err)
			}
			values = append(values, v)
		}
	}
	elapsed, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return Record{}, fmt.Errorf("elapsed %q: %w", fields[5], err)
	}
	return Record{
		EventStart: fields[0],
		EventEnd:   fields[1],
		FeatureID:  fields[2],
		Date:       fields[3],
		Values:     values,
		Elapsed:    elapsed,
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
