package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// DateLayout is the calendar date format used by the event catalog, the
// composite labels and the output files.
const DateLayout = "2006-01-02"

// ErrMalformedDate is returned when an event date is not YYYY-MM-DD.
var ErrMalformedDate = errors.New("malformed date")

// Feature is one lake or river reach with the wildfire event window it is
// analysed around. Features are immutable once loaded.
type Feature struct {
	ID       string
	Geometry orb.Geometry

	// Area is the surface area attribute of area-type features (lakes).
	// HasArea is false for reach-type features.
	Area    float64
	HasArea bool

	// EventStart and EventEnd keep the catalog strings verbatim because they
	// are echoed into every output line.
	EventStart string
	EventEnd   string
}

// Event returns the parsed, unexpanded event window.
func (f Feature) Event() (TimeWindow, error) {
	start, err := ParseDate(f.EventStart)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("event start of feature %s: %w", f.ID, err)
	}
	end, err := ParseDate(f.EventEnd)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("event end of feature %s: %w", f.ID, err)
	}
	return TimeWindow{Start: start, End: end}, nil
}

// TimeWindow is an inclusive-start, exclusive-end range of UTC instants.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End).
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w TimeWindow) String() string {
	return w.Start.Format(DateLayout) + "/" + w.End.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD catalog date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, s)
	}
	return t, nil
}

// ExpandWindow widens an event window by marginMonths calendar months on each
// side. Month arithmetic clamps to the last day of the target month, so
// 2020-12-31 minus two months is 2020-10-31 and 2021-04-30 minus two months is
// 2021-02-28.
func ExpandWindow(event TimeWindow, marginMonths int) (TimeWindow, error) {
	if event.End.Before(event.Start) {
		return TimeWindow{}, fmt.Errorf("event window %s ends before it starts", event)
	}
	return TimeWindow{
		Start: addMonths(event.Start, -marginMonths),
		End:   addMonths(event.End, marginMonths),
	}, nil
}

// EventWindow parses a feature's event dates and expands them.
func EventWindow(f Feature, marginMonths int) (TimeWindow, error) {
	event, err := f.Event()
	if err != nil {
		return TimeWindow{}, err
	}
	return ExpandWindow(event, marginMonths)
}

// addMonths adds n calendar months without the day overflow of time.AddDate.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, t.Location()).AddDate(0, n, 0)
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}
