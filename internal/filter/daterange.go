package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/asad/blobmirror/internal/storage"
)

// timeLayouts are tried in order by ParseTime. Layouts without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
}

// ParseTime parses a user supplied timestamp.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, storage.Errorf(storage.KindInvalidConfig, "parse date",
		"%q is not a recognized timestamp (use RFC 3339 or YYYY-MM-DD)", s)
}

// DateRange is an inclusive range of last-modified times. A zero bound is open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange parses optional start and end strings. Empty strings leave the bound open.
func NewDateRange(start, end string) (DateRange, error) {
	var r DateRange
	var err error
	if start != "" {
		if r.Start, err = ParseTime(start); err != nil {
			return DateRange{}, err
		}
	}
	if end != "" {
		if r.End, err = ParseTime(end); err != nil {
			return DateRange{}, err
		}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.Start.After(r.End) {
		return DateRange{}, storage.Errorf(storage.KindInvalidConfig, "parse date range",
			"start date %s is after end date %s", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	return r, nil
}

// Contains reports whether t lies within the range, bounds included.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// IsSet reports whether either bound is present.
func (r DateRange) IsSet() bool {
	return !r.Start.IsZero() || !r.End.IsZero()
}

func (r DateRange) String() string {
	format := func(t time.Time) string {
		if t.IsZero() {
			return "*"
		}
		return t.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("[%s, %s]", format(r.Start), format(r.End))
}
