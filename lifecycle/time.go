package lifecycle

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Civil day the grid is tracked against
// =============================================================================

// DateLayout is the wire and storage format of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar day with no time-of-day or zone, e.g. "2025-03-10".
type Date string

// ParseDate validates s as YYYY-MM-DD and returns it as a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: want %s", s, DateLayout)
	}
	return Date(t.Format(DateLayout)), nil
}

// DateOf returns the civil date of t in t's location.
func DateOf(t time.Time) Date { return Date(t.Format(DateLayout)) }

// Valid reports whether d is a well-formed calendar day.
func (d Date) Valid() bool {
	_, err := time.Parse(DateLayout, string(d))
	return err == nil
}

func (d Date) String() string { return string(d) }

// =============================================================================
// CLOCK - Single read of "now" per request
// =============================================================================

// Clock supplies the current instant. Each Engine operation reads it exactly
// once at entry, and every timestamp the operation writes derives from that read.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC at microsecond precision, the
// finest resolution the stores persist.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// FixedClock always returns T. Tests advance it by assigning T.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

// Advance moves the fixed clock forward by d.
func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }
