package repository

import "time"

// Period is a trailing window of served data.
type Period string

const (
	Period1M Period = "1M"
	Period3M Period = "3M"
	Period6M Period = "6M"
	Period1Y Period = "1Y"
	Period2Y Period = "2Y"
)

var periodDays = map[Period]int{
	Period1M: 30,
	Period3M: 90,
	Period6M: 180,
	Period1Y: 365,
	Period2Y: 730,
}

// IsValidPeriod returns true if p is a supported period.
func IsValidPeriod(p Period) bool {
	_, ok := periodDays[p]
	return ok
}

// DefaultPeriod returns the default period.
func DefaultPeriod() Period { return Period6M }

// NormalizePeriod converts raw string to a valid period (or default).
func NormalizePeriod(s string) Period {
	if s == "" {
		return DefaultPeriod()
	}
	p := Period(s)
	if IsValidPeriod(p) {
		return p
	}
	return DefaultPeriod()
}

// Days is the window length in calendar days.
func (p Period) Days() int { return periodDays[p] }

// Since returns the first date included in the window ending at latest.
func (p Period) Since(latest time.Time) time.Time {
	return latest.AddDate(0, 0, -p.Days())
}
