package engine

import (
	"sort"
)

// =============================================================================
// PAY PERIOD - The unit of budgeting aggregation
// =============================================================================

// PayPeriod is the date range between two consecutive paychecks.
// Start is the pay date, End is inclusive, NextStart = End + 1 day and is
// the next pay date. A target date exactly on a boundary belongs to the
// period that starts on it (closed-open on the start side).
type PayPeriod struct {
	Start     Date
	End       Date
	NextStart Date
}

func (p PayPeriod) ID() PeriodID { return PeriodIDFor(p.Start) }

// Contains returns true if d falls within [Start, End].
func (p PayPeriod) Contains(d Date) bool {
	return d.OnOrAfter(p.Start) && d.OnOrBefore(p.End)
}

func (p PayPeriod) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// FREQUENCY
// =============================================================================

type Frequency string

const (
	FreqDaily       Frequency = "daily" // recurring definitions only, not a pay frequency
	FreqWeekly      Frequency = "weekly"
	FreqBiweekly    Frequency = "biweekly"
	FreqSemimonthly Frequency = "semimonthly"
	FreqMonthly     Frequency = "monthly"
)

// ValidPayFrequency reports whether f can anchor a pay schedule.
func ValidPayFrequency(f Frequency) bool {
	switch f {
	case FreqWeekly, FreqBiweekly, FreqSemimonthly, FreqMonthly:
		return true
	}
	return false
}

// ValidRecurringFrequency reports whether f can drive a recurring definition.
func ValidRecurringFrequency(f Frequency) bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqBiweekly, FreqMonthly:
		return true
	}
	return false
}

// NextOccurrence advances a due date by one frequency interval. Monthly
// advances clamp the day in short months rather than rolling over.
func NextOccurrence(f Frequency, from Date) Date {
	switch f {
	case FreqDaily:
		return from.AddDays(1)
	case FreqWeekly:
		return from.AddDays(7)
	case FreqBiweekly:
		return from.AddDays(14)
	default: // monthly
		next := NewDate(from.Year(), from.Month(), 1).AddMonths(1)
		return NewDate(next.Year(), next.Month(), ClampDay(from.Day(), next.Year(), next.Month()))
	}
}

// =============================================================================
// SCHEDULE - Pay-period calculator
// =============================================================================

// Schedule defines how pay periods recur: a frequency, an anchor pay date
// (any known pay date for weekly/biweekly/monthly), and for semimonthly the
// two day-of-month anchors.
type Schedule struct {
	Frequency       Frequency
	Anchor          Date
	SemimonthlyDays []int
}

// PeriodFor returns the pay period enclosing target. Anchors on days 29-31
// are clamped in short months, never rolled over.
func (s Schedule) PeriodFor(target Date) (PayPeriod, error) {
	switch s.Frequency {
	case FreqWeekly:
		return intervalPeriod(s.Anchor, target, 7), nil
	case FreqBiweekly:
		return intervalPeriod(s.Anchor, target, 14), nil
	case FreqSemimonthly:
		if len(s.SemimonthlyDays) != 2 {
			return PayPeriod{}, Validationf("semimonthly schedule requires exactly two pay days")
		}
		return semimonthlyPeriod(s.SemimonthlyDays, target), nil
	case FreqMonthly:
		return monthlyPeriod(s.Anchor.Day(), target), nil
	default:
		return PayPeriod{}, Validationf("invalid pay frequency: %s", s.Frequency)
	}
}

// intervalPeriod handles weekly/biweekly: whole-interval offset from the
// anchor via floor division, stepping back one interval when the computed
// start lands after target (happens for targets before the anchor).
func intervalPeriod(anchor, target Date, intervalDays int) PayPeriod {
	diff := DaysBetween(anchor, target)
	intervals := floorDiv(diff, intervalDays)

	start := anchor.AddDays(intervals * intervalDays)
	if start.After(target) {
		start = start.AddDays(-intervalDays)
	}

	next := start.AddDays(intervalDays)
	return PayPeriod{Start: start, End: next.AddDays(-1), NextStart: next}
}

// semimonthlyPeriod splits each month at two clamped day anchors. Three
// cases: before the first anchor (period began at the previous month's
// second anchor), between the anchors, or on/after the second anchor
// (period runs into the next month's first anchor).
func semimonthlyPeriod(days []int, target Date) PayPeriod {
	sorted := append([]int(nil), days...)
	sort.Ints(sorted)
	day1, day2 := sorted[0], sorted[1]

	year, month, dom := target.Year(), target.Month(), target.Day()
	d1 := ClampDay(day1, year, month)
	d2 := ClampDay(day2, year, month)

	switch {
	case dom < d1:
		prev := NewDate(year, month, 1).AddMonths(-1)
		prevD2 := ClampDay(day2, prev.Year(), prev.Month())
		start := NewDate(prev.Year(), prev.Month(), prevD2)
		next := NewDate(year, month, d1)
		return PayPeriod{Start: start, End: next.AddDays(-1), NextStart: next}

	case dom < d2:
		start := NewDate(year, month, d1)
		next := NewDate(year, month, d2)
		return PayPeriod{Start: start, End: next.AddDays(-1), NextStart: next}

	default:
		start := NewDate(year, month, d2)
		nextMonth := NewDate(year, month, 1).AddMonths(1)
		nextD1 := ClampDay(day1, nextMonth.Year(), nextMonth.Month())
		next := NewDate(nextMonth.Year(), nextMonth.Month(), nextD1)
		return PayPeriod{Start: start, End: next.AddDays(-1), NextStart: next}
	}
}

// monthlyPeriod is the two-case version of the semimonthly logic with a
// single anchor day.
func monthlyPeriod(anchorDay int, target Date) PayPeriod {
	year, month, dom := target.Year(), target.Month(), target.Day()
	day := ClampDay(anchorDay, year, month)

	if dom < day {
		prev := NewDate(year, month, 1).AddMonths(-1)
		prevDay := ClampDay(anchorDay, prev.Year(), prev.Month())
		start := NewDate(prev.Year(), prev.Month(), prevDay)
		next := NewDate(year, month, day)
		return PayPeriod{Start: start, End: next.AddDays(-1), NextStart: next}
	}

	start := NewDate(year, month, day)
	nextMonth := NewDate(year, month, 1).AddMonths(1)
	nextDay := ClampDay(anchorDay, nextMonth.Year(), nextMonth.Month())
	next := NewDate(nextMonth.Year(), nextMonth.Month(), nextDay)
	return PayPeriod{Start: start, End: next.AddDays(-1), NextStart: next}
}

// floorDiv rounds toward negative infinity, unlike Go's integer division.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// NextBillDue returns the next date a monthly bill with the given due day
// falls due, on or after today. The due day is clamped per month.
func NextBillDue(dueDay int, today Date) Date {
	year, month := today.Year(), today.Month()
	day := ClampDay(dueDay, year, month)
	if today.Day() <= day {
		return NewDate(year, month, day)
	}
	next := NewDate(year, month, 1).AddMonths(1)
	return NewDate(next.Year(), next.Month(), ClampDay(dueDay, next.Year(), next.Month()))
}

// LastBillDue returns the most recent date the bill fell due, on or before
// today. Used by the auto-mark-paid sweep.
func LastBillDue(dueDay int, today Date) Date {
	year, month := today.Year(), today.Month()
	day := ClampDay(dueDay, year, month)
	if today.Day() >= day {
		return NewDate(year, month, day)
	}
	prev := NewDate(year, month, 1).AddMonths(-1)
	return NewDate(prev.Year(), prev.Month(), ClampDay(dueDay, prev.Year(), prev.Month()))
}
