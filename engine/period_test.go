package engine_test

import (
	"testing"
	"time"

	"github.com/keel/budget-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) engine.Date {
	return engine.NewDate(year, month, day)
}

func weeklySchedule(anchor engine.Date) engine.Schedule {
	return engine.Schedule{Frequency: engine.FreqWeekly, Anchor: anchor}
}

func biweeklySchedule(anchor engine.Date) engine.Schedule {
	return engine.Schedule{Frequency: engine.FreqBiweekly, Anchor: anchor}
}

func mustPeriod(t *testing.T, s engine.Schedule, target engine.Date) engine.PayPeriod {
	t.Helper()
	p, err := s.PeriodFor(target)
	if err != nil {
		t.Fatalf("PeriodFor(%s) failed: %v", target, err)
	}
	return p
}

// =============================================================================
// DAY CLAMPING
// =============================================================================

func TestClampDay_ShortMonths(t *testing.T) {
	cases := []struct {
		day   int
		year  int
		month time.Month
		want  int
	}{
		{31, 2025, time.April, 30},
		{31, 2025, time.January, 31},
		{30, 2025, time.February, 28},
		{29, 2024, time.February, 29}, // leap year
		{29, 2025, time.February, 28},
		{15, 2025, time.February, 15},
		{1, 2025, time.December, 1},
	}

	for _, c := range cases {
		got := engine.ClampDay(c.day, c.year, c.month)
		if got != c.want {
			t.Errorf("ClampDay(%d, %d, %v) = %d, want %d", c.day, c.year, c.month, got, c.want)
		}
	}
}

func TestDaysInMonth(t *testing.T) {
	if got := engine.DaysInMonth(2024, time.February); got != 29 {
		t.Errorf("Feb 2024 has %d days, want 29", got)
	}
	if got := engine.DaysInMonth(2025, time.February); got != 28 {
		t.Errorf("Feb 2025 has %d days, want 28", got)
	}
	if got := engine.DaysInMonth(2025, time.December); got != 31 {
		t.Errorf("Dec 2025 has %d days, want 31", got)
	}
}

// =============================================================================
// BIWEEKLY PERIODS
// =============================================================================

func TestBiweekly_TargetMidPeriod(t *testing.T) {
	// GIVEN: biweekly anchor on 2025-01-03
	// WHEN: resolving the period for 2025-01-20
	// THEN: the period runs 2025-01-17 .. 2025-01-30, next pay 2025-01-31

	s := biweeklySchedule(date(2025, time.January, 3))
	p := mustPeriod(t, s, date(2025, time.January, 20))

	if !p.Start.Equal(date(2025, time.January, 17)) {
		t.Errorf("start = %s, want 2025-01-17", p.Start)
	}
	if !p.End.Equal(date(2025, time.January, 30)) {
		t.Errorf("end = %s, want 2025-01-30", p.End)
	}
	if !p.NextStart.Equal(date(2025, time.January, 31)) {
		t.Errorf("next start = %s, want 2025-01-31", p.NextStart)
	}
}

func TestBiweekly_TargetOnPayDate(t *testing.T) {
	// A pay date starts its own period.
	s := biweeklySchedule(date(2025, time.January, 3))
	p := mustPeriod(t, s, date(2025, time.January, 17))

	if !p.Start.Equal(date(2025, time.January, 17)) {
		t.Errorf("start = %s, want 2025-01-17", p.Start)
	}
}

func TestBiweekly_TargetBeforeAnchor(t *testing.T) {
	// GIVEN: a target earlier than the anchor
	// THEN: the schedule extends backwards and still brackets the target

	s := biweeklySchedule(date(2025, time.June, 6))
	p := mustPeriod(t, s, date(2025, time.January, 20))

	if !p.Contains(date(2025, time.January, 20)) {
		t.Errorf("period %s does not contain target", p)
	}
	if engine.DaysBetween(p.Start, p.NextStart) != 14 {
		t.Errorf("period length = %d days, want 14", engine.DaysBetween(p.Start, p.NextStart))
	}
}

func TestWeekly_PeriodLength(t *testing.T) {
	s := weeklySchedule(date(2025, time.March, 7))
	p := mustPeriod(t, s, date(2025, time.March, 20))

	if engine.DaysBetween(p.Start, p.NextStart) != 7 {
		t.Errorf("weekly period length = %d days, want 7", engine.DaysBetween(p.Start, p.NextStart))
	}
	if !p.End.Equal(p.NextStart.AddDays(-1)) {
		t.Errorf("end %s is not the day before next start %s", p.End, p.NextStart)
	}
}

func TestBiweekly_PeriodsAreContiguous(t *testing.T) {
	// Walking day by day across several periods must never leave a gap
	// or overlap: each day belongs to exactly the period that brackets it,
	// and consecutive periods meet at NextStart.

	s := biweeklySchedule(date(2025, time.January, 3))
	prev := mustPeriod(t, s, date(2025, time.January, 3))

	for d := date(2025, time.January, 4); d.Before(date(2025, time.March, 1)); d = d.AddDays(1) {
		p := mustPeriod(t, s, d)
		if !p.Contains(d) {
			t.Fatalf("period %s does not contain %s", p, d)
		}
		if !p.Start.Equal(prev.Start) && !p.Start.Equal(prev.NextStart) {
			t.Fatalf("gap or overlap at %s: prev %s, next %s", d, prev, p)
		}
		prev = p
	}
}

// =============================================================================
// SEMIMONTHLY PERIODS
// =============================================================================

func semimonthly(days ...int) engine.Schedule {
	return engine.Schedule{
		Frequency:       engine.FreqSemimonthly,
		Anchor:          date(2025, time.January, 1),
		SemimonthlyDays: days,
	}
}

func TestSemimonthly_BetweenPayDays(t *testing.T) {
	// GIVEN: pay days on the 1st and 15th
	// WHEN: resolving the 20th
	// THEN: period is 15th .. end of month, next pay the 1st

	p := mustPeriod(t, semimonthly(1, 15), date(2025, time.March, 20))

	if !p.Start.Equal(date(2025, time.March, 15)) {
		t.Errorf("start = %s, want 2025-03-15", p.Start)
	}
	if !p.End.Equal(date(2025, time.March, 31)) {
		t.Errorf("end = %s, want 2025-03-31", p.End)
	}
	if !p.NextStart.Equal(date(2025, time.April, 1)) {
		t.Errorf("next start = %s, want 2025-04-01", p.NextStart)
	}
}

func TestSemimonthly_BeforeFirstPayDay(t *testing.T) {
	// GIVEN: pay days on the 5th and 20th
	// WHEN: resolving the 3rd
	// THEN: period started on the previous month's 20th

	p := mustPeriod(t, semimonthly(5, 20), date(2025, time.March, 3))

	if !p.Start.Equal(date(2025, time.February, 20)) {
		t.Errorf("start = %s, want 2025-02-20", p.Start)
	}
	if !p.NextStart.Equal(date(2025, time.March, 5)) {
		t.Errorf("next start = %s, want 2025-03-05", p.NextStart)
	}
}

func TestSemimonthly_ClampsToShortMonth(t *testing.T) {
	// GIVEN: pay days on the 15th and 31st
	// WHEN: resolving February 20th
	// THEN: the second pay day clamps to February 28th

	p := mustPeriod(t, semimonthly(15, 31), date(2025, time.February, 20))

	if !p.Start.Equal(date(2025, time.February, 15)) {
		t.Errorf("start = %s, want 2025-02-15", p.Start)
	}
	if !p.NextStart.Equal(date(2025, time.February, 28)) {
		t.Errorf("next start = %s, want 2025-02-28 (clamped)", p.NextStart)
	}
}

func TestSemimonthly_RequiresTwoDays(t *testing.T) {
	s := semimonthly(15)
	if _, err := s.PeriodFor(date(2025, time.March, 1)); err == nil {
		t.Error("expected error for single semimonthly day")
	}
}

// =============================================================================
// MONTHLY PERIODS
// =============================================================================

func TestMonthly_AnchorDayClamping(t *testing.T) {
	// GIVEN: monthly pay anchored on January 31st
	// WHEN: resolving a date in February
	// THEN: the pay day clamps to the last day of February

	s := engine.Schedule{Frequency: engine.FreqMonthly, Anchor: date(2025, time.January, 31)}
	p := mustPeriod(t, s, date(2025, time.February, 10))

	if !p.Start.Equal(date(2025, time.January, 31)) {
		t.Errorf("start = %s, want 2025-01-31", p.Start)
	}
	if !p.NextStart.Equal(date(2025, time.February, 28)) {
		t.Errorf("next start = %s, want 2025-02-28 (clamped)", p.NextStart)
	}
}

func TestMonthly_BeforePayDay(t *testing.T) {
	// GIVEN: monthly pay on the 15th
	// WHEN: resolving the 10th
	// THEN: period started on the previous month's 15th

	s := engine.Schedule{Frequency: engine.FreqMonthly, Anchor: date(2025, time.January, 15)}
	p := mustPeriod(t, s, date(2025, time.March, 10))

	if !p.Start.Equal(date(2025, time.February, 15)) {
		t.Errorf("start = %s, want 2025-02-15", p.Start)
	}
	if !p.NextStart.Equal(date(2025, time.March, 15)) {
		t.Errorf("next start = %s, want 2025-03-15", p.NextStart)
	}
}

// =============================================================================
// PERIOD IDS AND BILL DUE DATES
// =============================================================================

func TestPeriodID_IsStartDate(t *testing.T) {
	// The same target date must always map to the same period ID, making
	// lazy period creation idempotent.
	s := biweeklySchedule(date(2025, time.January, 3))
	p1 := mustPeriod(t, s, date(2025, time.January, 20))
	p2 := mustPeriod(t, s, date(2025, time.January, 25))

	if p1.ID() != p2.ID() {
		t.Errorf("IDs differ for same period: %s vs %s", p1.ID(), p2.ID())
	}
	if string(p1.ID()) != "2025-01-17" {
		t.Errorf("ID = %s, want 2025-01-17", p1.ID())
	}
}

func TestNextBillDue(t *testing.T) {
	// Due day later this month.
	due := engine.NextBillDue(25, date(2025, time.March, 10))
	if !due.Equal(date(2025, time.March, 25)) {
		t.Errorf("due = %s, want 2025-03-25", due)
	}

	// Due day already passed: rolls into next month.
	due = engine.NextBillDue(5, date(2025, time.March, 10))
	if !due.Equal(date(2025, time.April, 5)) {
		t.Errorf("due = %s, want 2025-04-05", due)
	}

	// Due day today counts as due today.
	due = engine.NextBillDue(10, date(2025, time.March, 10))
	if !due.Equal(date(2025, time.March, 10)) {
		t.Errorf("due = %s, want 2025-03-10", due)
	}

	// Clamped in short months.
	due = engine.NextBillDue(31, date(2025, time.February, 20))
	if !due.Equal(date(2025, time.February, 28)) {
		t.Errorf("due = %s, want 2025-02-28 (clamped)", due)
	}
}

func TestNextOccurrence(t *testing.T) {
	cases := []struct {
		freq engine.Frequency
		from engine.Date
		want engine.Date
	}{
		{engine.FreqDaily, date(2025, time.March, 10), date(2025, time.March, 11)},
		{engine.FreqWeekly, date(2025, time.March, 10), date(2025, time.March, 17)},
		{engine.FreqBiweekly, date(2025, time.March, 10), date(2025, time.March, 24)},
		{engine.FreqMonthly, date(2025, time.January, 31), date(2025, time.February, 28)},
	}

	for _, c := range cases {
		got := engine.NextOccurrence(c.freq, c.from)
		if !got.Equal(c.want) {
			t.Errorf("NextOccurrence(%s, %s) = %s, want %s", c.freq, c.from, got, c.want)
		}
	}
}
