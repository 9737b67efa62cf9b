package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency defines how often a DCA purchase fires.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Valid checks if the frequency is a known value.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// ScheduleConfig is a validated DCA schedule specification. It is immutable
// after creation; use NewScheduleConfig or call Validate after decoding.
type ScheduleConfig struct {
	Pair             Pair            `json:"pair"`
	InvestmentAmount decimal.Decimal `json:"investment_amount"`
	Frequency        Frequency       `json:"frequency"`

	// DayOfWeek is required for weekly frequency. Pointer distinguishes
	// "unset" from Sunday.
	DayOfWeek *time.Weekday `json:"day_of_week,omitempty"`
	// DayOfMonth is required for monthly frequency, 1..31. Days beyond the
	// end of a month clamp to the month's last day.
	DayOfMonth int `json:"day_of_month,omitempty"`

	ExecutionHour   int `json:"execution_hour"`
	ExecutionMinute int `json:"execution_minute"`

	// MaxTotalInvestment caps cumulative invested amount (fees included).
	// Zero means unlimited.
	MaxTotalInvestment decimal.Decimal `json:"max_total_investment"`

	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	AutoStart bool `json:"auto_start"`
}

// Validate checks frequency-specific fields and value ranges. It is called
// at the decoding boundary so invalid configs never reach the engine.
func (c ScheduleConfig) Validate() error {
	if c.Pair.From == "" || c.Pair.To == "" {
		return fmt.Errorf("pair must be set")
	}
	if c.InvestmentAmount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("investment amount must be positive, got %s", c.InvestmentAmount.String())
	}
	if !c.Frequency.Valid() {
		return fmt.Errorf("unknown frequency %q", c.Frequency)
	}
	if c.Frequency == FrequencyWeekly && c.DayOfWeek == nil {
		return fmt.Errorf("day_of_week is required for weekly frequency")
	}
	if c.Frequency == FrequencyMonthly && (c.DayOfMonth < 1 || c.DayOfMonth > 31) {
		return fmt.Errorf("day_of_month must be 1..31 for monthly frequency, got %d", c.DayOfMonth)
	}
	if c.ExecutionHour < 0 || c.ExecutionHour > 23 {
		return fmt.Errorf("execution hour must be 0..23, got %d", c.ExecutionHour)
	}
	if c.ExecutionMinute < 0 || c.ExecutionMinute > 59 {
		return fmt.Errorf("execution minute must be 0..59, got %d", c.ExecutionMinute)
	}
	if !c.MaxTotalInvestment.IsZero() && c.MaxTotalInvestment.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("max total investment must be positive, got %s", c.MaxTotalInvestment.String())
	}
	if c.StartDate != nil && c.EndDate != nil && !c.StartDate.Before(*c.EndDate) {
		return fmt.Errorf("start date %s must be before end date %s",
			c.StartDate.Format(time.DateOnly), c.EndDate.Format(time.DateOnly))
	}
	return nil
}

// HasBudget reports whether a total investment cap is configured.
func (c ScheduleConfig) HasBudget() bool {
	return !c.MaxTotalInvestment.IsZero()
}

// NextExecutionTime computes the next due timestamp strictly after from.
// Pure and deterministic: identical inputs always yield identical output.
func (c ScheduleConfig) NextExecutionTime(from time.Time) time.Time {
	candidate := time.Date(from.Year(), from.Month(), from.Day(),
		c.ExecutionHour, c.ExecutionMinute, 0, 0, from.Location())

	switch c.Frequency {
	case FrequencyWeekly:
		daysUntil := (int(*c.DayOfWeek) - int(from.Weekday()) + 7) % 7
		if daysUntil == 0 && !candidate.After(from) {
			daysUntil = 7
		}
		return candidate.AddDate(0, 0, daysUntil)

	case FrequencyMonthly:
		year, month := from.Year(), from.Month()
		candidate = monthlyCandidate(year, month, c.DayOfMonth, c.ExecutionHour, c.ExecutionMinute, from.Location())
		if !candidate.After(from) {
			// recompute for next month with the same clamping rule,
			// so day 31 lands on Apr 30, Feb 28/29 and so on.
			month++
			if month > time.December {
				month = time.January
				year++
			}
			candidate = monthlyCandidate(year, month, c.DayOfMonth, c.ExecutionHour, c.ExecutionMinute, from.Location())
		}
		return candidate

	default: // daily
		if !candidate.After(from) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate
	}
}

// InWindow reports whether t falls inside the schedule's optional
// start/end date bounds. Bounds are compared at calendar-day granularity,
// both ends inclusive.
func (c ScheduleConfig) InWindow(t time.Time) bool {
	day := dateOnly(t)
	if c.StartDate != nil && day.Before(dateOnly(*c.StartDate)) {
		return false
	}
	if c.EndDate != nil && day.After(dateOnly(*c.EndDate)) {
		return false
	}
	return true
}

// DueOn reports whether a DCA purchase is due on the given calendar date.
// Backtests evaluate this per-day instead of NextExecutionTime because a
// replay must check every day deterministically regardless of time-of-day.
func (c ScheduleConfig) DueOn(date time.Time) bool {
	if !c.InWindow(date) {
		return false
	}

	switch c.Frequency {
	case FrequencyWeekly:
		return date.Weekday() == *c.DayOfWeek
	case FrequencyMonthly:
		return date.Day() == clampDay(c.DayOfMonth, date.Year(), date.Month())
	default:
		return true
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func monthlyCandidate(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	return time.Date(year, month, clampDay(day, year, month), hour, minute, 0, 0, loc)
}

func clampDay(day int, year int, month time.Month) int {
	if last := daysInMonth(year, month); day > last {
		return last
	}
	return day
}

func daysInMonth(year int, month time.Month) int {
	// day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
