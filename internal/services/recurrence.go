// Package services provides business logic and orchestration services.
//
// This file implements the recurrence calculator. Each billing period has its
// own strategy that turns an anchor date into the occurrence dates falling in
// a given month.

package services

import (
	"bilancio/internal/core"

	"github.com/shopspring/decimal"
)

// RecurrenceStrategy is the strategy interface for a billing period.
type RecurrenceStrategy interface {
	// Dates returns the occurrence dates inside month, ascending. Months
	// before the first occurrence yield no dates.
	Dates(anchor core.Date, month core.Month) []core.Date
	// PerMonth is the average number of occurrences in a month.
	PerMonth() Ratio
}

// Ratio is an exact fraction Num/Den.
type Ratio struct {
	Num int64
	Den int64
}

// MonthlyStrategy yields one occurrence per month on the anchor's day,
// clamped to the last day of the month.
type MonthlyStrategy struct{}

func (MonthlyStrategy) Dates(anchor core.Date, month core.Month) []core.Date {
	return []core.Date{month.Day(anchor.Day())}
}

func (MonthlyStrategy) PerMonth() Ratio { return Ratio{Num: 1, Den: 1} }

// IntervalStrategy yields anchor + k*Days for k >= 0.
type IntervalStrategy struct {
	Days    int
	PerYear int64
}

// Dates jumps straight to the first aligned date on or after the first day
// of month, so it never walks more than one interval outside the month.
func (s IntervalStrategy) Dates(anchor core.Date, month core.Month) []core.Date {
	if s.Days <= 0 {
		return nil
	}
	first, last := month.First(), month.Last()
	if last.Before(anchor) {
		return nil
	}

	k := 0
	if diff := first.DaysSince(anchor); diff > 0 {
		k = (diff + s.Days - 1) / s.Days
	}

	var dates []core.Date
	for d := anchor.AddDays(k * s.Days); !d.After(last); d = d.AddDays(s.Days) {
		dates = append(dates, d)
	}
	return dates
}

func (s IntervalStrategy) PerMonth() Ratio { return Ratio{Num: s.PerYear, Den: 12} }

// SemiAnnualStrategy occurs in the anchor's month of year and six months
// later, on the anchor's day clamped to the month length. Eligibility is by
// month of year, not by elapsed days.
type SemiAnnualStrategy struct{}

func (SemiAnnualStrategy) Dates(anchor core.Date, month core.Month) []core.Date {
	diff := monthIndex(month) - monthIndex(anchor.Month())
	if diff < 0 || diff%6 != 0 {
		return nil
	}
	return []core.Date{month.Day(anchor.Day())}
}

func (SemiAnnualStrategy) PerMonth() Ratio { return Ratio{Num: 2, Den: 12} }

func monthIndex(m core.Month) int {
	return m.Year*12 + int(m.Month) - 1
}

// recurrenceStrategies maps billing periods to their strategies.
var recurrenceStrategies = map[core.BillingPeriod]RecurrenceStrategy{
	core.Monthly:      MonthlyStrategy{},
	core.Weekly:       IntervalStrategy{Days: 7, PerYear: 52},
	core.BiWeekly:     IntervalStrategy{Days: 14, PerYear: 26},
	core.SemiAnnually: SemiAnnualStrategy{},
}

// StrategyFor returns the strategy for period, or false when the period is
// unknown.
func StrategyFor(period core.BillingPeriod) (RecurrenceStrategy, bool) {
	s, ok := recurrenceStrategies[period]
	return s, ok
}

// OccurrenceDates returns the dates period produces in month. Unknown periods
// produce none.
func OccurrenceDates(period core.BillingPeriod, anchor core.Date, month core.Month) []core.Date {
	s, ok := StrategyFor(period)
	if !ok {
		return nil
	}
	return s.Dates(anchor, month)
}

// OccurrenceCount returns len(OccurrenceDates(...)).
func OccurrenceCount(period core.BillingPeriod, anchor core.Date, month core.Month) int {
	return len(OccurrenceDates(period, anchor, month))
}

// AverageInstancesPerMonth is used when a template has no anchor date.
func AverageInstancesPerMonth(period core.BillingPeriod) Ratio {
	s, ok := StrategyFor(period)
	if !ok {
		return Ratio{Num: 0, Den: 1}
	}
	return s.PerMonth()
}

// ProratedMonthlyAmount returns the amount period adds up to in month. With an
// anchor it is base times the occurrence count; without one it is base times
// the monthly average, rounded half away from zero.
func ProratedMonthlyAmount(base int64, period core.BillingPeriod, anchor *core.Date, month core.Month) int64 {
	if anchor != nil && !anchor.IsZero() {
		return base * int64(OccurrenceCount(period, *anchor, month))
	}
	r := AverageInstancesPerMonth(period)
	if r.Den == 0 {
		return 0
	}
	return decimal.NewFromInt(base).
		Mul(decimal.NewFromInt(r.Num)).
		Div(decimal.NewFromInt(r.Den)).
		Round(0).
		IntPart()
}
