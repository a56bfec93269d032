package services

import (
	"bilancio/internal/core"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func month(t *testing.T, s string) core.Month {
	t.Helper()
	m, err := core.ParseMonth(s)
	if err != nil {
		t.Fatalf("ParseMonth(%q): %v", s, err)
	}
	return m
}

func date(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func dateStrings(dates []core.Date) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.String())
	}
	return out
}

func TestOccurrenceDates(t *testing.T) {
	tests := []struct {
		name   string
		period core.BillingPeriod
		anchor string
		month  string
		want   []string
	}{
		{
			name:   "monthly day 31 clamps to february",
			period: core.Monthly,
			anchor: "2025-01-31",
			month:  "2025-02",
			want:   []string{"2025-02-28"},
		},
		{
			name:   "monthly day 31 clamps to leap february",
			period: core.Monthly,
			anchor: "2024-01-31",
			month:  "2024-02",
			want:   []string{"2024-02-29"},
		},
		{
			name:   "bi-weekly january has three",
			period: core.BiWeekly,
			anchor: "2025-01-03",
			month:  "2025-01",
			want:   []string{"2025-01-03", "2025-01-17", "2025-01-31"},
		},
		{
			name:   "bi-weekly february has two",
			period: core.BiWeekly,
			anchor: "2025-01-03",
			month:  "2025-02",
			want:   []string{"2025-02-14", "2025-02-28"},
		},
		{
			name:   "bi-weekly december",
			period: core.BiWeekly,
			anchor: "2025-01-03",
			month:  "2025-12",
			want:   []string{"2025-12-05", "2025-12-19"},
		},
		{
			name:   "weekly january",
			period: core.Weekly,
			anchor: "2025-01-06",
			month:  "2025-01",
			want:   []string{"2025-01-06", "2025-01-13", "2025-01-20", "2025-01-27"},
		},
		{
			name:   "weekly february",
			period: core.Weekly,
			anchor: "2025-01-06",
			month:  "2025-02",
			want:   []string{"2025-02-03", "2025-02-10", "2025-02-17", "2025-02-24"},
		},
		{
			name:   "weekly five in a month",
			period: core.Weekly,
			anchor: "2025-01-06",
			month:  "2025-03",
			want:   []string{"2025-03-03", "2025-03-10", "2025-03-17", "2025-03-24", "2025-03-31"},
		},
		{
			name:   "semi-annual anchor month",
			period: core.SemiAnnually,
			anchor: "2025-01-15",
			month:  "2025-01",
			want:   []string{"2025-01-15"},
		},
		{
			name:   "semi-annual six months later",
			period: core.SemiAnnually,
			anchor: "2025-01-15",
			month:  "2025-07",
			want:   []string{"2025-07-15"},
		},
		{
			name:   "semi-annual off month",
			period: core.SemiAnnually,
			anchor: "2025-01-15",
			month:  "2025-03",
			want:   []string{},
		},
		{
			name:   "semi-annual following year",
			period: core.SemiAnnually,
			anchor: "2025-01-15",
			month:  "2026-01",
			want:   []string{"2026-01-15"},
		},
		{
			name:   "semi-annual day clamped",
			period: core.SemiAnnually,
			anchor: "2024-08-31",
			month:  "2025-02",
			want:   []string{"2025-02-28"},
		},
		{
			name:   "semi-annual before anchor year-month",
			period: core.SemiAnnually,
			anchor: "2025-07-10",
			month:  "2025-01",
			want:   []string{},
		},
		{
			name:   "unknown period",
			period: "yearly",
			anchor: "2025-01-01",
			month:  "2025-01",
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OccurrenceDates(tt.period, date(t, tt.anchor), month(t, tt.month))
			assert.Equal(t, tt.want, dateStrings(got))
			assert.Equal(t, len(tt.want), OccurrenceCount(tt.period, date(t, tt.anchor), month(t, tt.month)))
		})
	}
}

func TestOccurrenceDatesBeforeAnchor(t *testing.T) {
	anchors := []string{"2025-01-03", "2025-03-31", "2024-02-29", "2025-12-01"}
	for _, period := range []core.BillingPeriod{core.Weekly, core.BiWeekly, core.SemiAnnually} {
		for _, a := range anchors {
			anchor := date(t, a)
			for back := 1; back <= 24; back++ {
				m := anchor.Month().AddMonths(-back)
				if n := OccurrenceCount(period, anchor, m); n != 0 {
					t.Errorf("%s anchored %s: count(%s) = %d, want 0", period, a, m, n)
				}
				if d := OccurrenceDates(period, anchor, m); len(d) != 0 {
					t.Errorf("%s anchored %s: dates(%s) = %v, want none", period, a, m, dateStrings(d))
				}
			}
		}
	}
}

func TestOccurrenceDatesStayInMonth(t *testing.T) {
	anchor := date(t, "2024-02-29")
	start := core.NewMonth(2024, time.February)
	for _, period := range core.BillingPeriods() {
		for i := 0; i < 36; i++ {
			m := start.AddMonths(i)
			dates := OccurrenceDates(period, anchor, m)
			for j, d := range dates {
				if !m.Contains(d) {
					t.Fatalf("%s: %s not in %s", period, d, m)
				}
				if j > 0 && !dates[j-1].Before(d) {
					t.Fatalf("%s: dates not ascending in %s: %v", period, m, dateStrings(dates))
				}
			}
		}
	}
}

func TestAverageInstancesPerMonth(t *testing.T) {
	tests := []struct {
		period core.BillingPeriod
		want   Ratio
	}{
		{core.Monthly, Ratio{1, 1}},
		{core.BiWeekly, Ratio{26, 12}},
		{core.Weekly, Ratio{52, 12}},
		{core.SemiAnnually, Ratio{2, 12}},
	}
	for _, tt := range tests {
		if got := AverageInstancesPerMonth(tt.period); got != tt.want {
			t.Errorf("AverageInstancesPerMonth(%s) = %v, want %v", tt.period, got, tt.want)
		}
	}
}

func TestProratedMonthlyAmount(t *testing.T) {
	anchor := date(t, "2025-01-03")

	tests := []struct {
		name   string
		base   int64
		period core.BillingPeriod
		anchor *core.Date
		month  string
		want   int64
	}{
		{"bi-weekly anchored", 10000, core.BiWeekly, &anchor, "2025-01", 30000},
		{"bi-weekly without anchor", 10000, core.BiWeekly, nil, "2025-01", 21667},
		{"weekly without anchor", 10000, core.Weekly, nil, "2025-01", 43333},
		{"semi-annual without anchor", 10000, core.SemiAnnually, nil, "2025-01", 1667},
		{"half rounds away from zero", 3, core.SemiAnnually, nil, "2025-01", 1},
		{"before anchor", 10000, core.BiWeekly, &anchor, "2024-12", 0},
		{"monthly", 5000, core.Monthly, nil, "2025-01", 5000},
		{"unknown period", 5000, "yearly", nil, "2025-01", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProratedMonthlyAmount(tt.base, tt.period, tt.anchor, month(t, tt.month))
			assert.Equal(t, tt.want, got)
		})
	}
}
