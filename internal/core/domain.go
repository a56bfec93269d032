package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	Monthly      BillingPeriod = "monthly"
	Weekly       BillingPeriod = "weekly"
	BiWeekly     BillingPeriod = "bi_weekly"
	SemiAnnually BillingPeriod = "semi_annually"
)

const (
	BillTemplate   TemplateKind = "bill"
	IncomeTemplate TemplateKind = "income"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

type (
	BillingPeriod string

	TemplateKind string

	// Date is a calendar date without a time zone component. It is always
	// stored at midnight UTC so day arithmetic never crosses a DST boundary.
	Date struct {
		time.Time
	}

	// Month identifies a calendar month (YYYY-MM).
	Month struct {
		Year  int
		Month time.Month
	}

	Money struct {
		Cents int64
	}

	// Template is a recurring bill or income definition.
	Template struct {
		ID              string        `json:"id"`
		Kind            TemplateKind  `json:"kind,omitempty"`
		Name            string        `json:"name"`
		Amount          Money         `json:"amount"`
		BillingPeriod   BillingPeriod `json:"billing_period"`
		DayOfMonth      int           `json:"day_of_month,omitempty"`
		StartDate       *Date         `json:"start_date,omitempty"`
		IsActive        bool          `json:"is_active"`
		Category        string        `json:"category,omitempty"`
		PaymentSourceID string        `json:"payment_source_id,omitempty"`
		CreatedAt       time.Time     `json:"created_at"`
		UpdatedAt       time.Time     `json:"updated_at"`
	}
)

// BillingPeriods lists every supported period in display order.
func BillingPeriods() []BillingPeriod {
	return []BillingPeriod{Monthly, Weekly, BiWeekly, SemiAnnually}
}

func (p BillingPeriod) IsValid() bool {
	switch p {
	case Monthly, Weekly, BiWeekly, SemiAnnually:
		return true
	default:
		return false
	}
}

func (k TemplateKind) IsValid() bool {
	return k == BillTemplate || k == IncomeTemplate
}

// ParseTemplateKind accepts both singular and plural forms ("bill", "bills").
func ParseTemplateKind(s string) (TemplateKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bill", "bills":
		return BillTemplate, nil
	case "income", "incomes":
		return IncomeTemplate, nil
	default:
		return "", InvalidInput("unknown template kind %q", s)
	}
}

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, InvalidInput("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// AddDays returns the date n calendar days later (earlier when n < 0).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// DaysSince returns the number of whole days from other to d.
func (d Date) DaysSince(other Date) int {
	return int((d.Unix() - other.Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }

func (d Date) After(other Date) bool { return d.Time.After(other.Time) }

// Month returns the calendar month containing d.
func (d Date) Month() Month {
	return Month{Year: d.Year(), Month: d.Time.Month()}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return InvalidInput("date cannot be zero")
	}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NewMonth builds a Month, normalizing out-of-range month numbers.
func NewMonth(year int, month time.Month) Month {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth parses a YYYY-MM string.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, strings.TrimSpace(s))
	if err != nil {
		return Month{}, InvalidInput("invalid month %q: expected YYYY-MM", s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

// First returns the first day of the month.
func (m Month) First() Date {
	return NewDate(m.Year, m.Month, 1)
}

// Last returns the last calendar day of the month.
func (m Month) Last() Date {
	return NewDate(m.Year, m.Month+1, 0)
}

// Days returns the number of days in the month.
func (m Month) Days() int {
	return m.Last().Day()
}

// Day returns the given day of the month, clamped to the month's last day.
func (m Month) Day(day int) Date {
	if day < 1 {
		day = 1
	}
	if last := m.Days(); day > last {
		day = last
	}
	return NewDate(m.Year, m.Month, day)
}

func (m Month) Contains(d Date) bool {
	return d.Year() == m.Year && d.Time.Month() == m.Month
}

func (m Month) Before(other Month) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

// AddMonths returns the month n months later (earlier when n < 0).
func (m Month) AddMonths(n int) Month {
	return NewMonth(m.Year, m.Month+time.Month(n))
}

func (m Month) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Month) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return InvalidAmount("amount must be greater than 0")
	}
	return nil
}

func (m Money) Add(other Money) Money { return Money{Cents: m.Cents + other.Cents} }

func (m Money) Sub(other Money) Money { return Money{Cents: m.Cents - other.Cents} }

// Amounts travel as plain integers of minor units.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Cents)
}

func (m *Money) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &m.Cents)
}

// Anchor returns the date the template's recurrence is computed from.
// Monthly templates carrying only a day of month get that day in January of
// year 1, which is enough for the monthly rule (it only reads the day).
func (t Template) Anchor() (Date, bool) {
	if t.BillingPeriod == Monthly && t.DayOfMonth > 0 {
		return NewDate(1, time.January, t.DayOfMonth), true
	}
	if t.StartDate != nil && !t.StartDate.IsZero() {
		return *t.StartDate, true
	}
	return Date{}, false
}

func (t Template) Validate() error {
	if !t.Kind.IsValid() {
		return InvalidInput("invalid template kind %q", t.Kind)
	}

	if len(strings.TrimSpace(t.Name)) == 0 {
		return InvalidInput("name cannot be empty")
	}
	if len(t.Name) > 200 {
		return InvalidInput("name too long (max 200 characters)")
	}

	if err := t.Amount.Validate(); err != nil {
		return err
	}

	if !t.BillingPeriod.IsValid() {
		return InvalidInput("invalid billing period %q", t.BillingPeriod)
	}

	switch t.BillingPeriod {
	case Monthly:
		if t.DayOfMonth == 0 && (t.StartDate == nil || t.StartDate.IsZero()) {
			return InvalidInput("monthly templates need a day of month or a start date")
		}
		if t.DayOfMonth < 0 || t.DayOfMonth > 31 {
			return InvalidInput("day of month must be between 1 and 31")
		}
	default:
		if t.StartDate == nil || t.StartDate.IsZero() {
			return InvalidInput("%s templates need a start date", t.BillingPeriod)
		}
	}

	return nil
}
