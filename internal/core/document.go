package core

import (
	"encoding/json"
	"time"
)

// DocumentSchemaVersion is written into every month document.
const DocumentSchemaVersion = 1

type (
	// Closure records how an occurrence was settled. An occurrence with a nil
	// Closure is open.
	Closure struct {
		Date            Date
		PaymentSourceID string
	}

	Payment struct {
		Amount Money `json:"amount"`
		Date   Date  `json:"date"`
	}

	// Occurrence is a single expected payment or receipt inside an instance.
	Occurrence struct {
		ID             string
		Sequence       int
		ExpectedDate   Date
		ExpectedAmount Money
		Closure        *Closure
		Notes          string
		IsAdhoc        bool
		Payments       []Payment
	}

	// Instance is the month-specific materialization of a template (or an
	// ad-hoc entry when TemplateID is nil).
	Instance struct {
		ID             string       `json:"id"`
		TemplateID     *string      `json:"template_id"`
		Name           string       `json:"name"`
		ExpectedAmount Money        `json:"expected_amount"`
		Occurrences    []Occurrence `json:"occurrences"`
		IsDefault      bool         `json:"is_default"`
		IsAdhoc        bool         `json:"is_adhoc"`

		// Month is the month the instance belongs to; it is bound from the
		// owning document and not persisted on the instance itself.
		Month Month `json:"-"`
	}

	// Expense is a free-form spending entry recorded against a month.
	Expense struct {
		ID              string `json:"id"`
		Date            Date   `json:"date"`
		Description     string `json:"description"`
		Amount          Money  `json:"amount"`
		Category        string `json:"category,omitempty"`
		PaymentSourceID string `json:"payment_source_id,omitempty"`
	}

	// MonthlyDocument holds everything materialized for one calendar month.
	MonthlyDocument struct {
		SchemaVersion int              `json:"schema_version"`
		Month         Month            `json:"month"`
		Bills         []Instance       `json:"bills"`
		Incomes       []Instance       `json:"incomes"`
		Expenses      []Expense        `json:"expenses"`
		BankBalances  map[string]Money `json:"bank_balances,omitempty"`
		CreatedAt     time.Time        `json:"created_at"`
		UpdatedAt     time.Time        `json:"updated_at"`
	}
)

type occurrenceJSON struct {
	ID              string    `json:"id"`
	Sequence        int       `json:"sequence"`
	ExpectedDate    Date      `json:"expected_date"`
	ExpectedAmount  Money     `json:"expected_amount"`
	IsClosed        bool      `json:"is_closed"`
	ClosedDate      *Date     `json:"closed_date,omitempty"`
	PaymentSourceID string    `json:"payment_source_id,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	IsAdhoc         bool      `json:"is_adhoc"`
	Payments        []Payment `json:"payments,omitempty"`
}

func (o *Occurrence) IsClosed() bool {
	return o.Closure != nil
}

// Paid returns the sum of recorded payments.
func (o *Occurrence) Paid() Money {
	var total Money
	for _, p := range o.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

func (o Occurrence) MarshalJSON() ([]byte, error) {
	w := occurrenceJSON{
		ID:             o.ID,
		Sequence:       o.Sequence,
		ExpectedDate:   o.ExpectedDate,
		ExpectedAmount: o.ExpectedAmount,
		Notes:          o.Notes,
		IsAdhoc:        o.IsAdhoc,
		Payments:       o.Payments,
	}
	if o.Closure != nil {
		closed := o.Closure.Date
		w.IsClosed = true
		w.ClosedDate = &closed
		w.PaymentSourceID = o.Closure.PaymentSourceID
	}
	return json.Marshal(w)
}

func (o *Occurrence) UnmarshalJSON(data []byte) error {
	var w occurrenceJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*o = Occurrence{
		ID:             w.ID,
		Sequence:       w.Sequence,
		ExpectedDate:   w.ExpectedDate,
		ExpectedAmount: w.ExpectedAmount,
		Notes:          w.Notes,
		IsAdhoc:        w.IsAdhoc,
		Payments:       w.Payments,
	}
	if w.IsClosed {
		c := &Closure{Date: w.ExpectedDate, PaymentSourceID: w.PaymentSourceID}
		if w.ClosedDate != nil && !w.ClosedDate.IsZero() {
			c.Date = *w.ClosedDate
		}
		o.Closure = c
	}
	return nil
}

// IsClosed folds the occurrences: an instance is closed exactly when every
// occurrence is closed, so an instance without occurrences is closed.
func (i *Instance) IsClosed() bool {
	for k := range i.Occurrences {
		if !i.Occurrences[k].IsClosed() {
			return false
		}
	}
	return true
}

// Occurrence returns a pointer into the instance's occurrence list.
func (i *Instance) Occurrence(id string) (*Occurrence, error) {
	for k := range i.Occurrences {
		if i.Occurrences[k].ID == id {
			return &i.Occurrences[k], nil
		}
	}
	return nil, NotFound("occurrence %s not found in instance %s", id, i.ID)
}

// NextSequence returns one past the highest sequence in use.
func (i *Instance) NextSequence() int {
	max := 0
	for _, o := range i.Occurrences {
		if o.Sequence > max {
			max = o.Sequence
		}
	}
	return max + 1
}

// OccurrenceTotal sums the expected amounts of all occurrences.
func (i *Instance) OccurrenceTotal() Money {
	var total Money
	for _, o := range i.Occurrences {
		total = total.Add(o.ExpectedAmount)
	}
	return total
}

func (i *Instance) IsFromTemplate(templateID string) bool {
	return i.TemplateID != nil && *i.TemplateID == templateID
}

func (i Instance) MarshalJSON() ([]byte, error) {
	type plain Instance
	return json.Marshal(struct {
		plain
		IsClosed bool `json:"is_closed"`
	}{plain(i), i.IsClosed()})
}

// NewMonthlyDocument returns an empty document for month.
func NewMonthlyDocument(month Month, now time.Time) *MonthlyDocument {
	return &MonthlyDocument{
		SchemaVersion: DocumentSchemaVersion,
		Month:         month,
		Bills:         []Instance{},
		Incomes:       []Instance{},
		Expenses:      []Expense{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Bind attaches the document's month to every instance and replaces nil
// lists with empty ones. It must run after decoding a stored document.
func (d *MonthlyDocument) Bind() {
	if d.Bills == nil {
		d.Bills = []Instance{}
	}
	if d.Incomes == nil {
		d.Incomes = []Instance{}
	}
	if d.Expenses == nil {
		d.Expenses = []Expense{}
	}
	for k := range d.Bills {
		d.Bills[k].Month = d.Month
	}
	for k := range d.Incomes {
		d.Incomes[k].Month = d.Month
	}
}

// Instance looks an instance up by id among bills and incomes.
func (d *MonthlyDocument) Instance(id string) (*Instance, error) {
	for k := range d.Bills {
		if d.Bills[k].ID == id {
			return &d.Bills[k], nil
		}
	}
	for k := range d.Incomes {
		if d.Incomes[k].ID == id {
			return &d.Incomes[k], nil
		}
	}
	return nil, NotFound("instance %s not found in %s", id, d.Month)
}

// References reports whether any instance was materialized from templateID.
func (d *MonthlyDocument) References(templateID string) bool {
	for k := range d.Bills {
		if d.Bills[k].IsFromTemplate(templateID) {
			return true
		}
	}
	for k := range d.Incomes {
		if d.Incomes[k].IsFromTemplate(templateID) {
			return true
		}
	}
	return false
}

// Instances returns the instance list for kind.
func (d *MonthlyDocument) Instances(kind TemplateKind) []Instance {
	if kind == IncomeTemplate {
		return d.Incomes
	}
	return d.Bills
}

// Append adds inst to the list matching kind.
func (d *MonthlyDocument) Append(kind TemplateKind, inst Instance) {
	inst.Month = d.Month
	if kind == IncomeTemplate {
		d.Incomes = append(d.Incomes, inst)
		return
	}
	d.Bills = append(d.Bills, inst)
}
