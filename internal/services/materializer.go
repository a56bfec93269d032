package services

import (
	"time"

	"bilancio/internal/core"

	"github.com/google/uuid"
)

// IDFunc produces identifiers for new instances and occurrences.
type IDFunc func() string

// Materializer turns active templates into month instances.
type Materializer struct {
	newID IDFunc
	now   func() time.Time
}

// NewMaterializer creates a materializer. A nil newID uses random UUIDs.
func NewMaterializer(newID IDFunc) *Materializer {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Materializer{newID: newID, now: time.Now}
}

// Generate builds a brand-new document for month with one instance per active
// template that has at least one occurrence in the month.
func (m *Materializer) Generate(templates []core.Template, month core.Month) *core.MonthlyDocument {
	doc := core.NewMonthlyDocument(month, m.now().UTC())
	for _, t := range templates {
		if !t.IsActive {
			continue
		}
		if inst, ok := m.instanceFor(t, month); ok {
			doc.Append(kindOf(t), inst)
		}
	}
	return doc
}

// Sync appends instances for active templates not yet referenced by any
// instance of doc. Existing instances are left exactly as they are. It
// returns doc and the number of instances added.
func (m *Materializer) Sync(doc *core.MonthlyDocument, templates []core.Template, month core.Month) (*core.MonthlyDocument, int) {
	added := 0
	for _, t := range templates {
		if !t.IsActive || doc.References(t.ID) {
			continue
		}
		if inst, ok := m.instanceFor(t, month); ok {
			doc.Append(kindOf(t), inst)
			added++
		}
	}
	if added > 0 {
		doc.UpdatedAt = m.now().UTC()
	}
	return doc, added
}

func (m *Materializer) instanceFor(t core.Template, month core.Month) (core.Instance, bool) {
	var occurrences []core.Occurrence

	if anchor, ok := t.Anchor(); ok {
		for i, d := range OccurrenceDates(t.BillingPeriod, anchor, month) {
			occurrences = append(occurrences, core.Occurrence{
				ID:             m.newID(),
				Sequence:       i + 1,
				ExpectedDate:   d,
				ExpectedAmount: t.Amount,
			})
		}
	} else {
		// Legacy record without an anchor: one month-end occurrence with the
		// average amount.
		amount := ProratedMonthlyAmount(t.Amount.Cents, t.BillingPeriod, nil, month)
		if amount > 0 {
			occurrences = append(occurrences, core.Occurrence{
				ID:             m.newID(),
				Sequence:       1,
				ExpectedDate:   month.Last(),
				ExpectedAmount: core.Money{Cents: amount},
			})
		}
	}

	if len(occurrences) == 0 {
		return core.Instance{}, false
	}

	templateID := t.ID
	inst := core.Instance{
		ID:          m.newID(),
		TemplateID:  &templateID,
		Name:        t.Name,
		Occurrences: occurrences,
		IsDefault:   true,
		Month:       month,
	}
	inst.ExpectedAmount = inst.OccurrenceTotal()
	return inst, true
}

func kindOf(t core.Template) core.TemplateKind {
	if t.Kind == core.IncomeTemplate {
		return core.IncomeTemplate
	}
	return core.BillTemplate
}
