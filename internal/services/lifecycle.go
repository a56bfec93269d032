package services

import (
	"bilancio/internal/core"

	"github.com/google/uuid"
)

type (
	CloseRequest struct {
		ClosedDate      core.Date `json:"closed_date"`
		PaymentSourceID string    `json:"payment_source_id,omitempty"`
		Notes           string    `json:"notes,omitempty"`
	}

	SplitRequest struct {
		PaidAmount      core.Money `json:"paid_amount"`
		ClosedDate      core.Date  `json:"closed_date"`
		PaymentSourceID string     `json:"payment_source_id,omitempty"`
		Notes           string     `json:"notes,omitempty"`
	}

	// SplitResult holds copies of the two occurrences a split leaves behind.
	SplitResult struct {
		Closed    core.Occurrence `json:"closed"`
		Remainder core.Occurrence `json:"remainder"`
	}
)

// Lifecycle applies occurrence state transitions to an instance in memory.
// Every method validates all preconditions before it mutates anything, so a
// returned error means the instance is unchanged.
type Lifecycle struct {
	newID IDFunc
}

// NewLifecycle creates a lifecycle manager. A nil newID uses random UUIDs.
func NewLifecycle(newID IDFunc) *Lifecycle {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Lifecycle{newID: newID}
}

// Close marks an occurrence closed. Closing an already closed occurrence
// overwrites its closed date and notes.
func (l *Lifecycle) Close(inst *core.Instance, occurrenceID string, req CloseRequest) (core.Occurrence, error) {
	occ, err := inst.Occurrence(occurrenceID)
	if err != nil {
		return core.Occurrence{}, err
	}
	if err := req.ClosedDate.Validate(); err != nil {
		return core.Occurrence{}, core.InvalidInput("closed date is required")
	}

	occ.Closure = &core.Closure{Date: req.ClosedDate, PaymentSourceID: req.PaymentSourceID}
	if req.Notes != "" {
		occ.Notes = req.Notes
	}
	return *occ, nil
}

// Reopen clears an occurrence's closure.
func (l *Lifecycle) Reopen(inst *core.Instance, occurrenceID string) (core.Occurrence, error) {
	occ, err := inst.Occurrence(occurrenceID)
	if err != nil {
		return core.Occurrence{}, err
	}
	occ.Closure = nil
	return *occ, nil
}

// Split closes the paid portion of an occurrence and appends an open ad-hoc
// occurrence for the remainder, due on the last day of the instance's month.
func (l *Lifecycle) Split(inst *core.Instance, occurrenceID string, req SplitRequest) (SplitResult, error) {
	occ, err := inst.Occurrence(occurrenceID)
	if err != nil {
		return SplitResult{}, err
	}
	if occ.IsClosed() {
		return SplitResult{}, core.InvalidState("Cannot split an already closed occurrence")
	}
	if req.PaidAmount.Cents <= 0 {
		return SplitResult{}, core.InvalidAmount("Paid amount must be greater than 0")
	}
	if req.PaidAmount.Cents >= occ.ExpectedAmount.Cents {
		return SplitResult{}, core.InvalidAmount("Paid amount must be less than expected amount")
	}
	if err := req.ClosedDate.Validate(); err != nil {
		return SplitResult{}, core.InvalidInput("closed date is required")
	}

	month := inst.Month
	if month.IsZero() {
		month = occ.ExpectedDate.Month()
	}

	remainder := core.Occurrence{
		ID:             l.newID(),
		Sequence:       inst.NextSequence(),
		ExpectedDate:   month.Last(),
		ExpectedAmount: occ.ExpectedAmount.Sub(req.PaidAmount),
		IsAdhoc:        true,
	}

	occ.ExpectedAmount = req.PaidAmount
	occ.Closure = &core.Closure{Date: req.ClosedDate, PaymentSourceID: req.PaymentSourceID}
	if req.Notes != "" {
		occ.Notes = req.Notes
	}
	closed := *occ

	// occ is not valid past this append.
	inst.Occurrences = append(inst.Occurrences, remainder)
	inst.IsDefault = false

	return SplitResult{Closed: closed, Remainder: remainder}, nil
}

// ApplyPayment records a payment against an open occurrence. The occurrence
// closes on the payment date once its payments cover the expected amount.
func (l *Lifecycle) ApplyPayment(inst *core.Instance, occurrenceID string, p core.Payment) (core.Occurrence, error) {
	occ, err := inst.Occurrence(occurrenceID)
	if err != nil {
		return core.Occurrence{}, err
	}
	if p.Amount.Cents <= 0 {
		return core.Occurrence{}, core.InvalidAmount("Payment amount must be greater than 0")
	}
	if occ.IsClosed() {
		return core.Occurrence{}, core.InvalidState("Cannot apply a payment to a closed occurrence")
	}
	if err := p.Date.Validate(); err != nil {
		return core.Occurrence{}, core.InvalidInput("payment date is required")
	}

	occ.Payments = append(occ.Payments, p)
	if occ.Paid().Cents >= occ.ExpectedAmount.Cents {
		occ.Closure = &core.Closure{Date: p.Date}
	}
	return *occ, nil
}
