package services

import (
	"context"
	"fmt"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/storage"

	"golang.org/x/sync/singleflight"
)

// TemplateLister supplies the templates a month is materialized from.
type TemplateLister interface {
	ListActive(ctx context.Context) ([]core.Template, error)
}

// PaymentSourceGetter resolves payment source ids referenced by closures.
type PaymentSourceGetter interface {
	Get(ctx context.Context, id string) (core.PaymentSource, error)
}

// MonthServiceDeps wires a MonthService. Sources, Publisher, NewID and
// Logger are optional.
type MonthServiceDeps struct {
	Store     *storage.Store
	Templates TemplateLister
	Sources   PaymentSourceGetter
	Publisher Publisher
	NewID     IDFunc
	Logger    *log.Logger
}

// EnsureResult reports what EnsureMonth did.
type EnsureResult struct {
	Document *core.MonthlyDocument
	Created  bool
	Added    int
}

// MonthService loads, mutates and persists month documents. Every mutation
// is a single read-modify-write on the month key, so concurrent operations
// on one month apply one after another and a rejected operation leaves the
// stored document untouched.
type MonthService struct {
	store        *storage.Store
	templates    TemplateLister
	sources      PaymentSourceGetter
	publisher    Publisher
	materializer *Materializer
	lifecycle    *Lifecycle
	ensure       singleflight.Group
	now          func() time.Time
	logger       *log.Logger
	events       *log.StructuredLogger
}

func NewMonthService(deps MonthServiceDeps) *MonthService {
	logger := deps.Logger
	if logger == nil {
		logger = log.ForComponent(log.ComponentMonth)
	}
	return &MonthService{
		store:        deps.Store,
		templates:    deps.Templates,
		sources:      deps.Sources,
		publisher:    deps.Publisher,
		materializer: NewMaterializer(deps.NewID),
		lifecycle:    NewLifecycle(deps.NewID),
		now:          time.Now,
		logger:       logger,
		events:       log.NewStructuredLogger(logger),
	}
}

// GetMonth returns the stored document for month.
func (s *MonthService) GetMonth(ctx context.Context, month core.Month) (*core.MonthlyDocument, error) {
	var doc core.MonthlyDocument
	found, err := s.store.Read(ctx, storage.MonthKey(month), &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, core.NotFound("month %s has not been generated", month)
	}
	if doc.Month.IsZero() {
		doc.Month = month
	}
	doc.Bind()
	return &doc, nil
}

// GenerateMonth materializes month from the active templates, replacing any
// document already stored for it.
func (s *MonthService) GenerateMonth(ctx context.Context, month core.Month) (*core.MonthlyDocument, error) {
	templates, err := s.templates.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	doc := s.materializer.Generate(templates, month)
	if err := s.store.Write(ctx, storage.MonthKey(month), doc); err != nil {
		s.events.LogError(ctx, "Failed to generate month", err, log.OpGenerate,
			log.NewFields().WithOccurrence(month.String(), "", ""))
		return nil, err
	}

	s.logger.InfoContext(ctx, "Month generated",
		log.FieldMonth, month.String(),
		"bills", len(doc.Bills),
		"incomes", len(doc.Incomes))
	s.publish(ctx, amqp.NewMonthEvent(amqp.MonthGenerated, month, "", ""))
	return doc, nil
}

// SyncMonth adds instances for active templates the stored month does not
// reference yet. It returns the document and the number of instances added.
func (s *MonthService) SyncMonth(ctx context.Context, month core.Month) (*core.MonthlyDocument, int, error) {
	templates, err := s.templates.ListActive(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list templates: %w", err)
	}

	var (
		result *core.MonthlyDocument
		added  int
	)
	err = storage.Update(ctx, s.store, storage.MonthKey(month), func(doc *core.MonthlyDocument, found bool) error {
		if !found {
			return core.NotFound("month %s has not been generated", month)
		}
		s.bind(doc, month)
		result, added = s.materializer.Sync(doc, templates, month)
		if added == 0 {
			return storage.ErrUnchanged
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	if added > 0 {
		s.logger.InfoContext(ctx, "Month synced", log.FieldMonth, month.String(), "added", added)
		s.publish(ctx, amqp.NewMonthEvent(amqp.MonthSynced, month, "", ""))
	}
	return result, added, nil
}

// EnsureMonth generates month when it does not exist and syncs it otherwise.
// Concurrent calls for the same month share one execution and its result;
// callers must not mutate the returned document. A caller whose ctx ends
// stops waiting, but the shared execution runs on for the others.
func (s *MonthService) EnsureMonth(ctx context.Context, month core.Month) (EnsureResult, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.ensure.DoChan(month.String(), func() (any, error) {
		return s.ensureMonth(shared, month)
	})
	select {
	case <-ctx.Done():
		return EnsureResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return EnsureResult{}, res.Err
		}
		return res.Val.(EnsureResult), nil
	}
}

func (s *MonthService) ensureMonth(ctx context.Context, month core.Month) (EnsureResult, error) {
	templates, err := s.templates.ListActive(ctx)
	if err != nil {
		return EnsureResult{}, fmt.Errorf("list templates: %w", err)
	}

	var res EnsureResult
	err = storage.Update(ctx, s.store, storage.MonthKey(month), func(doc *core.MonthlyDocument, found bool) error {
		if !found {
			*doc = *s.materializer.Generate(templates, month)
			res.Document, res.Created = doc, true
			return nil
		}
		s.bind(doc, month)
		res.Document, res.Added = s.materializer.Sync(doc, templates, month)
		if res.Added == 0 {
			return storage.ErrUnchanged
		}
		return nil
	})
	if err != nil {
		s.events.LogError(ctx, "Failed to ensure month", err, log.OpEnsure,
			log.NewFields().WithOccurrence(month.String(), "", ""))
		return EnsureResult{}, err
	}

	switch {
	case res.Created:
		s.logger.InfoContext(ctx, "Month generated", log.FieldMonth, month.String(), "bills", len(res.Document.Bills), "incomes", len(res.Document.Incomes))
		s.publish(ctx, amqp.NewMonthEvent(amqp.MonthGenerated, month, "", ""))
	case res.Added > 0:
		s.logger.InfoContext(ctx, "Month synced", log.FieldMonth, month.String(), "added", res.Added)
		s.publish(ctx, amqp.NewMonthEvent(amqp.MonthSynced, month, "", ""))
	}
	return res, nil
}

// ListMonths returns the stored months in ascending order.
func (s *MonthService) ListMonths(ctx context.Context) ([]core.Month, error) {
	keys, err := s.store.ListKeys(ctx, storage.MonthsPrefix)
	if err != nil {
		return nil, err
	}
	months := make([]core.Month, 0, len(keys))
	for _, key := range keys {
		if m, ok := storage.MonthFromKey(key); ok {
			months = append(months, m)
		}
	}
	return months, nil
}

// DeleteMonth removes a month document together with its instances.
func (s *MonthService) DeleteMonth(ctx context.Context, month core.Month) error {
	key := storage.MonthKey(month)
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return core.NotFound("month %s has not been generated", month)
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Month deleted", log.FieldMonth, month.String())
	return nil
}

// CloseOccurrence marks an occurrence as settled.
func (s *MonthService) CloseOccurrence(ctx context.Context, month core.Month, instanceID, occurrenceID string, req CloseRequest) (core.Occurrence, error) {
	if err := s.checkSource(ctx, req.PaymentSourceID); err != nil {
		return core.Occurrence{}, err
	}

	var occ core.Occurrence
	err := s.mutate(ctx, month, instanceID, func(inst *core.Instance) error {
		var err error
		occ, err = s.lifecycle.Close(inst, occurrenceID, req)
		return err
	})
	if err != nil {
		return core.Occurrence{}, err
	}

	s.changed(ctx, log.OpClose, amqp.OccurrenceClosed, month, instanceID, occurrenceID)
	return occ, nil
}

// ReopenOccurrence clears an occurrence's closure.
func (s *MonthService) ReopenOccurrence(ctx context.Context, month core.Month, instanceID, occurrenceID string) (core.Occurrence, error) {
	var occ core.Occurrence
	err := s.mutate(ctx, month, instanceID, func(inst *core.Instance) error {
		var err error
		occ, err = s.lifecycle.Reopen(inst, occurrenceID)
		return err
	})
	if err != nil {
		return core.Occurrence{}, err
	}

	s.changed(ctx, log.OpReopen, amqp.OccurrenceReopened, month, instanceID, occurrenceID)
	return occ, nil
}

// SplitOccurrence closes the paid part of an occurrence and schedules the
// remainder at the end of the month.
func (s *MonthService) SplitOccurrence(ctx context.Context, month core.Month, instanceID, occurrenceID string, req SplitRequest) (SplitResult, error) {
	if err := s.checkSource(ctx, req.PaymentSourceID); err != nil {
		return SplitResult{}, err
	}

	var res SplitResult
	err := s.mutate(ctx, month, instanceID, func(inst *core.Instance) error {
		var err error
		res, err = s.lifecycle.Split(inst, occurrenceID, req)
		return err
	})
	if err != nil {
		return SplitResult{}, err
	}

	s.logger.InfoContext(ctx, "Occurrence split",
		log.FieldOccurrenceID, occurrenceID,
		log.FieldAmountCents, req.PaidAmount.Cents,
		"remainder_cents", res.Remainder.ExpectedAmount.Cents)
	s.changed(ctx, log.OpSplit, amqp.OccurrenceSplit, month, instanceID, occurrenceID)
	return res, nil
}

// ApplyPayment records a partial or full payment against an occurrence.
func (s *MonthService) ApplyPayment(ctx context.Context, month core.Month, instanceID, occurrenceID string, p core.Payment) (core.Occurrence, error) {
	var occ core.Occurrence
	err := s.mutate(ctx, month, instanceID, func(inst *core.Instance) error {
		var err error
		occ, err = s.lifecycle.ApplyPayment(inst, occurrenceID, p)
		return err
	})
	if err != nil {
		return core.Occurrence{}, err
	}

	s.changed(ctx, log.OpPay, amqp.OccurrencePayment, month, instanceID, occurrenceID)
	return occ, nil
}

// mutate runs fn against one instance of the stored month inside the month
// key's queue slot. Nothing is written when fn fails.
func (s *MonthService) mutate(ctx context.Context, month core.Month, instanceID string, fn func(inst *core.Instance) error) error {
	return storage.Update(ctx, s.store, storage.MonthKey(month), func(doc *core.MonthlyDocument, found bool) error {
		if !found {
			return core.NotFound("month %s has not been generated", month)
		}
		s.bind(doc, month)

		inst, err := doc.Instance(instanceID)
		if err != nil {
			return err
		}
		if err := fn(inst); err != nil {
			return err
		}
		doc.UpdatedAt = s.now().UTC()
		return nil
	})
}

func (s *MonthService) bind(doc *core.MonthlyDocument, month core.Month) {
	if doc.Month.IsZero() {
		doc.Month = month
	}
	doc.Bind()
}

func (s *MonthService) checkSource(ctx context.Context, id string) error {
	if id == "" || s.sources == nil {
		return nil
	}
	_, err := s.sources.Get(ctx, id)
	return err
}

func (s *MonthService) changed(ctx context.Context, op string, eventType amqp.EventType, month core.Month, instanceID, occurrenceID string) {
	s.events.LogOccurrenceChange(ctx, op, month.String(), instanceID, occurrenceID)
	s.publish(ctx, amqp.NewMonthEvent(eventType, month, instanceID, occurrenceID))
}

func (s *MonthService) publish(ctx context.Context, event amqp.MonthEvent) {
	publish(ctx, s.logger, s.publisher, event)
}
