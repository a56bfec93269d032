package services

import (
	"context"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/storage"

	"github.com/google/uuid"
)

// Publisher sends month events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, event amqp.MonthEvent) error
}

// TemplateService stores bill and income templates, one document per kind.
type TemplateService struct {
	store     *storage.Store
	publisher Publisher
	newID     IDFunc
	now       func() time.Time
	logger    *log.Logger
}

func NewTemplateService(store *storage.Store, publisher Publisher, logger *log.Logger) *TemplateService {
	if logger == nil {
		logger = log.ForComponent(log.ComponentTemplate)
	}
	return &TemplateService{
		store:     store,
		publisher: publisher,
		newID:     uuid.NewString,
		now:       time.Now,
		logger:    logger,
	}
}

func templatesKey(kind core.TemplateKind) (string, error) {
	switch kind {
	case core.BillTemplate:
		return storage.BillTemplatesKey, nil
	case core.IncomeTemplate:
		return storage.IncomeTemplatesKey, nil
	default:
		return "", core.InvalidInput("invalid template kind %q", kind)
	}
}

// List returns every template of kind, active or not.
func (s *TemplateService) List(ctx context.Context, kind core.TemplateKind) ([]core.Template, error) {
	key, err := templatesKey(kind)
	if err != nil {
		return nil, err
	}

	var templates []core.Template
	if _, err := s.store.Read(ctx, key, &templates); err != nil {
		return nil, err
	}
	for i := range templates {
		templates[i].Kind = kind
	}
	if templates == nil {
		templates = []core.Template{}
	}
	return templates, nil
}

// ListActive returns the active bill templates followed by the active income
// templates.
func (s *TemplateService) ListActive(ctx context.Context) ([]core.Template, error) {
	var active []core.Template
	for _, kind := range []core.TemplateKind{core.BillTemplate, core.IncomeTemplate} {
		templates, err := s.List(ctx, kind)
		if err != nil {
			return nil, err
		}
		for _, t := range templates {
			if t.IsActive {
				active = append(active, t)
			}
		}
	}
	return active, nil
}

// Save validates and upserts t. A template without an id gets a new one.
// Months already materialized are not touched; a sync of the current month
// is requested instead.
func (s *TemplateService) Save(ctx context.Context, kind core.TemplateKind, t core.Template) (core.Template, error) {
	key, err := templatesKey(kind)
	if err != nil {
		return core.Template{}, err
	}

	t.Kind = kind
	if t.ID == "" {
		t.ID = s.newID()
	}
	if err := t.Validate(); err != nil {
		return core.Template{}, err
	}

	err = storage.Update(ctx, s.store, key, func(templates *[]core.Template, _ bool) error {
		for i := range *templates {
			if (*templates)[i].ID == t.ID {
				t.CreatedAt = (*templates)[i].CreatedAt
				(*templates)[i] = t
				return nil
			}
		}
		t.CreatedAt = s.now().UTC()
		*templates = append(*templates, t)
		return nil
	})
	if err != nil {
		return core.Template{}, err
	}

	s.logger.InfoContext(ctx, "Template saved",
		log.FieldTemplateID, t.ID,
		"kind", kind,
		log.FieldAmountCents, t.Amount.Cents,
		"billing_period", t.BillingPeriod)

	s.requestSync(ctx)
	return t, nil
}

// SetActive activates or deactivates a template.
func (s *TemplateService) SetActive(ctx context.Context, kind core.TemplateKind, id string, active bool) (core.Template, error) {
	key, err := templatesKey(kind)
	if err != nil {
		return core.Template{}, err
	}

	var updated core.Template
	err = storage.Update(ctx, s.store, key, func(templates *[]core.Template, _ bool) error {
		for i := range *templates {
			if (*templates)[i].ID != id {
				continue
			}
			if (*templates)[i].IsActive == active {
				updated = (*templates)[i]
				return storage.ErrUnchanged
			}
			(*templates)[i].IsActive = active
			updated = (*templates)[i]
			return nil
		}
		return core.NotFound("template %s not found", id)
	})
	if err != nil {
		return core.Template{}, err
	}
	updated.Kind = kind

	s.logger.InfoContext(ctx, "Template activation changed", log.FieldTemplateID, id, "is_active", active)
	if active {
		s.requestSync(ctx)
	}
	return updated, nil
}

func (s *TemplateService) requestSync(ctx context.Context) {
	event := amqp.NewMonthEvent(amqp.MonthSyncRequested, core.MonthOf(s.now()), "", "")
	publish(ctx, s.logger, s.publisher, event)
}

// publish sends event when a publisher is configured. Failures are logged and
// otherwise ignored: the document change is already persisted.
func publish(ctx context.Context, logger *log.Logger, publisher Publisher, event amqp.MonthEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "Failed to publish month event",
			log.FieldEventType, event.Type,
			log.FieldMonth, event.Month.String(),
			log.FieldError, err)
	}
}
