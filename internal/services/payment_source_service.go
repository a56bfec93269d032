package services

import (
	"context"
	"encoding/json"
	"fmt"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/storage"
)

// PaymentSourceService reads and writes payment sources. Stored records of
// older schema versions are upgraded on load and rewritten in the current
// shape on the next save.
type PaymentSourceService struct {
	store  *storage.Store
	logger *log.Logger
}

func NewPaymentSourceService(store *storage.Store, logger *log.Logger) *PaymentSourceService {
	if logger == nil {
		logger = log.ForComponent(log.ComponentStorage)
	}
	return &PaymentSourceService{store: store, logger: logger}
}

// List returns every readable payment source. Records that cannot be
// upgraded are logged and skipped.
func (s *PaymentSourceService) List(ctx context.Context) ([]core.PaymentSource, error) {
	var raw []json.RawMessage
	if _, err := s.store.Read(ctx, storage.PaymentSourcesKey, &raw); err != nil {
		return nil, err
	}
	return s.upgradeAll(ctx, raw), nil
}

// Get returns the payment source with id.
func (s *PaymentSourceService) Get(ctx context.Context, id string) (core.PaymentSource, error) {
	sources, err := s.List(ctx)
	if err != nil {
		return core.PaymentSource{}, err
	}
	for _, p := range sources {
		if p.ID == id {
			return p, nil
		}
	}
	return core.PaymentSource{}, core.NotFound("payment source %s not found", id)
}

// Save validates and upserts p.
func (s *PaymentSourceService) Save(ctx context.Context, p core.PaymentSource) (core.PaymentSource, error) {
	p.SchemaVersion = core.PaymentSourceSchemaVersion
	if err := p.Validate(); err != nil {
		return core.PaymentSource{}, err
	}

	err := storage.Update(ctx, s.store, storage.PaymentSourcesKey, func(raw *[]json.RawMessage, _ bool) error {
		sources := s.upgradeAll(ctx, *raw)

		replaced := false
		for i := range sources {
			if sources[i].ID == p.ID {
				sources[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			sources = append(sources, p)
		}

		out := make([]json.RawMessage, 0, len(sources))
		for _, src := range sources {
			data, err := json.Marshal(src)
			if err != nil {
				return fmt.Errorf("encode payment source %s: %w", src.ID, err)
			}
			out = append(out, data)
		}
		*raw = out
		return nil
	})
	if err != nil {
		return core.PaymentSource{}, err
	}

	s.logger.InfoContext(ctx, "Payment source saved", "payment_source_id", p.ID, "kind", p.Kind)
	return p, nil
}

func (s *PaymentSourceService) upgradeAll(ctx context.Context, raw []json.RawMessage) []core.PaymentSource {
	sources := make([]core.PaymentSource, 0, len(raw))
	for _, r := range raw {
		p, err := core.UpgradePaymentSource(r)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping unreadable payment source", log.FieldError, err)
			continue
		}
		sources = append(sources, p)
	}
	return sources
}
