// Package storage persists JSON documents by path-like key.
//
// Writes and deletes for one key are applied one at a time in the order they
// were issued; a read issued after a write returned observes that write.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/log"
)

// Document keys.
const (
	MonthsPrefix       = "months/"
	BillTemplatesKey   = "templates/bills.json"
	IncomeTemplatesKey = "templates/incomes.json"
	PaymentSourcesKey  = "sources/payment_sources.json"
)

// ErrUnchanged may be returned by an Update function to skip the write.
var ErrUnchanged = errors.New("storage: document unchanged")

// MonthKey returns the key of a month document.
func MonthKey(m core.Month) string {
	return MonthsPrefix + m.String() + ".json"
}

// MonthFromKey parses a key produced by MonthKey.
func MonthFromKey(key string) (core.Month, bool) {
	if !strings.HasPrefix(key, MonthsPrefix) || !strings.HasSuffix(key, ".json") {
		return core.Month{}, false
	}
	m, err := core.ParseMonth(strings.TrimSuffix(strings.TrimPrefix(key, MonthsPrefix), ".json"))
	if err != nil {
		return core.Month{}, false
	}
	return m, true
}

// CachedDocument is a document's raw bytes and the backend revision they
// were read at. Revision is empty for backends that are not Revisioners.
type CachedDocument struct {
	Data     []byte
	Revision string
}

// Store is a JSON document store over a Backend with per-key write ordering
// and an optional read cache holding raw document bytes.
//
// Per-key ordering only holds within one process. When the backend is a
// Revisioner, cached documents are checked against the backend revision
// before use, so writes made by other processes are not hidden by the cache.
type Store struct {
	backend Backend
	queue   *KeyQueue
	cache   cache.Cache[CachedDocument]
	logger  *log.Logger
}

// NewStore creates a store. c may be nil to disable caching.
func NewStore(backend Backend, c cache.Cache[CachedDocument], logger *log.Logger) *Store {
	if logger == nil {
		logger = log.ForComponent(log.ComponentStorage)
	}
	return &Store{
		backend: backend,
		queue:   NewKeyQueue(),
		cache:   c,
		logger:  logger,
	}
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// PendingKeys returns the number of keys with queued or running operations.
func (s *Store) PendingKeys() int {
	return s.queue.Len()
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return core.InvalidInput("invalid storage key %q", key)
	}
	if path.Clean(key) != key || strings.HasPrefix(key, "../") || key == ".." {
		return core.InvalidInput("invalid storage key %q", key)
	}
	return nil
}

// Write stores v as JSON under key.
func (s *Store) Write(ctx context.Context, key string, v any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.queue.Do(ctx, key, func() error {
		return s.put(ctx, key, data)
	})
}

// Read decodes the document at key into v. It reports false when the key is
// missing or holds malformed JSON.
func (s *Store) Read(ctx context.Context, key string, v any) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	var (
		data  []byte
		found bool
	)
	err := s.queue.Do(ctx, key, func() error {
		var err error
		data, found, err = s.get(ctx, key)
		return err
	})
	if err != nil || !found {
		return false, err
	}
	return s.decode(ctx, key, data, v), nil
}

// Exists reports whether key holds a document.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	var found bool
	err := s.queue.Do(ctx, key, func() error {
		var err error
		_, found, err = s.get(ctx, key)
		return err
	})
	return found, err
}

// Delete removes key. Deleting a missing key succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.queue.Do(ctx, key, func() error {
		if err := s.backend.Delete(ctx, key); err != nil {
			s.logger.ErrorContext(ctx, "Failed to delete document", log.FieldKey, key, log.FieldError, err)
			return core.IOFailure(err, "delete %s", key)
		}
		if s.cache != nil {
			s.cache.Delete(key)
		}
		s.logger.DebugContext(ctx, "Document deleted", log.FieldKey, key)
		return nil
	})
}

// ListKeys returns the keys starting with prefix, sorted.
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.backend.Keys(ctx, prefix)
	if err != nil {
		return nil, core.IOFailure(err, "list %s", prefix)
	}
	return keys, nil
}

// Update runs a read-modify-write of the document at key inside a single
// queue slot. fn receives the decoded document (zero value when missing) and
// whether it was found. When fn fails nothing is written; returning
// ErrUnchanged skips the write without failing.
func Update[T any](ctx context.Context, s *Store, key string, fn func(doc *T, found bool) error) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.queue.Do(ctx, key, func() error {
		data, found, err := s.get(ctx, key)
		if err != nil {
			return err
		}
		doc := new(T)
		if found {
			found = s.decode(ctx, key, data, doc)
			if !found {
				doc = new(T)
			}
		}

		if err := fn(doc, found); err != nil {
			if errors.Is(err, ErrUnchanged) {
				return nil
			}
			return err
		}

		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		return s.put(ctx, key, out)
	})
}

// get must run inside key's queue slot.
func (s *Store) get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.cache != nil {
		if doc, ok := s.cache.Get(key); ok {
			fresh, err := s.fresh(ctx, key, doc.Revision)
			if err != nil {
				return nil, false, err
			}
			if fresh {
				return doc.Data, true, nil
			}
			s.cache.Delete(key)
		}
	}

	// the revision is taken before the read: a write landing in between
	// leaves a stale revision behind, which only costs a reload
	rev, err := s.revision(ctx, key)
	if err != nil {
		return nil, false, err
	}
	data, found, err := s.backend.Get(ctx, key)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read document", log.FieldKey, key, log.FieldError, err)
		return nil, false, core.IOFailure(err, "read %s", key)
	}
	if found && s.cache != nil {
		s.cache.Set(key, CachedDocument{Data: data, Revision: rev})
	}
	return data, found, nil
}

// revision returns the backend revision of key, or "" when the backend does
// not track revisions or the key is missing.
func (s *Store) revision(ctx context.Context, key string) (string, error) {
	r, ok := s.backend.(Revisioner)
	if !ok || s.cache == nil {
		return "", nil
	}
	rev, _, err := r.Revision(ctx, key)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read document revision", log.FieldKey, key, log.FieldError, err)
		return "", core.IOFailure(err, "read %s", key)
	}
	return rev, nil
}

// fresh reports whether a cached copy taken at rev still matches the backend.
func (s *Store) fresh(ctx context.Context, key, rev string) (bool, error) {
	if _, ok := s.backend.(Revisioner); !ok {
		return true, nil
	}
	if rev == "" {
		return false, nil
	}
	current, err := s.revision(ctx, key)
	if err != nil {
		return false, err
	}
	return current == rev, nil
}

// put must run inside key's queue slot.
func (s *Store) put(ctx context.Context, key string, data []byte) error {
	if err := s.backend.Put(ctx, key, data); err != nil {
		s.logger.ErrorContext(ctx, "Failed to write document", log.FieldKey, key, log.FieldError, err)
		if s.cache != nil {
			s.cache.Delete(key)
		}
		return core.IOFailure(err, "write %s", key)
	}
	if s.cache != nil {
		if _, shared := s.backend.(Revisioner); shared {
			// another process may write before the revision could be read back
			s.cache.Delete(key)
		} else {
			s.cache.Set(key, CachedDocument{Data: data})
		}
	}
	s.logger.DebugContext(ctx, "Document written", log.FieldKey, key, "bytes", len(data))
	return nil
}

func (s *Store) decode(ctx context.Context, key string, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.WarnContext(ctx, "Ignoring malformed document", log.FieldKey, key, log.FieldError, err)
		return false
	}
	return true
}
