// Package backend opens the document backend selected by DATA_BACKEND.
package backend

import (
	"context"
	"slices"

	"bilancio/internal/config"
	"bilancio/internal/storage"
)

// Kind names a document backend.
type Kind string

const (
	KindMemory Kind = config.BackendMemory
	KindFile   Kind = config.BackendFile
	KindSQLite Kind = config.BackendSQLite
)

// Kinds lists the selectable backends.
func Kinds() []Kind {
	return []Kind{KindMemory, KindFile, KindSQLite}
}

func (k Kind) IsValid() bool {
	return slices.Contains(Kinds(), k)
}

// Opened is a backend ready to serve documents. Closing it closes the
// underlying backend.
type Opened struct {
	storage.Backend

	Kind Kind
	// Location is the directory or database file holding the documents,
	// empty for the memory backend.
	Location string
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Probe reports whether the backend can still serve documents. Backends
// without a health check are always ready.
func (o *Opened) Probe(ctx context.Context) error {
	if p, ok := o.Backend.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
