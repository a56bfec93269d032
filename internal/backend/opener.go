package backend

import (
	"context"
	"fmt"

	"bilancio/internal/log"
	"bilancio/internal/storage"
)

// Opener opens document backends and logs what it opened.
type Opener struct {
	logger *log.Logger
}

func NewOpener(logger *log.Logger) *Opener {
	if logger == nil {
		logger = log.ForComponent(log.ComponentBackend)
	}
	return &Opener{logger: logger}
}

// Open validates opts and opens the backend they select.
func (op *Opener) Open(ctx context.Context, opts Options) (*Opened, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var (
		b        storage.Backend
		location string
		err      error
	)
	switch opts.Kind {
	case KindSQLite:
		location = opts.SQLitePath
		b, err = storage.NewSQLiteBackend(opts.SQLitePath)
	case KindFile:
		location = opts.DataDir
		b, err = storage.NewFileBackend(opts.DataDir)
	case KindMemory:
		b = storage.NewMemoryBackend()
	}
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", opts.Kind, err)
	}

	opened := &Opened{Backend: b, Kind: opts.Kind, Location: location}
	if err := opened.Probe(ctx); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("%s backend not ready: %w", opts.Kind, err)
	}

	if opts.Kind == KindMemory {
		op.logger.WarnContext(ctx, "Opened memory backend, documents will not survive a restart")
	} else {
		op.logger.InfoContext(ctx, "Opened document backend", "kind", opts.Kind, "location", location)
	}
	return opened, nil
}
