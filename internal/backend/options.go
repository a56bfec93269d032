package backend

import (
	"errors"
	"fmt"
	"strings"

	"bilancio/internal/config"
)

// Options select a backend kind and where its documents live.
type Options struct {
	Kind       Kind
	DataDir    string
	SQLitePath string
}

// OptionsFrom picks the storage settings out of the application config.
func OptionsFrom(cfg *config.Config) (Options, error) {
	if cfg == nil {
		return Options{}, errors.New("app config is nil")
	}
	opts := Options{
		Kind:       Kind(cfg.DataBackend),
		DataDir:    cfg.DataDir,
		SQLitePath: cfg.SQLiteDBPath,
	}
	return opts, opts.Validate()
}

func (o Options) Validate() error {
	switch o.Kind {
	case KindSQLite:
		if strings.TrimSpace(o.SQLitePath) == "" {
			return errors.New("sqlite backend needs SQLITE_DB_PATH")
		}
	case KindFile:
		if strings.TrimSpace(o.DataDir) == "" {
			return errors.New("file backend needs DATA_DIR")
		}
	case KindMemory:
	default:
		return fmt.Errorf("unknown data backend %q (want one of %v)", o.Kind, Kinds())
	}
	return nil
}
