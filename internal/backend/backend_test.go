package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"bilancio/internal/config"
	"bilancio/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFrom(t *testing.T) {
	_, err := OptionsFrom(nil)
	require.Error(t, err)

	_, err = OptionsFrom(&config.Config{DataBackend: "sheets"})
	require.Error(t, err)

	opts, err := OptionsFrom(&config.Config{DataBackend: "file", DataDir: "/var/lib/bilancio"})
	require.NoError(t, err)
	assert.Equal(t, KindFile, opts.Kind)
	assert.Equal(t, "/var/lib/bilancio", opts.DataDir)
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{"memory", Options{Kind: KindMemory}, ""},
		{"file", Options{Kind: KindFile, DataDir: "data"}, ""},
		{"file without dir", Options{Kind: KindFile, DataDir: " "}, "DATA_DIR"},
		{"sqlite", Options{Kind: KindSQLite, SQLitePath: "x.db"}, ""},
		{"sqlite without path", Options{Kind: KindSQLite}, "SQLITE_DB_PATH"},
		{"unknown", Options{Kind: "sheets"}, `unknown data backend "sheets" (want one of [memory file sqlite])`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		opts     Options
		location string
	}{
		{Options{Kind: KindMemory}, ""},
		{Options{Kind: KindFile, DataDir: filepath.Join(dir, "docs")}, filepath.Join(dir, "docs")},
		{Options{Kind: KindSQLite, SQLitePath: filepath.Join(dir, "db", "bilancio.db")}, filepath.Join(dir, "db", "bilancio.db")},
	}

	op := NewOpener(nil)
	for _, tt := range tests {
		t.Run(string(tt.opts.Kind), func(t *testing.T) {
			ctx := context.Background()
			opened, err := op.Open(ctx, tt.opts)
			require.NoError(t, err)
			t.Cleanup(func() { _ = opened.Close() })

			assert.Equal(t, tt.opts.Kind, opened.Kind)
			assert.Equal(t, tt.location, opened.Location)
			assert.NoError(t, opened.Probe(ctx))

			require.NoError(t, opened.Put(ctx, "months/2025-01.json", []byte(`{}`)))
			data, found, err := opened.Get(ctx, "months/2025-01.json")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, `{}`, string(data))

			_, shared := opened.Backend.(storage.Revisioner)
			assert.Equal(t, tt.opts.Kind != KindMemory, shared)
		})
	}
}

func TestProbeFailsWhenDataDirIsRemoved(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "docs")
	opened, err := NewOpener(nil).Open(context.Background(), Options{Kind: KindFile, DataDir: dir})
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(dir))
	assert.Error(t, opened.Probe(context.Background()))
}

func TestKinds(t *testing.T) {
	for _, k := range Kinds() {
		assert.True(t, k.IsValid(), k)
	}
	assert.False(t, Kind("sheets").IsValid())
}
