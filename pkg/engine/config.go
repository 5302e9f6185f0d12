package engine

import (
	"os"
	"strconv"

	"github.com/helixkernel/kernel/pkg/fulltext"
	"github.com/helixkernel/kernel/pkg/vector"
)

// Environment variables the embedded library reads.
const (
	EnvDataDir  = "HELIX_DATA_DIR"
	EnvDBSize   = "HELIX_DB_SIZE_GIB"
	EnvEfSearch = "HELIX_EF_SEARCH"
)

// Config carries everything an Engine needs beyond its schema. All kernel
// bounds live here, on the handle, never in package globals.
type Config struct {
	// DataDir is the storage root path. Must be absolute with an existing
	// parent directory.
	DataDir string

	// SizeGiB is the maximum map size of the environment.
	SizeGiB int64

	// HNSW holds the construction parameters adopted by new vector labels.
	HNSW vector.Params

	// BM25 bounds full-text query work.
	BM25 fulltext.Config

	// InMemory runs the environment without touching disk. Used by tests.
	InMemory bool

	// SyncWrites forces fsync after each commit.
	SyncWrites bool
}

// DefaultConfig returns a Config with every knob at its documented default.
func DefaultConfig() Config {
	return Config{
		SizeGiB: 10,
		HNSW:    vector.DefaultParams(),
		BM25:    fulltext.DefaultConfig(),
	}
}

// ConfigFromEnv builds a Config from the process environment, falling back
// to defaults for anything unset or unparsable.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if dir, ok := os.LookupEnv(EnvDataDir); ok && dir != "" {
		cfg.DataDir = dir
	}
	if raw, ok := os.LookupEnv(EnvDBSize); ok {
		if gib, err := strconv.ParseInt(raw, 10, 64); err == nil && gib > 0 {
			cfg.SizeGiB = gib
		}
	}
	if raw, ok := os.LookupEnv(EnvEfSearch); ok {
		if ef, err := strconv.Atoi(raw); err == nil && ef > 0 {
			cfg.HNSW.EfSearch = ef
		}
	}
	return cfg
}
