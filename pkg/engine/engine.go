// Package engine wires the storage environment and the three indices into
// one handle a host process embeds, and exposes the handler registration
// surface the external gateway binds its transport to.
package engine

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/helixkernel/kernel/pkg/fulltext"
	"github.com/helixkernel/kernel/pkg/graph"
	"github.com/helixkernel/kernel/pkg/kv"
	"github.com/helixkernel/kernel/pkg/schema"
	"github.com/helixkernel/kernel/pkg/traversal"
	"github.com/helixkernel/kernel/pkg/vector"
)

// schemaVersion is written to the meta sub-store on first open. Schema
// evolution is additive, so the version only moves when the record formats
// themselves change.
const schemaVersion = uint32(1)

var metaSchemaVersion = []byte("schema_version")

// Engine is the process-wide handle. It is created once and passed
// explicitly to every handler; there is no ambient singleton.
type Engine struct {
	cfg    Config
	env    *kv.Env
	schema *schema.Schema
	logger *zap.Logger

	Graph    *graph.Store
	Vectors  *vector.Index
	Text     *fulltext.Index
	Traverse *traversal.Engine

	handlers map[string]HandlerFunc
}

// Open opens the environment rooted at cfg.DataDir and wires the indices
// over it.
func Open(cfg Config, sch *schema.Schema, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sch == nil {
		sch = schema.New()
	}

	env, err := kv.Open(cfg.DataDir, cfg.SizeGiB, logger, kv.Options{
		InMemory:   cfg.InMemory,
		SyncWrites: cfg.SyncWrites,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		env:      env,
		schema:   sch,
		logger:   logger,
		Graph:    graph.New(sch, logger),
		Vectors:  vector.New(sch, cfg.HNSW, logger),
		Text:     fulltext.New(cfg.BM25, logger),
		handlers: make(map[string]HandlerFunc),
	}
	e.Traverse = traversal.NewEngine(e.Graph, e.Vectors, e.Text, logger)

	if err := e.stampSchemaVersion(); err != nil {
		env.Close()
		return nil, err
	}
	return e, nil
}

// stampSchemaVersion records the on-disk format version on first open.
func (e *Engine) stampSchemaVersion() error {
	return e.env.Update(func(tx *kv.Txn) error {
		if ok, err := tx.Has(kv.StoreMeta, metaSchemaVersion); err != nil || ok {
			return err
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, schemaVersion)
		return tx.Set(kv.StoreMeta, metaSchemaVersion, buf)
	})
}

// Schema returns the schema every write is validated against.
func (e *Engine) Schema() *schema.Schema { return e.schema }

// Env exposes the raw environment for hosts that manage their own
// transactions.
func (e *Engine) Env() *kv.Env { return e.env }

// View runs fn inside a read transaction with a pipeline root bound to it.
func (e *Engine) View(fn func(*traversal.Traversal) error) error {
	return e.env.View(func(tx *kv.Txn) error {
		return fn(e.Traverse.Begin(tx))
	})
}

// Update runs fn inside the write transaction, committing when fn returns
// nil and discarding every mutation otherwise.
func (e *Engine) Update(fn func(*traversal.Traversal) error) error {
	return e.env.Update(func(tx *kv.Txn) error {
		return fn(e.Traverse.Begin(tx))
	})
}

// Close releases the environment.
func (e *Engine) Close() error {
	return e.env.Close()
}
