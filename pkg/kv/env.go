// Package kv provides the transactional key-value environment underneath the
// graph, vector, and full-text indices.
//
// The environment is one Badger database holding twelve logical sub-stores,
// separated by single-byte key prefixes. Badger supplies the properties the
// kernel is built on: a memory-mapped LSM store, snapshot-isolated read
// transactions concurrent with one serialized writer, and atomic commit of
// everything written inside a transaction.
//
// Key Structure:
//   - Nodes:           0x01 + nodeID -> node record
//   - Edges:           0x02 + edgeID -> edge record
//   - Outgoing Index:  0x03 + fromID + labelHash + edgeID + toID -> empty
//   - Incoming Index:  0x04 + toID + labelHash + edgeID + fromID -> empty
//   - Secondary Index: 0x05 + labelHash + propHash + valueBytes + id -> empty
//   - Vector Data:     0x06 + vectorID -> vector record
//   - Vector Layer:    0x07 + layer + vectorID -> empty
//   - Vector Links:    0x08 + level + vectorID + neighbourID -> distance
//   - BM25 Postings:   0x09 + termLen + term + docID -> term frequency
//   - BM25 Docs:       0x0A + docID -> document length
//   - BM25 Stats:      0x0B + statKey -> counters
//   - Meta:            0x0C + metaKey -> opaque
package kv

import (
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/helixkernel/kernel/pkg/kerr"
)

// Store identifies one of the logical sub-stores inside the environment.
type Store byte

const (
	StoreNodes        Store = 0x01
	StoreEdges        Store = 0x02
	StoreOutAdj       Store = 0x03
	StoreInAdj        Store = 0x04
	StoreSecondary    Store = 0x05
	StoreVectorData   Store = 0x06
	StoreVectorLayer  Store = 0x07
	StoreVectorLinks  Store = 0x08
	StoreBM25Postings Store = 0x09
	StoreBM25Docs     Store = 0x0A
	StoreBM25Stats    Store = 0x0B
	StoreMeta         Store = 0x0C
)

// Env is the process-wide transactional environment. One Env is opened per
// engine directory and shared by every index; all mutation paths route
// through its single writer.
type Env struct {
	db     *badger.DB
	logger *zap.Logger
	path   string
	closed bool
}

// Options configures Open beyond the path and map size.
type Options struct {
	// InMemory runs the environment without touching disk. Used by tests.
	InMemory bool

	// SyncWrites forces fsync after each commit.
	SyncWrites bool
}

// Open opens (creating if necessary) the environment rooted at path with the
// given maximum map size in GiB.
//
// The path must be absolute and its parent directory must already exist;
// otherwise Open fails with InvalidPath. The parent's filesystem must have
// free space for at least the requested map size, otherwise Open fails with
// InsufficientSpace.
func Open(path string, sizeGiB int64, logger *zap.Logger, opts Options) (*Env, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sizeGiB <= 0 {
		sizeGiB = 1
	}

	if !opts.InMemory {
		if !filepath.IsAbs(path) {
			return nil, kerr.New(kerr.InvalidPath, "storage path must be absolute: "+path)
		}
		parent := filepath.Dir(path)
		info, err := os.Stat(parent)
		if err != nil || !info.IsDir() {
			return nil, kerr.New(kerr.InvalidPath, "parent directory does not exist: "+parent)
		}
		free, err := freeBytes(parent)
		if err == nil && free < uint64(sizeGiB)<<30 {
			return nil, kerr.New(kerr.InsufficientSpace, "not enough free space for requested map size")
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, kerr.Wrap(kerr.InvalidPath, "creating storage directory", err)
		}
	}

	badgerOpts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithInMemory(opts.InMemory).
		WithSyncWrites(opts.SyncWrites).
		// Keep resident memory bounded; the map size cap is enforced by
		// value log sizing rather than a hard mmap limit.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(256 << 20).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, kerr.Wrap(kerr.InvalidPath, "opening environment", err)
	}

	logger.Info("environment opened",
		zap.String("path", path),
		zap.Int64("size_gib", sizeGiB),
		zap.Bool("in_memory", opts.InMemory))

	return &Env{db: db, logger: logger, path: path}, nil
}

// freeBytes reports the free space on the filesystem holding dir.
func freeBytes(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// Path returns the directory the environment is rooted at.
func (e *Env) Path() string { return e.path }

// BeginRead starts a snapshot-isolated read transaction. Read transactions
// never block the writer and see the state as of this call.
func (e *Env) BeginRead() *Txn {
	return &Txn{btx: e.db.NewTransaction(false), update: false}
}

// BeginWrite starts the read-write transaction. Badger serializes conflicting
// writers at commit; the kernel's discipline of one writer per request keeps
// that path conflict-free.
func (e *Env) BeginWrite() *Txn {
	return &Txn{btx: e.db.NewTransaction(true), update: true}
}

// View runs fn inside a read transaction, discarding it afterwards. A panic
// inside fn unwinds through the deferred discard, leaving the store
// consistent.
func (e *Env) View(fn func(*Txn) error) error {
	tx := e.BeginRead()
	defer tx.Abort()
	return fn(tx)
}

// Update runs fn inside a write transaction and commits if fn returns nil.
// On error or panic every mutation is discarded.
func (e *Env) Update(fn func(*Txn) error) error {
	tx := e.BeginWrite()
	defer tx.Abort()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Close releases the environment. Outstanding transactions must be finished
// first.
func (e *Env) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.logger.Info("environment closed", zap.String("path", e.path))
	return e.db.Close()
}
