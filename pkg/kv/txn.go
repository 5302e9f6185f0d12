package kv

import (
	"github.com/dgraph-io/badger/v4"

	"github.com/helixkernel/kernel/pkg/kerr"
)

// Txn wraps one Badger transaction. A read transaction sees a consistent
// snapshot taken at BeginRead; a write transaction additionally observes its
// own uncommitted writes in program order.
type Txn struct {
	btx    *badger.Txn
	update bool
	done   bool
}

// Writable reports whether the transaction accepts mutations.
func (tx *Txn) Writable() bool { return tx.update }

// Get returns the value stored under key in the given sub-store. A missing
// key returns NotFound; callers distinguish it from other failures with
// kerr.Is.
func (tx *Txn) Get(store Store, key []byte) ([]byte, error) {
	item, err := tx.btx.Get(storeKey(store, key))
	if err == badger.ErrKeyNotFound {
		return nil, kerr.New(kerr.NotFound, "key not found")
	}
	if err != nil {
		return nil, kerr.Wrap(kerr.TransactionAborted, "reading key", err)
	}
	return item.ValueCopy(nil)
}

// Has reports whether key exists in the sub-store without copying its value.
func (tx *Txn) Has(store Store, key []byte) (bool, error) {
	_, err := tx.btx.Get(storeKey(store, key))
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, kerr.Wrap(kerr.TransactionAborted, "probing key", err)
	}
	return true, nil
}

// Set writes key -> value in the sub-store.
func (tx *Txn) Set(store Store, key, value []byte) error {
	if !tx.update {
		return kerr.New(kerr.TransactionAborted, "write attempted in read transaction")
	}
	if err := tx.btx.Set(storeKey(store, key), value); err != nil {
		return kerr.Wrap(kerr.TransactionAborted, "writing key", err)
	}
	return nil
}

// Delete removes key from the sub-store. Deleting an absent key is a no-op.
func (tx *Txn) Delete(store Store, key []byte) error {
	if !tx.update {
		return kerr.New(kerr.TransactionAborted, "delete attempted in read transaction")
	}
	if err := tx.btx.Delete(storeKey(store, key)); err != nil {
		return kerr.Wrap(kerr.TransactionAborted, "deleting key", err)
	}
	return nil
}

// Commit makes every mutation in the transaction durable atomically. After
// Commit the transaction is finished.
func (tx *Txn) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	if err := tx.btx.Commit(); err != nil {
		return kerr.Wrap(kerr.TransactionAborted, "commit failed", err)
	}
	return nil
}

// Abort discards the transaction. Safe to call after Commit, so callers can
// unconditionally defer it.
func (tx *Txn) Abort() {
	if tx.done {
		return
	}
	tx.done = true
	tx.btx.Discard()
}

// Iterator walks keys of one sub-store in lexicographic order, bounded to an
// optional prefix within the store. Keys yielded have the store byte already
// stripped.
type Iterator struct {
	it     *badger.Iterator
	prefix []byte
}

// NewIterator opens a prefix-bounded iterator over the sub-store, positioned
// at the first matching key. The caller must Close it before the transaction
// finishes.
func (tx *Txn) NewIterator(store Store, prefix []byte) *Iterator {
	full := storeKey(store, prefix)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = full
	it := tx.btx.NewIterator(opts)
	it.Seek(full)
	return &Iterator{it: it, prefix: full}
}

// Valid reports whether the iterator is positioned on a key.
func (it *Iterator) Valid() bool { return it.it.ValidForPrefix(it.prefix) }

// Next advances to the next key.
func (it *Iterator) Next() { it.it.Next() }

// Key returns a copy of the current key with the sub-store byte stripped.
// The slice stays valid after Next.
func (it *Iterator) Key() []byte {
	return it.it.Item().KeyCopy(nil)[1:]
}

// Value returns a copy of the current value.
func (it *Iterator) Value() ([]byte, error) {
	return it.it.Item().ValueCopy(nil)
}

// Close releases the iterator.
func (it *Iterator) Close() { it.it.Close() }

// storeKey prepends the sub-store byte to key.
func storeKey(store Store, key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = byte(store)
	copy(out[1:], key)
	return out
}
