package store

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"fedbridge/pkg/logger"
)

var (
	db     *pebble.DB
	dbPath string
)

// ErrNotFound is returned when a key has no value in the store.
var ErrNotFound = errors.New("store: key not found")

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Log.Info("opening_pebble_db", zap.String("path", path))
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Log.Error("pebble_open_failed", zap.String("path", path), zap.Error(err))
		return err
	}
	dbPath = path
	logger.Log.Info("pebble_opened", zap.String("path", path))
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Log.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

// Get returns the value stored under key, or ErrNotFound.
func Get(key string) ([]byte, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		logger.Log.Error("get_key_failed", zap.String("key", key), zap.Error(err))
		return nil, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, nil
}

// Set stores a key/value pair. Callers should choose a safe namespace
// (e.g. "relay:", "magickey:").
func Set(key string, value []byte) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := db.Set([]byte(key), value, pebble.Sync); err != nil {
		logger.Log.Error("set_key_failed", zap.String("key", key), zap.Error(err))
		return err
	}
	logger.Log.Debug("set_key_ok", zap.String("key", key), zap.Int("len", len(value)))
	return nil
}

// Delete removes a key. Missing keys are not an error.
func Delete(key string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := db.Delete([]byte(key), pebble.Sync); err != nil {
		logger.Log.Error("delete_key_failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// ListPrefix returns all key/value pairs whose key starts with prefix, in
// key order.
func ListPrefix(prefix string) (map[string][]byte, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	pfx := []byte(prefix)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	out := map[string][]byte{}
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		k := append([]byte(nil), iter.Key()...)
		v := append([]byte(nil), iter.Value()...)
		out[string(k)] = v
	}
	return out, iter.Error()
}

// Pebble has no native get-or-insert, so GetOrInsert simulates it with a
// conditional insert guarded by a per-key mutex. Locking is scoped to the
// single key: concurrent calls for distinct keys never contend.
var (
	locksMu sync.Mutex
	locks   = map[string]*keyLock{}
)

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func lockKey(key string) func() {
	locksMu.Lock()
	kl, ok := locks[key]
	if !ok {
		kl = &keyLock{}
		locks[key] = kl
	}
	kl.refs++
	locksMu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		locksMu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(locks, key)
		}
		locksMu.Unlock()
	}
}

// GetOrInsert returns the value stored under key, generating and inserting
// it first if absent. gen runs at most once per insertion; concurrent
// callers for the same key observe the winner's value. The bool result is
// true when this call performed the insertion.
func GetOrInsert(key string, gen func() ([]byte, error)) ([]byte, bool, error) {
	if db == nil {
		return nil, false, fmt.Errorf("pebble not opened; call store.Open first")
	}
	// fast path: already present
	if v, err := Get(key); err == nil {
		return v, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	unlock := lockKey(key)
	defer unlock()

	// re-check under the key lock; a concurrent caller may have won
	if v, err := Get(key); err == nil {
		return v, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	v, err := gen()
	if err != nil {
		return nil, false, err
	}
	if err := db.Set([]byte(key), v, pebble.Sync); err != nil {
		logger.Log.Error("get_or_insert_set_failed", zap.String("key", key), zap.Error(err))
		return nil, false, err
	}
	logger.Log.Debug("get_or_insert_created", zap.String("key", key))
	return v, true, nil
}
