package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func openTestDB(t *testing.T) {
	t.Helper()
	if err := Open(filepath.Join(t.TempDir(), "db")); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = Close() })
}

func TestGetSetRoundTrip(t *testing.T) {
	openTestDB(t)

	if _, err := Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := Set("k1", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := Get("k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "v1" {
		t.Fatalf("expected v1, got %q", v)
	}
}

func TestListPrefix(t *testing.T) {
	openTestDB(t)

	for i := 0; i < 3; i++ {
		if err := Set(fmt.Sprintf("pfx:%d", i), []byte("x")); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := Set("other:0", []byte("y")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	kv, err := ListPrefix("pfx:")
	if err != nil {
		t.Fatalf("ListPrefix: %v", err)
	}
	if len(kv) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(kv))
	}
}

func TestGetOrInsertGeneratesOnce(t *testing.T) {
	openTestDB(t)

	var gens int64
	gen := func() ([]byte, error) {
		atomic.AddInt64(&gens, 1)
		return []byte("value"), nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([][]byte, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := GetOrInsert("race-key", gen)
			if err != nil {
				t.Errorf("GetOrInsert: %v", err)
				return
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&gens); got != 1 {
		t.Fatalf("expected exactly 1 generation, got %d", got)
	}
	for i, v := range results {
		if string(v) != "value" {
			t.Fatalf("caller %d observed %q", i, v)
		}
	}
}

func TestGetOrInsertExistingIgnoresGen(t *testing.T) {
	openTestDB(t)

	if err := Set("k", []byte("original")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, created, err := GetOrInsert("k", func() ([]byte, error) {
		t.Fatal("gen must not run for existing key")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("GetOrInsert: %v", err)
	}
	if created {
		t.Fatal("expected created=false for existing key")
	}
	if string(v) != "original" {
		t.Fatalf("expected original, got %q", v)
	}
}

func TestGetOrInsertGenError(t *testing.T) {
	openTestDB(t)

	wantErr := errors.New("gen failed")
	_, _, err := GetOrInsert("k", func() ([]byte, error) { return nil, wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected gen error, got %v", err)
	}
	// a failed generation must not leave a value behind
	if _, err := Get("k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after failed gen, got %v", err)
	}
}
