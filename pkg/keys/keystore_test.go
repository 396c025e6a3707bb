package keys

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"fedbridge/pkg/models"
	"fedbridge/pkg/store"
)

// fakeSig counts generations and verifies by string comparison, keeping
// these tests free of RSA math.
type fakeSig struct {
	gens    int64
	wantSig string
	err     error
}

func (f *fakeSig) Generate() (pubExp, mod, privExp string, err error) {
	n := atomic.AddInt64(&f.gens, 1)
	if n > 1 {
		return "", "", "", errors.New("generate called more than once")
	}
	return "AQAB", "bW9k", "cHJpdg", nil
}

func (f *fakeSig) Verify(mod, pubExp string, data []byte, sig string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return sig == f.wantSig, nil
}

func openTestDB(t *testing.T) {
	t.Helper()
	if err := store.Open(filepath.Join(t.TempDir(), "db")); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func TestGetOrCreateGeneratesOncePerDomain(t *testing.T) {
	openTestDB(t)
	sig := &fakeSig{}
	s := New(sig)

	const n = 10
	var wg sync.WaitGroup
	entries := make([]*models.KeyEntry, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := s.GetOrCreate("example.com")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			entries[i] = e
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&sig.gens); got != 1 {
		t.Fatalf("expected 1 key generation, got %d", got)
	}
	for i, e := range entries {
		if e == nil || e.Mod != "bW9k" || e.Domain != "example.com" {
			t.Fatalf("caller %d got wrong entry: %+v", i, e)
		}
	}
}

func TestGetOrCreateEmptyDomain(t *testing.T) {
	openTestDB(t)
	s := New(&fakeSig{})
	if _, err := s.GetOrCreate(""); err == nil {
		t.Fatal("expected error for empty domain")
	}
}

func TestGetMissingDomain(t *testing.T) {
	openTestDB(t)
	s := New(&fakeSig{})
	if _, err := s.Get("nobody.example"); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	openTestDB(t)
	sig := &fakeSig{wantSig: "goodsig"}
	s := New(sig)
	if _, err := s.GetOrCreate("example.com"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	ok, err := s.Verify("acct:alice@example.com", []byte("payload"), "goodsig")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("valid signature rejected")
	}

	ok, err = s.Verify("acct:alice@example.com", []byte("payload"), "badsig")
	if err != nil || ok {
		t.Fatalf("bad signature: ok=%v err=%v", ok, err)
	}

	// unknown domain reports false exactly like a bad signature
	ok, err = s.Verify("acct:bob@unknown.example", []byte("payload"), "goodsig")
	if err != nil || ok {
		t.Fatalf("unknown domain: ok=%v err=%v", ok, err)
	}

	// malformed author identity also reports false
	ok, err = s.Verify("acct:nodomain", []byte("payload"), "goodsig")
	if err != nil || ok {
		t.Fatalf("malformed author: ok=%v err=%v", ok, err)
	}
}

func TestVerifyServiceErrorIsFalse(t *testing.T) {
	openTestDB(t)
	sig := &fakeSig{err: errors.New("boom")}
	s := New(sig)
	if _, err := s.GetOrCreate("example.com"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	ok, err := s.Verify("acct:alice@example.com", []byte("payload"), "sig")
	if err != nil || ok {
		t.Fatalf("verifier error must report false: ok=%v err=%v", ok, err)
	}
}

func TestPublicKeyURI(t *testing.T) {
	e := &models.KeyEntry{Mod: "bW9k", PublicExponent: "AQAB"}
	got := PublicKeyURI(e)
	want := "data:application/magic-public-key,RSA.bW9k.AQAB"
	if got != want {
		t.Fatalf("PublicKeyURI = %q, want %q", got, want)
	}
	if !strings.HasPrefix(got, "data:application/magic-public-key,RSA.") {
		t.Fatal("wrong magic-public-key prefix")
	}
}
