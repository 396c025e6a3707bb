package relay

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"fedbridge/pkg/models"
	"fedbridge/pkg/store"
)

func openTestDB(t *testing.T) {
	t.Helper()
	if err := store.Open(filepath.Join(t.TempDir(), "db")); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func TestIDRoundTrip(t *testing.T) {
	cases := []struct {
		source, target string
		wantID         string
	}{
		{"http://a/post", "http://b/reply", "http://a/post http://b/reply"},
		{"http://a/post#frag", "http://b/x", "http://a/post__frag http://b/x"},
		{"http://a/#one#two", "http://b/#three", "http://a/__one__two http://b/__three"},
	}
	for _, c := range cases {
		id, err := ID(c.source, c.target)
		if err != nil {
			t.Fatalf("ID(%q, %q): %v", c.source, c.target, err)
		}
		if id != c.wantID {
			t.Errorf("ID(%q, %q) = %q, want %q", c.source, c.target, id, c.wantID)
		}
		s, tgt, err := SplitID(id)
		if err != nil {
			t.Fatalf("SplitID(%q): %v", id, err)
		}
		if s != c.source || tgt != c.target {
			t.Errorf("SplitID(%q) = (%q, %q), want (%q, %q)", id, s, tgt, c.source, c.target)
		}
	}
}

func TestIDEmptyEndpoint(t *testing.T) {
	if _, err := ID("", "http://b"); !errors.Is(err, ErrEmptyEndpoint) {
		t.Fatalf("expected ErrEmptyEndpoint, got %v", err)
	}
	if _, err := ID("http://a", ""); !errors.Is(err, ErrEmptyEndpoint) {
		t.Fatalf("expected ErrEmptyEndpoint, got %v", err)
	}
}

func TestSplitIDMalformed(t *testing.T) {
	for _, id := range []string{"", "nospace", " leading", "trailing "} {
		if _, _, err := SplitID(id); err == nil {
			t.Errorf("SplitID(%q): expected error", id)
		}
	}
}

func TestGetOrCreateIdempotent(t *testing.T) {
	openTestDB(t)

	rec, created, err := GetOrCreate("http://a/1", "http://b/2", models.RelayRecord{
		Protocol:  "ostatus",
		Direction: "out",
	})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create")
	}
	if rec.Status != models.StatusNew {
		t.Fatalf("expected status new, got %q", rec.Status)
	}
	if rec.CreatedTS == 0 || rec.UpdatedTS != rec.CreatedTS {
		t.Fatalf("expected created == updated != 0, got %d / %d", rec.CreatedTS, rec.UpdatedTS)
	}

	// second call returns the stored record and ignores fields
	again, created, err := GetOrCreate("http://a/1", "http://b/2", models.RelayRecord{
		Protocol: "activitypub",
		Status:   models.StatusError,
	})
	if err != nil {
		t.Fatalf("GetOrCreate again: %v", err)
	}
	if created {
		t.Fatal("second call must not create")
	}
	if again.Protocol != "ostatus" || again.Status != models.StatusNew {
		t.Fatalf("existing record mutated: %+v", again)
	}
	if again.CreatedTS != rec.CreatedTS {
		t.Fatalf("timestamps changed: %d vs %d", again.CreatedTS, rec.CreatedTS)
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	openTestDB(t)

	const n = 12
	var wg sync.WaitGroup
	createds := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, created, err := GetOrCreate("http://a/like", "http://b/post", models.RelayRecord{})
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			createds[i] = created
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, c := range createds {
		if c {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 creation, got %d", wins)
	}

	all, err := List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(all))
	}
}

func TestGetOrCreateInvalidStatus(t *testing.T) {
	openTestDB(t)

	if _, _, err := GetOrCreate("http://a", "http://b", models.RelayRecord{Status: "bogus"}); err == nil {
		t.Fatal("expected error for invalid status")
	}
}

func TestAdvanceStatus(t *testing.T) {
	openTestDB(t)

	rec, _, err := GetOrCreate("http://a/1", "http://b/2", models.RelayRecord{})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	prev := rec.UpdatedTS
	if err := AdvanceStatus(rec, models.StatusComplete); err != nil {
		t.Fatalf("AdvanceStatus: %v", err)
	}
	if rec.UpdatedTS < prev {
		t.Fatal("UpdatedTS went backwards")
	}

	stored, err := Get("http://a/1", "http://b/2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != models.StatusComplete {
		t.Fatalf("expected complete, got %q", stored.Status)
	}

	if err := AdvanceStatus(rec, "nope"); err == nil {
		t.Fatal("expected error for invalid status")
	}
}

func TestGetNotFound(t *testing.T) {
	openTestDB(t)

	if _, err := Get("http://never", "http://seen"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProxyURL(t *testing.T) {
	rec := &models.RelayRecord{ID: "http://a/p__f http://b/t", SourceAtom: "<entry/>"}
	u := ProxyURL("https://bridge.example", rec)
	if !strings.HasPrefix(u, "https://bridge.example/render?") {
		t.Fatalf("unexpected proxy url %q", u)
	}
	if !strings.Contains(u, "source=") || !strings.Contains(u, "target=") {
		t.Fatalf("proxy url missing params: %q", u)
	}

	empty := &models.RelayRecord{ID: "http://a http://b"}
	if got := ProxyURL("https://bridge.example", empty); got != "" {
		t.Fatalf("expected empty proxy url for payload-less record, got %q", got)
	}
}

func TestRemove(t *testing.T) {
	openTestDB(t)

	rec, _, err := GetOrCreate("http://a/1", "http://b/2", models.RelayRecord{})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := Remove(rec.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := Get("http://a/1", "http://b/2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after Remove, got %v", err)
	}
}
