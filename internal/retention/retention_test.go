package retention

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fedbridge/pkg/config"
	"fedbridge/pkg/models"
	"fedbridge/pkg/relay"
	"fedbridge/pkg/store"
)

func openTestDB(t *testing.T) {
	t.Helper()
	if err := store.Open(filepath.Join(t.TempDir(), "db")); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func TestRunOncePurgesOldCompleted(t *testing.T) {
	openTestDB(t)

	oldComplete, _, err := relay.GetOrCreate("http://a/1", "http://b/1", models.RelayRecord{})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := relay.AdvanceStatus(oldComplete, models.StatusComplete); err != nil {
		t.Fatalf("AdvanceStatus: %v", err)
	}

	oldError, _, err := relay.GetOrCreate("http://a/2", "http://b/2", models.RelayRecord{})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := relay.AdvanceStatus(oldError, models.StatusError); err != nil {
		t.Fatalf("AdvanceStatus: %v", err)
	}

	if _, _, err := relay.GetOrCreate("http://a/3", "http://b/3", models.RelayRecord{}); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	// all three records are newer than any sane cutoff; a tiny maxAge
	// makes them "old" relative to now
	time.Sleep(5 * time.Millisecond)
	if err := RunOnce(time.Millisecond); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if _, err := relay.Get("http://a/1", "http://b/1"); !errors.Is(err, relay.ErrNotFound) {
		t.Fatalf("old completed record not purged: %v", err)
	}
	if _, err := relay.Get("http://a/2", "http://b/2"); err != nil {
		t.Fatalf("error record must be kept: %v", err)
	}
	if _, err := relay.Get("http://a/3", "http://b/3"); err != nil {
		t.Fatalf("new record must be kept: %v", err)
	}
}

func TestRunOnceKeepsRecentCompleted(t *testing.T) {
	openTestDB(t)

	rec, _, err := relay.GetOrCreate("http://a/1", "http://b/1", models.RelayRecord{})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := relay.AdvanceStatus(rec, models.StatusComplete); err != nil {
		t.Fatalf("AdvanceStatus: %v", err)
	}

	if err := RunOnce(24 * time.Hour); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if _, err := relay.Get("http://a/1", "http://b/1"); err != nil {
		t.Fatalf("recent completed record purged: %v", err)
	}
}

func TestStartValidation(t *testing.T) {
	if _, err := Start(context.Background(), config.RetentionConfig{
		Enabled: true, Cron: "not a cron", MaxAge: "720h",
	}); err == nil {
		t.Fatal("expected error for invalid cron")
	}
	if _, err := Start(context.Background(), config.RetentionConfig{
		Enabled: true, Cron: "0 2 * * *", MaxAge: "-1h",
	}); err == nil {
		t.Fatal("expected error for invalid max_age")
	}

	cancel, err := Start(context.Background(), config.RetentionConfig{Enabled: false})
	if err != nil {
		t.Fatalf("disabled retention must not error: %v", err)
	}
	cancel()

	cancel, err = Start(context.Background(), config.RetentionConfig{
		Enabled: true, Cron: "0 2 * * *", MaxAge: "720h",
	})
	if err != nil {
		t.Fatalf("valid retention config rejected: %v", err)
	}
	cancel()
}
