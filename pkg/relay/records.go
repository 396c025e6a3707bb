// Package relay persists the idempotent record of each source->target
// interaction the bridge relays. The (source, target) pair is the record's
// identity; get-or-create on that identity is the only way records come
// into existence.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"fedbridge/pkg/logger"
	"fedbridge/pkg/models"
	"fedbridge/pkg/store"
)

const recordPrefix = "relay:"

// ErrEmptyEndpoint is returned when source or target is missing; no record
// identity can be formed without both.
var ErrEmptyEndpoint = errors.New("relay: source and target are required")

// ErrNotFound is returned by Get for an unknown (source, target) pair.
var ErrNotFound = errors.New("relay: record not found")

// ID returns the composite record identity for a (source, target) pair:
// both URLs with the separator escaped, joined by a space.
func ID(source, target string) (string, error) {
	if source == "" || target == "" {
		return "", ErrEmptyEndpoint
	}
	return encodePart(source) + " " + encodePart(target), nil
}

// SplitID reverses ID, returning the original source and target URLs.
func SplitID(id string) (source, target string, err error) {
	parts := strings.SplitN(id, " ", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("relay: malformed record id %q", id)
	}
	return decodePart(parts[0]), decodePart(parts[1]), nil
}

// The space separates the two halves of the id, so a '#' inside either URL
// is swapped for a private marker. encodePart and decodePart are exact
// inverses for any input.
func encodePart(v string) string { return strings.ReplaceAll(v, "#", "__") }
func decodePart(v string) string { return strings.ReplaceAll(v, "__", "#") }

// GetOrCreate returns the record for (source, target), inserting fields as
// a new record if none exists. When the record already exists it is
// returned unmodified and fields is ignored; that is the idempotence
// contract, not an update path. The bool result is true on insertion.
func GetOrCreate(source, target string, fields models.RelayRecord) (*models.RelayRecord, bool, error) {
	id, err := ID(source, target)
	if err != nil {
		return nil, false, err
	}
	logger.Log.Info("relay_get_or_create", zap.String("source", source), zap.String("target", target))

	v, created, err := store.GetOrInsert(recordPrefix+id, func() ([]byte, error) {
		now := time.Now().UTC().UnixNano()
		fields.ID = id
		if fields.Status == "" {
			fields.Status = models.StatusNew
		}
		if !models.ValidStatus(fields.Status) {
			return nil, fmt.Errorf("relay: invalid status %q", fields.Status)
		}
		fields.CreatedTS = now
		fields.UpdatedTS = now
		return json.Marshal(fields)
	})
	if err != nil {
		return nil, false, err
	}
	var rec models.RelayRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, false, fmt.Errorf("invalid stored relay record %s: %w", id, err)
	}
	return &rec, created, nil
}

// Get returns the stored record for (source, target), or ErrNotFound.
func Get(source, target string) (*models.RelayRecord, error) {
	id, err := ID(source, target)
	if err != nil {
		return nil, err
	}
	v, err := store.Get(recordPrefix + id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec models.RelayRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("invalid stored relay record %s: %w", id, err)
	}
	return &rec, nil
}

// AdvanceStatus sets the record's status and refreshes its updated
// timestamp. Only the dispatch/delivery side calls this; intake never
// transitions status.
func AdvanceStatus(rec *models.RelayRecord, status string) error {
	if !models.ValidStatus(status) {
		return fmt.Errorf("relay: invalid status %q", status)
	}
	rec.Status = status
	rec.UpdatedTS = time.Now().UTC().UnixNano()
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := store.Set(recordPrefix+rec.ID, b); err != nil {
		return err
	}
	logger.Log.Info("relay_status_advanced", zap.String("id", rec.ID), zap.String("status", status))
	return nil
}

// Source returns the record's source URL, decoded from its id.
func Source(rec *models.RelayRecord) string {
	s, _, err := SplitID(rec.ID)
	if err != nil {
		return ""
	}
	return s
}

// Target returns the record's target URL, decoded from its id.
func Target(rec *models.RelayRecord) string {
	_, t, err := SplitID(rec.ID)
	if err != nil {
		return ""
	}
	return t
}

// ProxyURL returns the bridge URL that renders this record as HTML, or ""
// when the record carries no stored payload.
func ProxyURL(host string, rec *models.RelayRecord) string {
	if rec.SourceMF2 == "" && rec.SourceAS2 == "" && rec.SourceAtom == "" {
		return ""
	}
	q := url.Values{}
	q.Set("source", Source(rec))
	q.Set("target", Target(rec))
	return host + "/render?" + q.Encode()
}

// List returns all stored relay records, unordered.
func List() ([]models.RelayRecord, error) {
	kv, err := store.ListPrefix(recordPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]models.RelayRecord, 0, len(kv))
	for k, v := range kv {
		var rec models.RelayRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			logger.Log.Warn("relay_record_unreadable", zap.String("key", k), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Remove deletes a record by id. Used by the retention runner only; the
// pipeline itself never deletes records.
func Remove(id string) error {
	return store.Delete(recordPrefix + id)
}
