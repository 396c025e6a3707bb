// Package webmention turns accepted activities into outbound webmentions:
// it derives the (source, target) pairs, creates the relay records, and
// performs endpoint discovery and delivery. It owns record status
// transitions after creation.
package webmention

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"fedbridge/pkg/codec"
	"fedbridge/pkg/logger"
	"fedbridge/pkg/metrics"
	"fedbridge/pkg/models"
	"fedbridge/pkg/protocol"
	"fedbridge/pkg/relay"
)

// ErrNoTargets is returned when an activity references no pages to ping.
var ErrNoTargets = errors.New("webmention: no targets found in activity")

// Dispatcher delivers webmentions over HTTP.
type Dispatcher struct {
	client    *http.Client
	userAgent string
}

// NewDispatcher returns a dispatcher using the given client; nil means a
// default client with a 30s timeout.
func NewDispatcher(client *http.Client, userAgent string) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if userAgent == "" {
		userAgent = "fedbridge (webmention)"
	}
	return &Dispatcher{client: client, userAgent: userAgent}
}

// Relay derives the (source, target) pairs from the activity, creates one
// relay record per pair (idempotently), and attempts delivery for each
// record that is not already complete. Delivery failures mark the record
// error but do not fail the slap; the record is the durable trace.
func (d *Dispatcher) Relay(ctx context.Context, act *codec.Activity, protocolTag string, sourceAtom []byte) error {
	source := act.URL
	if source == "" {
		source = act.ID
	}
	if source == "" {
		return fmt.Errorf("webmention: activity has no source url")
	}

	tgts := targets(act, source)
	if len(tgts) == 0 {
		logger.Log.Warn("webmention_no_targets", zap.String("source", source), zap.String("verb", act.Verb))
		return ErrNoTargets
	}

	for _, target := range tgts {
		rec, created, err := relay.GetOrCreate(source, target, models.RelayRecord{
			Protocol:   protocolTag,
			Direction:  protocol.DirectionOut,
			SourceAtom: string(sourceAtom),
		})
		if err != nil {
			return fmt.Errorf("webmention: relay record for %s -> %s: %w", source, target, err)
		}
		if created {
			metrics.RelayRecordsCreated.Inc()
		} else if rec.Status == models.StatusComplete {
			logger.Log.Info("webmention_already_delivered",
				zap.String("source", source), zap.String("target", target))
			continue
		}
		d.deliver(ctx, rec, source, target)
	}
	return nil
}

// deliver discovers the target's webmention endpoint and posts the
// mention, advancing the record to complete or error.
func (d *Dispatcher) deliver(ctx context.Context, rec *models.RelayRecord, source, target string) {
	endpoint, err := d.Discover(ctx, target)
	if err != nil {
		logger.Log.Warn("webmention_discovery_failed",
			zap.String("target", target), zap.Error(err))
		metrics.Webmentions.WithLabelValues("no_endpoint").Inc()
		if aerr := relay.AdvanceStatus(rec, models.StatusError); aerr != nil {
			logger.Log.Error("relay_status_update_failed", zap.String("id", rec.ID), zap.Error(aerr))
		}
		return
	}

	if err := d.send(ctx, endpoint, source, target); err != nil {
		logger.Log.Warn("webmention_send_failed",
			zap.String("endpoint", endpoint), zap.String("target", target), zap.Error(err))
		metrics.Webmentions.WithLabelValues("failed").Inc()
		if aerr := relay.AdvanceStatus(rec, models.StatusError); aerr != nil {
			logger.Log.Error("relay_status_update_failed", zap.String("id", rec.ID), zap.Error(aerr))
		}
		return
	}

	metrics.Webmentions.WithLabelValues("sent").Inc()
	logger.Log.Info("webmention_sent",
		zap.String("endpoint", endpoint), zap.String("source", source), zap.String("target", target))
	if aerr := relay.AdvanceStatus(rec, models.StatusComplete); aerr != nil {
		logger.Log.Error("relay_status_update_failed", zap.String("id", rec.ID), zap.Error(aerr))
	}
}

// send posts the webmention form to the endpoint.
func (d *Dispatcher) send(ctx context.Context, endpoint, source, target string) error {
	form := url.Values{}
	form.Set("source", source)
	form.Set("target", target)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", d.userAgent)
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %s", resp.Status)
	}
	return nil
}

// targets collects the pages this activity should ping: everything it
// replies to, plus the object of like/share style verbs. The source page
// itself is excluded.
func targets(act *codec.Activity, source string) []string {
	seen := map[string]struct{}{source: {}}
	var out []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	for _, u := range act.InReplyTo {
		add(u)
	}
	switch act.Verb {
	case "like", "favorite", "share", "tag":
		add(act.Object.URL)
	}
	return out
}
