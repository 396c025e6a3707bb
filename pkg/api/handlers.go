// Package api exposes the bridge's HTTP surface: the salmon slap
// endpoints, the render read-side, and the per-domain magic key endpoint.
package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"fedbridge/pkg/config"
	"fedbridge/pkg/intake"
	"fedbridge/pkg/keys"
	"fedbridge/pkg/logger"
	"fedbridge/pkg/relay"
	"fedbridge/pkg/utils"
	"fedbridge/pkg/webmention"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Intake *intake.Intake
	Keys   *keys.Store
	Cfg    *config.Config
}

// Handler builds the router. Slaps are accepted at two route shapes:
// account-scoped (/alice@example.com/salmon) and domain-wide
// (/example.com/salmon).
func Handler(d Deps, middleware ...func(http.Handler) http.Handler) http.Handler {
	r := mux.NewRouter()

	slap := http.Handler(http.HandlerFunc(d.slapHandler))
	for i := len(middleware) - 1; i >= 0; i-- {
		slap = middleware[i](slap)
	}
	r.Handle("/{acct:[^/@]+@[^/@]+}/salmon", slap).Methods(http.MethodPost)
	r.Handle("/{domain:[^/@]+}/salmon", slap).Methods(http.MethodPost)

	r.HandleFunc("/{domain:[^/@]+}/magic-key", d.magicKeyHandler).Methods(http.MethodGet)
	r.HandleFunc("/render", d.renderHandler).Methods(http.MethodGet)

	return r
}

// slapHandler accepts a signed magic envelope and runs it through the
// intake pipeline. Success needs no body; failures return the cause as
// plain text with the status the cause maps to.
func (d Deps) slapHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	logger.Log.Info("slap_post",
		zap.String("acct", vars["acct"]),
		zap.String("domain", vars["domain"]),
		zap.String("remote", r.RemoteAddr))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, d.Cfg.MaxBodyBytes()))
	if err != nil {
		utils.TextError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	err = d.Intake.Process(r.Context(), body)
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	var rej *intake.Rejection
	switch {
	case errors.As(err, &rej):
		utils.TextError(w, rej.Status, rej.Msg)
	case errors.Is(err, webmention.ErrNoTargets):
		utils.TextError(w, http.StatusBadRequest, "no webmention targets found in activity")
	default:
		logger.Log.Error("slap_processing_failed", zap.Error(err))
		utils.TextError(w, http.StatusInternalServerError, "internal error; please retry")
	}
}

// magicKeyHandler returns the domain's magic public key, creating the key
// pair on first request. This is the signing-side key lifecycle: local
// domains call it while setting up to sign their own slaps.
func (d Deps) magicKeyHandler(w http.ResponseWriter, r *http.Request) {
	domain := mux.Vars(r)["domain"]
	entry, err := d.Keys.GetOrCreate(domain)
	if err != nil {
		logger.Log.Error("magic_key_fetch_failed", zap.String("domain", domain), zap.Error(err))
		utils.TextError(w, http.StatusInternalServerError, "could not load key")
		return
	}
	pubPEM, err := keys.ExportPublicPEM(entry)
	if err != nil {
		logger.Log.Error("magic_key_export_failed", zap.String("domain", domain), zap.Error(err))
		utils.TextError(w, http.StatusInternalServerError, "could not export key")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{
		"domain":     entry.Domain,
		"href":       keys.PublicKeyURI(entry),
		"public_pem": pubPEM,
	})
}

// renderHandler serves the stored verbatim payload of a relay record for
// human-readable display. Read-side formatting only; no validation logic.
func (d Deps) renderHandler(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	target := r.URL.Query().Get("target")
	if source == "" || target == "" {
		utils.TextError(w, http.StatusBadRequest, "source and target query params are required")
		return
	}
	rec, err := relay.Get(source, target)
	if err != nil {
		if errors.Is(err, relay.ErrNotFound) {
			utils.TextError(w, http.StatusNotFound, "no relay record for this source and target")
			return
		}
		logger.Log.Error("render_lookup_failed", zap.Error(err))
		utils.TextError(w, http.StatusInternalServerError, "internal error")
		return
	}
	switch {
	case rec.SourceAtom != "":
		w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
		_, _ = w.Write([]byte(rec.SourceAtom))
	case rec.SourceAS2 != "":
		w.Header().Set("Content-Type", "application/activity+json")
		_, _ = w.Write([]byte(rec.SourceAS2))
	case rec.SourceMF2 != "":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(rec.SourceMF2))
	default:
		utils.TextError(w, http.StatusNotFound, "relay record has no stored payload")
	}
}
