// Package intake is the envelope pipeline: it decodes, parses,
// authenticates, and authorizes an inbound salmon slap, then hands the
// translated activity to the webmention dispatcher. Every failure is a
// terminal rejection with a distinct cause; nothing is persisted for a
// rejected envelope.
package intake

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"fedbridge/pkg/codec"
	"fedbridge/pkg/logger"
	"fedbridge/pkg/metrics"
	"fedbridge/pkg/protocol"
)

// Cause classifies why an envelope was rejected.
type Cause string

const (
	CauseBadEnvelopeFormat     Cause = "bad_envelope_format"
	CauseBadPayloadFormat      Cause = "bad_payload_format"
	CauseUnsupportedVerb       Cause = "unsupported_verb"
	CauseUnsupportedAuthScheme Cause = "unsupported_author_scheme"
	CauseSignatureInvalid      Cause = "signature_invalid"
	CauseTranslationFailed     Cause = "translation_failed"
)

// Rejection is the terminal outcome of a failed envelope. Msg is safe to
// return to the sender: it names the cause without exposing key material
// or internal errors.
type Rejection struct {
	Cause  Cause
	Status int
	Msg    string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("slap rejected (%s): %s", r.Cause, r.Msg)
}

func reject(cause Cause, status int, msg string) *Rejection {
	metrics.SlapsRejected.WithLabelValues(string(cause)).Inc()
	return &Rejection{Cause: cause, Status: status, Msg: msg}
}

// Verifier resolves and checks an author's magic signature; implemented by
// the key store.
type Verifier interface {
	Verify(author string, data []byte, sig string) (bool, error)
}

// Dispatcher receives accepted activities. It owns deriving the
// (source, target) pairs, creating relay records, and delivery; intake
// never touches record status.
type Dispatcher interface {
	Relay(ctx context.Context, act *codec.Activity, protocolTag string, sourceAtom []byte) error
}

// Intake wires the collaborators of the slap pipeline.
type Intake struct {
	verifier Verifier
	disp     Dispatcher
}

// New returns an intake pipeline using the given collaborators.
func New(verifier Verifier, disp Dispatcher) *Intake {
	return &Intake{verifier: verifier, disp: disp}
}

// Process runs one envelope through the pipeline. It returns nil on
// successful dispatch, a *Rejection for any validation failure, or a plain
// error for infrastructure failures (store or dispatcher unavailable) that
// the sender may retry by re-POSTing.
//
// The verb check runs before signature verification, mirroring upstream
// behavior; the signature remains the gate before any translation or
// dispatch happens.
func (in *Intake) Process(ctx context.Context, body []byte) error {
	metrics.SlapsReceived.Inc()
	logger.Log.Debug("slap_received", zap.Int("bytes", len(body)))

	// Received -> Decoded
	env, err := codec.DecodeEnvelope(body)
	if err != nil {
		logger.Log.Info("slap_bad_envelope", zap.Error(err))
		return reject(CauseBadEnvelopeFormat, http.StatusBadRequest,
			"could not parse POST body as a magic envelope")
	}

	// Decoded -> Parsed
	entry, err := codec.ParseEntry(env.Data)
	if err != nil {
		logger.Log.Info("slap_bad_payload", zap.Error(err))
		return reject(CauseBadPayloadFormat, http.StatusBadRequest,
			"could not parse envelope data as an atom activity")
	}

	// Parsed -> VerbChecked; verb-less activities (plain posts) pass
	verb := entry.Verb()
	if verb != "" && !protocol.VerbSupported(verb) {
		logger.Log.Info("slap_unsupported_verb", zap.String("verb", verb))
		return reject(CauseUnsupportedVerb, http.StatusNotImplemented,
			fmt.Sprintf("sorry, %s activities are not supported yet", verb))
	}

	// VerbChecked -> AuthorResolved
	author, err := protocol.NormalizeAuthor(entry.AuthorURI())
	if err != nil {
		logger.Log.Info("slap_bad_author", zap.String("author", entry.AuthorURI()), zap.Error(err))
		return reject(CauseUnsupportedAuthScheme, http.StatusBadRequest,
			fmt.Sprintf("author URI has unsupported scheme; expected %s:", protocol.AcctScheme))
	}

	// AuthorResolved -> SignatureVerified. "no key" and "bad signature"
	// are reported identically so senders cannot probe which domains the
	// bridge has keys for.
	logger.Log.Info("slap_verifying", zap.String("author", author), zap.String("verb", verb))
	ok, err := in.verifier.Verify(author, env.Data, env.Sig)
	if err != nil {
		return fmt.Errorf("signature verification unavailable: %w", err)
	}
	if !ok {
		logger.Log.Info("slap_signature_invalid", zap.String("author", author))
		return reject(CauseSignatureInvalid, http.StatusBadRequest,
			"could not verify magic signature")
	}
	logger.Log.Info("slap_signature_verified", zap.String("author", author))

	// SignatureVerified -> Translated
	act, err := codec.ToActivity(entry)
	if err != nil {
		logger.Log.Info("slap_translation_failed", zap.Error(err))
		return reject(CauseTranslationFailed, http.StatusBadRequest,
			"envelope data is not a valid activity")
	}

	// Translated -> Relayed
	if err := in.disp.Relay(ctx, act, protocol.ProtocolOStatus, env.Data); err != nil {
		return fmt.Errorf("relay dispatch failed: %w", err)
	}
	metrics.SlapsRelayed.Inc()
	logger.Log.Info("slap_relayed", zap.String("author", author), zap.String("url", act.URL))
	return nil
}
