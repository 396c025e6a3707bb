// Package keys owns the per-domain magic-signature key pairs. Keys are
// created lazily and exactly once per domain; the persistent store is the
// single source of truth.
package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fedbridge/pkg/logger"
	"fedbridge/pkg/magicsig"
	"fedbridge/pkg/metrics"
	"fedbridge/pkg/models"
	"fedbridge/pkg/protocol"
	"fedbridge/pkg/store"
)

const keyPrefix = "magickey:"

// ErrNoKey is returned by Get when a domain has no stored key pair.
var ErrNoKey = errors.New("keys: no key for domain")

// SignatureService is the cryptographic collaborator: key generation and
// signature checks over base64url key components.
type SignatureService interface {
	Generate() (pubExp, mod, privExp string, err error)
	Verify(mod, pubExp string, data []byte, sig string) (bool, error)
}

// Store manages KeyEntry records in the persistent store.
type Store struct {
	sig SignatureService
}

// New returns a key store using the given signature service; nil means the
// built-in magicsig implementation.
func New(sig SignatureService) *Store {
	if sig == nil {
		sig = magicsig.Service{}
	}
	return &Store{sig: sig}
}

// GetOrCreate loads the domain's key entry, generating and storing one if
// the domain has none. Generation happens at most once per domain:
// concurrent first requests are serialized on the domain key alone, and
// losers observe the winner's entry.
func (s *Store) GetOrCreate(domain string) (*models.KeyEntry, error) {
	if domain == "" {
		return nil, fmt.Errorf("empty domain")
	}
	v, created, err := store.GetOrInsert(keyPrefix+domain, func() ([]byte, error) {
		pubExp, mod, privExp, err := s.sig.Generate()
		if err != nil {
			return nil, err
		}
		e := models.KeyEntry{
			Domain:          domain,
			Mod:             mod,
			PublicExponent:  pubExp,
			PrivateExponent: privExp,
			CreatedTS:       time.Now().UTC().UnixNano(),
		}
		return json.Marshal(e)
	})
	if err != nil {
		return nil, err
	}
	if created {
		metrics.KeysGenerated.Inc()
		logger.Log.Info("magic_key_created", zap.String("domain", domain))
	}
	var e models.KeyEntry
	if err := json.Unmarshal(v, &e); err != nil {
		return nil, fmt.Errorf("invalid stored key entry for %s: %w", domain, err)
	}
	return &e, nil
}

// Get loads the domain's key entry without creating one. Returns ErrNoKey
// when absent.
func (s *Store) Get(domain string) (*models.KeyEntry, error) {
	v, err := store.Get(keyPrefix + domain)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoKey
		}
		return nil, err
	}
	var e models.KeyEntry
	if err := json.Unmarshal(v, &e); err != nil {
		return nil, fmt.Errorf("invalid stored key entry for %s: %w", domain, err)
	}
	return &e, nil
}

// Verify checks a signature over data claimed by the given acct: author
// identity. The author's key is fetched, never created: an unknown domain
// reports false the same way a bad signature does, so callers cannot probe
// which domains have keys.
func (s *Store) Verify(author string, data []byte, sig string) (bool, error) {
	domain, err := protocol.AuthorDomain(author)
	if err != nil {
		return false, nil
	}
	entry, err := s.Get(domain)
	if err != nil {
		if errors.Is(err, ErrNoKey) {
			logger.Log.Info("magic_key_missing", zap.String("domain", domain))
			return false, nil
		}
		return false, err
	}
	ok, err := s.sig.Verify(entry.Mod, entry.PublicExponent, data, sig)
	if err != nil {
		logger.Log.Warn("magic_sig_verify_error", zap.String("domain", domain), zap.Error(err))
		return false, nil
	}
	return ok, nil
}

// PublicKeyURI returns the data: URI form of the entry's public key, per
// the magic-public-key encoding.
func PublicKeyURI(e *models.KeyEntry) string {
	return fmt.Sprintf("data:application/magic-public-key,RSA.%s.%s", e.Mod, e.PublicExponent)
}

// ExportPublicPEM returns the PEM-encoded public key, derived on demand.
func ExportPublicPEM(e *models.KeyEntry) (string, error) {
	return magicsig.PublicPEM(e.Mod, e.PublicExponent)
}

// ExportPrivatePEM returns the PEM-encoded private key, derived on demand.
func ExportPrivatePEM(e *models.KeyEntry) (string, error) {
	return magicsig.PrivatePEM(e.Mod, e.PublicExponent, e.PrivateExponent)
}
