// Package magicsig implements Magic Signatures: RSA-SHA256 signatures over
// magic-envelope payloads, with key material exchanged as base64url-encoded
// big-integer components.
//
// Details:
// http://salmon-protocol.googlecode.com/svn/trunk/draft-panzer-magicsig-01.html
// http://salmon-protocol.googlecode.com/svn/trunk/draft-panzer-salmon-00.html
package magicsig

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"strings"
)

// Envelope defaults per the salmon protocol. Slaps carry Atom payloads
// encoded base64url and signed RSA-SHA256.
const (
	DataTypeAtom = "application/atom+xml"
	EncodingB64  = "base64url"
	AlgRSASHA256 = "RSA-SHA256"
)

// KeyBits is the RSA modulus size for generated keys.
const KeyBits = 2048

// Generate creates a new RSA key pair and returns its base64url-encoded
// components in (public exponent, modulus, private exponent) order.
//
// This uses a secure randomness source and does nontrivial math, so it can
// take a while depending on the amount of randomness available.
func Generate() (pubExp, mod, privExp string, err error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return "", "", "", fmt.Errorf("rsa keygen failed: %w", err)
	}
	return BigToB64(big.NewInt(int64(key.E))), BigToB64(key.N), BigToB64(key.D), nil
}

// SigningBase builds the string that is actually signed: the base64url
// encodings of the payload, its media type, the encoding tag, and the
// algorithm tag, joined with periods.
func SigningBase(data []byte, dataType string) []byte {
	parts := []string{
		base64.RawURLEncoding.EncodeToString(data),
		base64.RawURLEncoding.EncodeToString([]byte(dataType)),
		base64.RawURLEncoding.EncodeToString([]byte(EncodingB64)),
		base64.RawURLEncoding.EncodeToString([]byte(AlgRSASHA256)),
	}
	return []byte(strings.Join(parts, "."))
}

// Sign signs the payload with the private key given by its components and
// returns the base64url-encoded signature.
func Sign(mod, pubExp, privExp string, data []byte, dataType string) (string, error) {
	key, err := privateKey(mod, pubExp, privExp)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(SigningBase(data, dataType))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("rsa sign failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify checks a base64url-encoded signature over the payload against the
// public key given by its components. A malformed signature or a mismatch
// both report false; only key-material problems surface as errors.
func Verify(mod, pubExp string, data []byte, dataType, sig string) (bool, error) {
	pub, err := publicKey(mod, pubExp)
	if err != nil {
		return false, err
	}
	raw, err := DecodeB64(sig)
	if err != nil {
		return false, nil
	}
	digest := sha256.Sum256(SigningBase(data, dataType))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], raw); err != nil {
		return false, nil
	}
	return true, nil
}

// PublicPEM returns the PEM-encoded SubjectPublicKeyInfo form of the key.
func PublicPEM(mod, pubExp string) (string, error) {
	pub, err := publicKey(mod, pubExp)
	if err != nil {
		return "", err
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key failed: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// PrivatePEM returns the PEM-encoded PKCS#1 form of the private key. The
// prime factors are not stored with the key components, so they are
// recovered from (n, e, d) first.
func PrivatePEM(mod, pubExp, privExp string) (string, error) {
	key, err := privateKey(mod, pubExp, privExp)
	if err != nil {
		return "", err
	}
	der := x509.MarshalPKCS1PrivateKey(key)
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})), nil
}

// BigToB64 encodes the big-endian bytes of v as base64url without padding.
func BigToB64(v *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(v.Bytes())
}

// B64ToBig decodes a base64url string into a big integer.
func B64ToBig(s string) (*big.Int, error) {
	b, err := DecodeB64(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

// DecodeB64 decodes base64url input tolerantly: surrounding whitespace and
// padding are accepted, as senders differ on both.
func DecodeB64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
	s = strings.TrimRight(s, "=")
	return base64.RawURLEncoding.DecodeString(s)
}

func publicKey(mod, pubExp string) (*rsa.PublicKey, error) {
	n, err := B64ToBig(mod)
	if err != nil {
		return nil, fmt.Errorf("bad modulus: %w", err)
	}
	e, err := B64ToBig(pubExp)
	if err != nil {
		return nil, fmt.Errorf("bad public exponent: %w", err)
	}
	if !e.IsInt64() || e.Int64() < 3 {
		return nil, fmt.Errorf("implausible public exponent")
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func privateKey(mod, pubExp, privExp string) (*rsa.PrivateKey, error) {
	pub, err := publicKey(mod, pubExp)
	if err != nil {
		return nil, err
	}
	d, err := B64ToBig(privExp)
	if err != nil {
		return nil, fmt.Errorf("bad private exponent: %w", err)
	}
	p, q, err := recoverPrimes(pub.N, big.NewInt(int64(pub.E)), d)
	if err != nil {
		return nil, err
	}
	key := &rsa.PrivateKey{
		PublicKey: *pub,
		D:         d,
		Primes:    []*big.Int{p, q},
	}
	key.Precompute()
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("reconstructed key invalid: %w", err)
	}
	return key, nil
}

// recoverPrimes factors the modulus given a consistent (n, e, d) triple,
// using the probabilistic method from NIST SP 800-56B appendix C. It only
// fails on inconsistent inputs.
func recoverPrimes(n, e, d *big.Int) (*big.Int, *big.Int, error) {
	one := big.NewInt(1)
	// k = d*e - 1 = 2^t * r with r odd
	k := new(big.Int).Mul(d, e)
	k.Sub(k, one)
	if k.Bit(0) == 1 {
		return nil, nil, fmt.Errorf("inconsistent rsa key components")
	}
	t := 0
	r := new(big.Int).Set(k)
	for r.Bit(0) == 0 {
		r.Rsh(r, 1)
		t++
	}

	nMinus1 := new(big.Int).Sub(n, one)
	for attempt := 0; attempt < 100; attempt++ {
		g, err := rand.Int(rand.Reader, n)
		if err != nil {
			return nil, nil, err
		}
		if g.Sign() == 0 {
			continue
		}
		y := new(big.Int).Exp(g, r, n)
		if y.Cmp(one) == 0 || y.Cmp(nMinus1) == 0 {
			continue
		}
		for i := 0; i < t; i++ {
			x := new(big.Int).Exp(y, big.NewInt(2), n)
			if x.Cmp(one) == 0 {
				// y is a nontrivial square root of 1 mod n
				p := new(big.Int).GCD(nil, nil, new(big.Int).Sub(y, one), n)
				q := new(big.Int).Div(n, p)
				if new(big.Int).Mul(p, q).Cmp(n) == 0 && p.Cmp(one) > 0 && q.Cmp(one) > 0 {
					return p, q, nil
				}
				break
			}
			if x.Cmp(nMinus1) == 0 {
				break
			}
			y = x
		}
	}
	return nil, nil, fmt.Errorf("could not recover prime factors from key components")
}

// Service is the concrete signature service backed by this package. It
// satisfies the interface the key store expects.
type Service struct{}

// Generate implements keys.SignatureService.
func (Service) Generate() (pubExp, mod, privExp string, err error) {
	return Generate()
}

// Verify implements keys.SignatureService, assuming the salmon envelope
// defaults (Atom payload, base64url, RSA-SHA256).
func (Service) Verify(mod, pubExp string, data []byte, sig string) (bool, error) {
	return Verify(mod, pubExp, data, DataTypeAtom, sig)
}
