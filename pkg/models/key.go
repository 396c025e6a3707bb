package models

// KeyEntry stores one domain's public/private RSA key pair used for Magic
// Signatures. The domain is the key's identity; at most one entry exists
// per domain.
//
// The modulus and exponents are encoded as base64url (URL-safe base64)
// strings as described in RFC 4648 and section 5.1 of the Magic Signatures
// spec. PEM and data: URI forms are derived on demand, never persisted.
type KeyEntry struct {
	Domain          string `json:"domain"`
	Mod             string `json:"mod"`
	PublicExponent  string `json:"public_exponent"`
	PrivateExponent string `json:"private_exponent"`
	// Created timestamp (ns), set once at generation
	CreatedTS int64 `json:"created_ts,omitempty"`
}
