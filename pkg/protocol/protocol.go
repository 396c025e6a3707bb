// Package protocol holds the shared enumerations of the bridge: the
// activity verbs we relay, the inbound protocol tags, relay directions,
// and the acct: URI scheme rule for author identities.
package protocol

import (
	"fmt"
	"strings"
)

// Protocol tags recorded on relay records.
const (
	ProtocolActivityPub = "activitypub"
	ProtocolOStatus     = "ostatus"
)

// Relay directions relative to this bridge.
const (
	DirectionOut = "out"
	DirectionIn  = "in"
)

// AcctScheme is the only author identity scheme accepted on salmon slaps.
const AcctScheme = "acct"

// supportedVerbs is the set of activity verbs the bridge relays. Verb-less
// activities (plain posts) are also accepted; see VerbSupported callers.
var supportedVerbs = map[string]struct{}{
	"checkin":  {},
	"create":   {},
	"favorite": {},
	"like":     {},
	"share":    {},
	"tag":      {},
	"update":   {},
}

// VerbSupported reports whether verb is in the supported set.
func VerbSupported(verb string) bool {
	_, ok := supportedVerbs[verb]
	return ok
}

// KnownProtocol reports whether tag is a recognized protocol tag.
func KnownProtocol(tag string) bool {
	return tag == ProtocolActivityPub || tag == ProtocolOStatus
}

// KnownDirection reports whether dir is a recognized direction tag.
func KnownDirection(dir string) bool {
	return dir == DirectionOut || dir == DirectionIn
}

// NormalizeAuthor applies the acct: scheme rule to an author identity URI.
// A schemeless identity (e.g. "alice@example.com") gets the acct: prefix;
// an identity with any scheme other than acct: is an error.
func NormalizeAuthor(uri string) (string, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", fmt.Errorf("empty author URI")
	}
	if !strings.Contains(uri, ":") {
		return AcctScheme + ":" + uri, nil
	}
	if !strings.HasPrefix(uri, AcctScheme+":") {
		return "", fmt.Errorf("author URI %s has unsupported scheme; expected %s:", uri, AcctScheme)
	}
	return uri, nil
}

// AuthorDomain extracts the domain from a normalized acct: identity,
// e.g. "acct:alice@example.com" -> "example.com".
func AuthorDomain(acct string) (string, error) {
	rest := strings.TrimPrefix(acct, AcctScheme+":")
	at := strings.LastIndex(rest, "@")
	if at < 0 || at == len(rest)-1 {
		return "", fmt.Errorf("author URI %s has no domain part", acct)
	}
	return rest[at+1:], nil
}
