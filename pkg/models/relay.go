package models

// Relay record statuses. A record starts at new and is advanced by the
// webmention dispatcher as delivery progresses.
const (
	StatusNew      = "new"
	StatusComplete = "complete"
	StatusError    = "error"
)

// RelayRecord is one reply, like, repost, or other interaction that the
// bridge has relayed (or is relaying) from a source URL to a target URL.
//
// ID is the escaped 'SOURCE_URL TARGET_URL' pair, e.g.
// "http://a/reply http://orig/post". The pair is the record's identity:
// re-processing the same interaction resolves to the same record.
type RelayRecord struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Protocol  string `json:"protocol,omitempty"`
	Direction string `json:"direction,omitempty"`

	// usually only one of these at most will be populated.
	SourceMF2  string `json:"source_mf2,omitempty"`
	SourceAS2  string `json:"source_as2,omitempty"`
	SourceAtom string `json:"source_atom,omitempty"`

	// Created/Updated timestamps (ns); Created set once at insertion,
	// Updated refreshed on every write.
	CreatedTS int64 `json:"created_ts"`
	UpdatedTS int64 `json:"updated_ts"`
}

// ValidStatus reports whether s is a recognized relay status.
func ValidStatus(s string) bool {
	return s == StatusNew || s == StatusComplete || s == StatusError
}
