package protocol

import "testing"

func TestVerbSupported(t *testing.T) {
	for _, v := range []string{"checkin", "create", "favorite", "like", "share", "tag", "update"} {
		if !VerbSupported(v) {
			t.Errorf("expected %q to be supported", v)
		}
	}
	for _, v := range []string{"poke", "delete", "follow", "LIKE", ""} {
		if VerbSupported(v) {
			t.Errorf("expected %q to be unsupported", v)
		}
	}
}

func TestKnownTags(t *testing.T) {
	if !KnownProtocol(ProtocolOStatus) || !KnownProtocol(ProtocolActivityPub) {
		t.Fatal("known protocols not recognized")
	}
	if KnownProtocol("webfinger") {
		t.Fatal("unknown protocol recognized")
	}
	if !KnownDirection(DirectionOut) || !KnownDirection(DirectionIn) {
		t.Fatal("known directions not recognized")
	}
	if KnownDirection("sideways") {
		t.Fatal("unknown direction recognized")
	}
}

func TestNormalizeAuthor(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"alice@example.com", "acct:alice@example.com", false},
		{"acct:alice@example.com", "acct:alice@example.com", false},
		{"  bob@host.org  ", "acct:bob@host.org", false},
		{"mailto:alice@example.com", "", true},
		{"https://example.com/alice", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		got, err := NormalizeAuthor(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("NormalizeAuthor(%q): expected error, got %q", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeAuthor(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("NormalizeAuthor(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestAuthorDomain(t *testing.T) {
	d, err := AuthorDomain("acct:alice@example.com")
	if err != nil {
		t.Fatalf("AuthorDomain: %v", err)
	}
	if d != "example.com" {
		t.Fatalf("expected example.com, got %q", d)
	}

	// last @ wins for odd local parts
	d, err = AuthorDomain("acct:we@ird@host.net")
	if err != nil {
		t.Fatalf("AuthorDomain: %v", err)
	}
	if d != "host.net" {
		t.Fatalf("expected host.net, got %q", d)
	}

	for _, bad := range []string{"acct:nodomain", "acct:trailing@", "acct:"} {
		if _, err := AuthorDomain(bad); err == nil {
			t.Errorf("AuthorDomain(%q): expected error", bad)
		}
	}
}
