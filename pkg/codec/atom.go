package codec

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Activity is the internal representation of a social action: an actor, a
// verb, and the pages it connects.
type Activity struct {
	ID        string
	URL       string // the source page describing this interaction
	Verb      string
	Actor     Actor
	Object    Object
	InReplyTo []string
}

// Actor identifies who performed the activity.
type Actor struct {
	Name  string
	URL   string
	Email string
}

// Object is what the activity acted on (the liked post, the shared page).
type Object struct {
	ID  string
	URL string
}

const verbIRIPrefix = "http://activitystrea.ms/schema/1.0/"

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

type atomAuthor struct {
	Name  string `xml:"name"`
	URI   string `xml:"uri"`
	Email string `xml:"email"`
}

type atomObject struct {
	ID    string     `xml:"id"`
	Links []atomLink `xml:"link"`
}

type atomEntryXML struct {
	ID        string     `xml:"id"`
	Title     string     `xml:"title"`
	Content   string     `xml:"content"`
	Verb      string     `xml:"verb"`
	Author    atomAuthor `xml:"author"`
	Links     []atomLink `xml:"link"`
	InReplyTo []struct {
		Ref  string `xml:"ref,attr"`
		Href string `xml:"href,attr"`
	} `xml:"in-reply-to"`
	Object *atomObject `xml:"object"`
}

type atomFeedXML struct {
	Entries []atomEntryXML `xml:"entry"`
}

// Entry is a parsed Atom activity entry, structurally valid but not yet
// translated. ParseEntry proves well-formedness; ToActivity proves meaning.
type Entry struct {
	raw atomEntryXML
}

// ParseEntry parses the payload as an Atom entry (or a feed, in which case
// the first entry is taken). It fails on malformed markup or on documents
// that are not Atom activities at all.
func ParseEntry(data []byte) (*Entry, error) {
	root, err := rootName(data)
	if err != nil {
		return nil, fmt.Errorf("could not parse envelope data as XML: %w", err)
	}
	switch root {
	case "entry":
		var e atomEntryXML
		if err := xml.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("could not parse envelope data as XML: %w", err)
		}
		return &Entry{raw: e}, nil
	case "feed":
		var f atomFeedXML
		if err := xml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("could not parse envelope data as XML: %w", err)
		}
		if len(f.Entries) == 0 {
			return nil, fmt.Errorf("atom feed has no entries")
		}
		return &Entry{raw: f.Entries[0]}, nil
	default:
		return nil, fmt.Errorf("expected atom entry, got <%s>", root)
	}
}

// Verb returns the entry's activity verb in short form ("like", "share"),
// or "" for verb-less entries (plain posts).
func (e *Entry) Verb() string {
	v := strings.TrimSpace(e.raw.Verb)
	if v == "" {
		return ""
	}
	if strings.HasPrefix(v, verbIRIPrefix) {
		return strings.TrimPrefix(v, verbIRIPrefix)
	}
	// other IRI-valued verbs: keep the last path segment
	if i := strings.LastIndex(v, "/"); i >= 0 && strings.Contains(v, "://") {
		return v[i+1:]
	}
	return v
}

// AuthorURI returns the actor's identity URI: the author uri element, or
// the email address when no uri is present.
func (e *Entry) AuthorURI() string {
	if u := strings.TrimSpace(e.raw.Author.URI); u != "" {
		return u
	}
	return strings.TrimSpace(e.raw.Author.Email)
}

// ToActivity translates a parsed entry into the internal activity form.
// It fails when the entry lacks the pieces a relay needs: a source URL for
// the interaction itself.
func ToActivity(e *Entry) (*Activity, error) {
	act := &Activity{
		ID:   strings.TrimSpace(e.raw.ID),
		Verb: e.Verb(),
		Actor: Actor{
			Name:  strings.TrimSpace(e.raw.Author.Name),
			URL:   strings.TrimSpace(e.raw.Author.URI),
			Email: strings.TrimSpace(e.raw.Author.Email),
		},
	}
	act.URL = pickAlternate(e.raw.Links)
	if act.URL == "" {
		act.URL = act.ID
	}
	if act.URL == "" {
		return nil, fmt.Errorf("activity has no id or url")
	}
	for _, irt := range e.raw.InReplyTo {
		href := strings.TrimSpace(irt.Href)
		if href == "" {
			href = strings.TrimSpace(irt.Ref)
		}
		if href != "" {
			act.InReplyTo = append(act.InReplyTo, href)
		}
	}
	if o := e.raw.Object; o != nil {
		act.Object.ID = strings.TrimSpace(o.ID)
		act.Object.URL = pickAlternate(o.Links)
		if act.Object.URL == "" {
			act.Object.URL = act.Object.ID
		}
	}
	return act, nil
}

// pickAlternate returns the href of the alternate link, preferring
// text/html, falling back to any link with an href.
func pickAlternate(links []atomLink) string {
	var alt, any string
	for _, l := range links {
		href := strings.TrimSpace(l.Href)
		if href == "" {
			continue
		}
		switch l.Rel {
		case "alternate", "":
			if l.Type == "" || strings.HasPrefix(l.Type, "text/html") {
				if alt == "" {
					alt = href
				}
			}
			if any == "" {
				any = href
			}
		}
	}
	if alt != "" {
		return alt
	}
	return any
}

func rootName(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return "", fmt.Errorf("empty document")
			}
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}
