// Package codec translates between the wire forms of a salmon slap (the
// magic envelope container and its Atom payload) and the bridge's internal
// activity representation.
package codec

import (
	"encoding/xml"
	"fmt"
	"strings"

	"fedbridge/pkg/magicsig"
)

// Envelope is a decoded magic envelope: the payload with its declared
// media type, plus the detached signature.
type Envelope struct {
	Data     []byte
	DataType string
	Encoding string
	Alg      string
	Sig      string
	KeyID    string
}

type magicEnvelopeXML struct {
	XMLName xml.Name `xml:"env"`
	Data    struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"data"`
	Encoding string `xml:"encoding"`
	Alg      string `xml:"alg"`
	Sig      struct {
		KeyID string `xml:"key_id,attr"`
		Value string `xml:",chardata"`
	} `xml:"sig"`
}

// DecodeEnvelope parses a raw me:env document and decodes its base64url
// payload. The signature is returned verbatim; verification is the key
// store's job.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var doc magicEnvelopeXML
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("could not parse body as magic envelope: %w", err)
	}
	env := &Envelope{
		DataType: strings.TrimSpace(doc.Data.Type),
		Encoding: strings.TrimSpace(doc.Encoding),
		Alg:      strings.TrimSpace(doc.Alg),
		Sig:      strings.TrimSpace(doc.Sig.Value),
		KeyID:    strings.TrimSpace(doc.Sig.KeyID),
	}
	if env.DataType == "" {
		env.DataType = magicsig.DataTypeAtom
	}
	if env.Encoding == "" {
		env.Encoding = magicsig.EncodingB64
	}
	if env.Alg == "" {
		env.Alg = magicsig.AlgRSASHA256
	}
	if !strings.EqualFold(env.Encoding, magicsig.EncodingB64) {
		return nil, fmt.Errorf("unsupported envelope encoding %q", env.Encoding)
	}
	if !strings.EqualFold(env.Alg, magicsig.AlgRSASHA256) {
		return nil, fmt.Errorf("unsupported envelope algorithm %q", env.Alg)
	}
	if strings.TrimSpace(doc.Data.Value) == "" {
		return nil, fmt.Errorf("envelope has no data element")
	}
	if env.Sig == "" {
		return nil, fmt.Errorf("envelope has no signature")
	}
	data, err := magicsig.DecodeB64(doc.Data.Value)
	if err != nil {
		return nil, fmt.Errorf("could not decode envelope data: %w", err)
	}
	env.Data = data
	return env, nil
}
