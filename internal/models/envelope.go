package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidEnvelope is returned when an envelope document does not match
// the {"fingerprint"?: string, "data": string} shape.
var ErrInvalidEnvelope = errors.New("invalid envelope")

const envelopeSchemaJSON = `{
  "type": "object",
  "required": ["data"],
  "properties": {
    "fingerprint": {"type": "string"},
    "data": {"type": "string"}
  }
}`

var envelopeSchema = mustCompileSchema(envelopeSchemaJSON)

func mustCompileSchema(def string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(def))
	if err != nil {
		panic(fmt.Sprintf("compile envelope schema: %v", err))
	}
	return s
}

// Envelope is the outer wire object of a shared payload. It is either an
// EncryptedEnvelope or a PlainEnvelope; the variant is fixed by ParseEnvelope.
type Envelope interface {
	// Payload returns the data field: ciphertext for encrypted envelopes,
	// the plaintext JSON document otherwise.
	Payload() string
	isEnvelope()
}

// EncryptedEnvelope carries ciphertext addressed to one group.
type EncryptedEnvelope struct {
	Fingerprint Fingerprint
	Data        string
}

// PlainEnvelope carries an unencrypted transaction document.
type PlainEnvelope struct {
	Data string
}

func (e EncryptedEnvelope) Payload() string { return e.Data }
func (EncryptedEnvelope) isEnvelope()       {}
func (e PlainEnvelope) Payload() string     { return e.Data }
func (PlainEnvelope) isEnvelope()           {}

type wireEnvelope struct {
	Fingerprint *string `json:"fingerprint,omitempty"`
	Data        string  `json:"data"`
}

// MarshalEnvelope serializes e. An encrypted envelope without a fingerprint
// is rejected because it would be read back as plaintext.
func MarshalEnvelope(e Envelope) ([]byte, error) {
	var w wireEnvelope
	switch v := e.(type) {
	case EncryptedEnvelope:
		if v.Fingerprint == "" {
			return nil, fmt.Errorf("%w: encrypted envelope without fingerprint", ErrInvalidEnvelope)
		}
		fp := string(v.Fingerprint)
		w = wireEnvelope{Fingerprint: &fp, Data: v.Data}
	case PlainEnvelope:
		w = wireEnvelope{Data: v.Data}
	default:
		return nil, fmt.Errorf("%w: unknown envelope type %T", ErrInvalidEnvelope, e)
	}
	return json.Marshal(w)
}

// ParseEnvelope validates raw against the envelope schema and returns the
// matching variant. The presence of the fingerprint key alone decides the
// variant.
func ParseEnvelope(raw []byte) (Envelope, error) {
	result, err := envelopeSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnvelope, strings.Join(msgs, "; "))
	}

	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if w.Fingerprint != nil {
		return EncryptedEnvelope{Fingerprint: Fingerprint(*w.Fingerprint), Data: w.Data}, nil
	}
	return PlainEnvelope{Data: w.Data}, nil
}
