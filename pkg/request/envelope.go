package request

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Success result codes.
const (
	CodeOK       Code = "10000"
	CodeAccepted Code = "20000"
)

// Code is an envelope result code. Servers send it either as a JSON number
// or as a string; both decode to the same Code.
type Code string

// IsSuccess reports whether the code denotes success.
func (c Code) IsSuccess() bool {
	return c == CodeOK || c == CodeAccepted
}

// UnmarshalJSON accepts numbers and strings.
func (c *Code) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("decode code: %w", err)
		}
		*c = Code(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode code: %w", err)
	}
	*c = Code(n.String())
	return nil
}

// MarshalJSON writes integer codes as numbers and anything else as a string.
func (c Code) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(c), 10, 64); err == nil {
		return []byte(c), nil
	}
	return json.Marshal(string(c))
}

// EnvelopeHeader is the result header of a response envelope.
type EnvelopeHeader struct {
	Code    Code   `json:"code"`
	Message string `json:"message,omitempty"`

	// Success is stamped locally after classification.
	Success bool `json:"success"`
}

// Envelope is the structured response wrapper returned by the backend.
type Envelope struct {
	Header EnvelopeHeader  `json:"header"`
	Body   json.RawMessage `json:"body,omitempty"`

	// Raw holds the undecoded response body for text responses and raw callbacks.
	Raw []byte `json:"-"`
}

// DecodeBody unmarshals the envelope body into v.
func (e *Envelope) DecodeBody(v any) error {
	if e == nil || len(e.Body) == 0 {
		return fmt.Errorf("envelope has no body")
	}
	return json.Unmarshal(e.Body, v)
}

// Payload is the request body sent to the backend.
type Payload struct {
	Header map[string]any `json:"header"`
	Body   map[string]any `json:"body"`
}

// Clone copies both sections one level deep.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return &Payload{Header: map[string]any{}, Body: map[string]any{}}
	}
	return &Payload{Header: cloneMap(p.Header), Body: cloneMap(p.Body)}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Canonical serializes v with a stable key order so that structurally equal
// payloads produce equal strings. Map keys are sorted by encoding/json.
func Canonical(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical payload: %w", err)
	}
	return string(b), nil
}
