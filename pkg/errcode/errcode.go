// Package errcode maps envelope result codes to human-readable messages.
//
// Tables are plain YAML maps keyed by result code:
//
//	"40001": "Wrong user name or password"
//	"50001": "Service temporarily unavailable"
package errcode

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GenericMessage is shown when neither the table nor the envelope carries a message.
const GenericMessage = "Something went wrong, please try again later."

// Table maps result codes to messages.
type Table map[string]string

// Parse reads a YAML table.
func Parse(data []byte) (Table, error) {
	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error code table: %w", err)
	}
	t := make(Table, len(raw))
	for code, msg := range raw {
		t[strings.TrimSpace(code)] = msg
	}
	return t, nil
}

// Load reads a YAML table from a file.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read error code table: %w", err)
	}
	return Parse(data)
}

// Lookup returns the message registered for code.
func (t Table) Lookup(code string) (string, bool) {
	if t == nil {
		return "", false
	}
	msg, ok := t[code]
	return msg, ok && msg != ""
}

// Message resolves the text to show for code: the table entry first, then
// fallback (usually the envelope's own message), then GenericMessage.
func (t Table) Message(code, fallback string) string {
	if msg, ok := t.Lookup(code); ok {
		return msg
	}
	if fallback != "" {
		return fallback
	}
	return GenericMessage
}

// Merge returns a new table with entries of other overriding t.
func (t Table) Merge(other Table) Table {
	out := make(Table, len(t)+len(other))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
