package dataset

import (
	"github.com/Sternrassler/ya-request/pkg/request"
)

// Entry is the recorded response history of one payload.
type Entry struct {
	// Key is the CacheKey string of the payload
	Key string `json:"key"`

	// URL is the endpoint URL
	URL string `json:"url"`

	// Data is a copy of the request payload
	Data *request.Payload `json:"data"`

	// Responses are ordered oldest first and never exceed the history length
	Responses []*request.Envelope `json:"responses"`
}

// Latest returns the most recent response, or nil.
func (e *Entry) Latest() *request.Envelope {
	if e == nil || len(e.Responses) == 0 {
		return nil
	}
	return e.Responses[len(e.Responses)-1]
}

// record appends env and keeps the newest limit responses.
func (e *Entry) record(env *request.Envelope, limit int) {
	e.Responses = append(e.Responses, env)
	if len(e.Responses) > limit {
		e.Responses = append([]*request.Envelope(nil), e.Responses[len(e.Responses)-limit:]...)
	}
}

// snapshot copies the entry list. Envelopes are shared, not copied.
func snapshot(entries []*Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = *e
		out[i].Responses = append([]*request.Envelope(nil), e.Responses...)
	}
	return out
}
