// Package testutil provides an envelope-speaking mock backend for tests.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// MockResponse defines the behavior for a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration

	// Gate, when set, holds the response until it is closed or the client
	// goes away.
	Gate <-chan struct{}
}

// MockBackend is a configurable mock server for dispatcher tests.
type MockBackend struct {
	server    *httptest.Server
	mu        sync.RWMutex
	responses map[string]MockResponse
	counts    map[string]int
	bodies    map[string][]byte
	arrivals  chan string
}

// NewMockBackend creates and starts a mock backend.
func NewMockBackend() *MockBackend {
	m := &MockBackend{
		responses: make(map[string]MockResponse),
		counts:    make(map[string]int),
		bodies:    make(map[string][]byte),
		arrivals:  make(chan string, 64),
	}

	r := chi.NewRouter()
	r.Use(m.track)
	r.HandleFunc("/*", m.serve)
	m.server = httptest.NewServer(r)

	return m
}

// URL returns the server base URL.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// Close shuts down the server.
func (m *MockBackend) Close() {
	m.server.Close()
}

// Reset clears tracking counters and configured responses.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = make(map[string]MockResponse)
	m.counts = make(map[string]int)
	m.bodies = make(map[string][]byte)
}

// SetResponse configures the response for a path.
func (m *MockBackend) SetResponse(path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = resp
}

// SetEnvelope configures a 200 response carrying an envelope.
func (m *MockBackend) SetEnvelope(path string, code any, message, body string) {
	m.SetResponse(path, NewEnvelopeResponse(code, message, body))
}

// RequestCount returns the number of requests received for path.
func (m *MockBackend) RequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[path]
}

// TotalRequests returns the number of requests received for all paths.
func (m *MockBackend) TotalRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.counts {
		total += n
	}
	return total
}

// LastBody returns the last request body received for path.
func (m *MockBackend) LastBody(path string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bodies[path]
}

// Arrivals yields the path of every request as it arrives.
func (m *MockBackend) Arrivals() <-chan string {
	return m.arrivals
}

// WaitArrival blocks until a request for path arrives or timeout elapses.
func (m *MockBackend) WaitArrival(path string, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		select {
		case p := <-m.arrivals:
			if p == path {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("no request for %s within %v", path, timeout)
		}
	}
}

func (m *MockBackend) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		m.mu.Lock()
		m.counts[r.URL.Path]++
		m.bodies[r.URL.Path] = body
		m.mu.Unlock()

		select {
		case m.arrivals <- r.URL.Path:
		default:
		}

		next.ServeHTTP(w, r)
	})
}

func (m *MockBackend) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	resp, exists := m.responses[r.URL.Path]
	m.mu.RUnlock()

	if !exists {
		resp = NewEnvelopeResponse(10000, "", `{}`)
	}

	if resp.Gate != nil {
		select {
		case <-resp.Gate:
		case <-r.Context().Done():
			return
		}
	}
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// EnvelopeJSON renders an envelope. code may be a number or a string.
func EnvelopeJSON(code any, message, body string) string {
	if body == "" {
		body = "null"
	}
	codeJSON := fmt.Sprintf("%v", code)
	if s, ok := code.(string); ok {
		codeJSON = fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf(`{"header":{"code":%s,"message":%q},"body":%s}`, codeJSON, message, body)
}

// NewEnvelopeResponse creates a 200 OK response carrying an envelope.
func NewEnvelopeResponse(code any, message, body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       EnvelopeJSON(code, message, body),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response with a plain-text body.
func NewServerErrorResponse(text string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       text,
		Headers: map[string]string{
			"Content-Type": "text/plain; charset=utf-8",
		},
	}
}

// NewGatedResponse creates an envelope response held until gate is closed.
func NewGatedResponse(gate <-chan struct{}, code any, body string) MockResponse {
	resp := NewEnvelopeResponse(code, "", body)
	resp.Gate = gate
	return resp
}
