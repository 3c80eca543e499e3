package request

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/ya-request/internal/testutil"
	"github.com/Sternrassler/ya-request/pkg/env"
	"github.com/Sternrassler/ya-request/pkg/errcode"
	"github.com/Sternrassler/ya-request/pkg/hook"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

type recordingAlerter struct {
	mu       sync.Mutex
	messages []string
}

func (a *recordingAlerter) Alert(message string, icon IconType) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, message)
}

func (a *recordingAlerter) Messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.messages...)
}

type countingIndicator struct {
	shows atomic.Int32
	hides atomic.Int32
}

func (c *countingIndicator) ShowIndicator() { c.shows.Add(1) }
func (c *countingIndicator) HideIndicator() { c.hides.Add(1) }

type fakeScope struct {
	shows atomic.Int32
	hides atomic.Int32
	done  chan struct{}
}

func newFakeScope() *fakeScope { return &fakeScope{done: make(chan struct{})} }

func (s *fakeScope) ShowMask()             { s.shows.Add(1) }
func (s *fakeScope) HideMask()             { s.hides.Add(1) }
func (s *fakeScope) Done() <-chan struct{} { return s.done }

type harness struct {
	backend   *testutil.MockBackend
	d         *Dispatcher
	alerts    *recordingAlerter
	indicator *countingIndicator
}

// newHarness creates a dispatcher talking to a fresh mock backend.
func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	backend := testutil.NewMockBackend()
	t.Cleanup(backend.Close)

	alerts := &recordingAlerter{}
	indicator := &countingIndicator{}
	logger := zerolog.Nop()

	cfg := DefaultConfig(backend.URL())
	cfg.Alerter = alerts
	cfg.Indicator = indicator
	cfg.Logger = &logger
	if mutate != nil {
		mutate(&cfg)
	}

	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &harness{backend: backend, d: d, alerts: alerts, indicator: indicator}
}

type settled struct {
	env *Envelope
	err error
}

func (h *harness) dispatchAsync(req *Request, opts ...Option) <-chan settled {
	ch := make(chan settled, 1)
	go func() {
		env, err := h.d.Dispatch(context.Background(), req, opts...)
		ch <- settled{env, err}
	}()
	return ch
}

func waitResult(t *testing.T, ch <-chan settled) settled {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for request to settle")
		return settled{}
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		origin      string
		expectError bool
	}{
		{"absolute origin", "http://localhost:8080", false},
		{"empty origin", "", false},
		{"relative origin", "/app", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{Origin: tt.origin})
			if tt.expectError && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestDispatch_NilRequest(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.d.Dispatch(context.Background(), nil); !errors.Is(err, ErrNilRequest) {
		t.Errorf("Expected ErrNilRequest, got %v", err)
	}
}

func TestDispatch_Success(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetEnvelope("/login", 10000, "", `{"token":"abc"}`)

	var successCalls int
	env, err := h.d.Dispatch(context.Background(), &Request{
		URL:       "/login",
		Payload:   &Payload{Body: map[string]any{"user": "alice"}},
		OnSuccess: func(*Envelope) { successCalls++ },
		OnError:   func(error) { t.Error("OnError must not be called on success") },
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if !env.Header.Success {
		t.Error("Expected Success flag to be stamped")
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := env.DecodeBody(&body); err != nil || body.Token != "abc" {
		t.Errorf("DecodeBody = %q, %v", body.Token, err)
	}
	if successCalls != 1 {
		t.Errorf("OnSuccess called %d times, want 1", successCalls)
	}
	if n := len(h.alerts.Messages()); n != 0 {
		t.Errorf("Expected no alerts, got %d", n)
	}
	if h.indicator.shows.Load() != 1 || h.indicator.hides.Load() != 1 {
		t.Errorf("Indicator shows=%d hides=%d, want 1/1", h.indicator.shows.Load(), h.indicator.hides.Load())
	}
	if h.d.InFlight() != 0 {
		t.Errorf("InFlight = %d after settle", h.d.InFlight())
	}
	if !strings.Contains(string(h.backend.LastBody("/login")), `"user":"alice"`) {
		t.Errorf("Backend received %s", h.backend.LastBody("/login"))
	}
}

func TestDispatch_StringCodeSuccess(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetEnvelope("/save", "20000", "", `null`)

	env, err := h.d.Post(context.Background(), "/save", nil)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if env.Header.Code != CodeAccepted || !env.Header.Success {
		t.Errorf("Header = %+v", env.Header)
	}
}

func TestDispatch_BusinessError(t *testing.T) {
	tests := []struct {
		name        string
		table       errcode.Table
		wantMessage string
	}{
		{"envelope message", nil, "bad password"},
		{"table message", errcode.Table{"40001": "Wrong user name or password"}, "Wrong user name or password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(cfg *Config) { cfg.ErrorCodes = tt.table })
			h.backend.SetEnvelope("/login", 40001, "bad password", `null`)

			var onError error
			_, err := h.d.Dispatch(context.Background(), &Request{
				URL:       "/login",
				OnSuccess: func(*Envelope) { t.Error("OnSuccess must not be called") },
				OnError:   func(err error) { onError = err },
			})

			var berr *BusinessError
			if !errors.As(err, &berr) {
				t.Fatalf("Expected *BusinessError, got %T: %v", err, err)
			}
			if berr.Code() != "40001" {
				t.Errorf("Code = %q, want 40001", berr.Code())
			}
			if berr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", berr.Message, tt.wantMessage)
			}
			if berr.Envelope.Header.Success {
				t.Error("Success flag must be false")
			}
			if onError != err {
				t.Errorf("OnError received %v", onError)
			}

			alerts := h.alerts.Messages()
			if len(alerts) != 1 || alerts[0] != tt.wantMessage {
				t.Errorf("Alerts = %v, want [%s]", alerts, tt.wantMessage)
			}
		})
	}
}

func TestDispatch_GenericMessage(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetEnvelope("/x", 50001, "", `null`)

	_, err := h.d.Post(context.Background(), "/x", nil)
	var berr *BusinessError
	if !errors.As(err, &berr) || berr.Message != errcode.GenericMessage {
		t.Errorf("Expected generic message, got %v", err)
	}
}

func TestDispatch_Silent(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetEnvelope("/login", 40001, "bad password", `null`)

	_, err := h.d.Post(context.Background(), "/login", nil, Silent())
	var berr *BusinessError
	if !errors.As(err, &berr) {
		t.Fatalf("Expected *BusinessError, got %v", err)
	}
	if n := len(h.alerts.Messages()); n != 0 {
		t.Errorf("Expected no alerts when silent, got %d", n)
	}

	silence40001 := SilentWhen(func(env *Envelope, _ error) bool {
		return env != nil && env.Header.Code == "40001"
	})
	h.d.Post(context.Background(), "/login", nil, silence40001)
	if n := len(h.alerts.Messages()); n != 0 {
		t.Errorf("SilentWhen should suppress 40001, got %d alerts", n)
	}

	h.backend.SetEnvelope("/login", 40002, "locked", `null`)
	h.d.Post(context.Background(), "/login", nil, silence40001)
	if alerts := h.alerts.Messages(); len(alerts) != 1 || alerts[0] != "locked" {
		t.Errorf("Alerts = %v, want [locked]", alerts)
	}
}

func TestDispatch_PanickingAlerter(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Alerter = AlertFunc(func(string, IconType) { panic("ui gone") })
	})
	h.backend.SetEnvelope("/login", 40001, "bad password", `null`)

	_, err := h.d.Post(context.Background(), "/login", nil)
	var berr *BusinessError
	if !errors.As(err, &berr) {
		t.Errorf("Expected *BusinessError despite alerter panic, got %v", err)
	}
}

func TestDispatch_IgnoreDuplicate(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	h.backend.SetResponse("/search", testutil.NewGatedResponse(gate, 10000, `{"items":[]}`))

	before := promtestutil.ToFloat64(duplicatesTotal.WithLabelValues(string(Ignore)))
	payload := &Payload{Body: map[string]any{"q": "shoes"}}

	first := h.dispatchAsync(&Request{URL: "/search", Payload: payload})
	if err := h.backend.WaitArrival("/search", 5*time.Second); err != nil {
		t.Fatal(err)
	}

	var callbacks int
	_, err := h.d.Dispatch(context.Background(), &Request{
		URL:       "/search",
		Payload:   &Payload{Body: map[string]any{"q": " shoes "}},
		OnSuccess: func(*Envelope) { callbacks++ },
		OnError:   func(error) { callbacks++ },
	})
	if !IsIgnored(err) {
		t.Errorf("Expected ErrIgnored, got %v", err)
	}
	if callbacks != 0 {
		t.Errorf("Ignored request ran %d callbacks", callbacks)
	}

	close(gate)
	if r := waitResult(t, first); r.err != nil {
		t.Errorf("First request failed: %v", r.err)
	}

	if n := h.backend.RequestCount("/search"); n != 1 {
		t.Errorf("Backend received %d requests, want 1", n)
	}
	if h.indicator.shows.Load() != 1 {
		t.Errorf("Ignored request showed the indicator (shows=%d)", h.indicator.shows.Load())
	}
	if n := len(h.alerts.Messages()); n != 0 {
		t.Errorf("Expected no alerts, got %d", n)
	}
	if got := promtestutil.ToFloat64(duplicatesTotal.WithLabelValues(string(Ignore))) - before; got != 1 {
		t.Errorf("Ignored duplicates metric delta = %v, want 1", got)
	}
}

func TestDispatch_DifferentPayloadIsNotDuplicate(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	h.backend.SetResponse("/search", testutil.NewGatedResponse(gate, 10000, `null`))

	first := h.dispatchAsync(&Request{URL: "/search", Payload: &Payload{Body: map[string]any{"q": "a"}}})
	if err := h.backend.WaitArrival("/search", 5*time.Second); err != nil {
		t.Fatal(err)
	}
	second := h.dispatchAsync(&Request{URL: "/search", Payload: &Payload{Body: map[string]any{"q": "b"}}})
	if err := h.backend.WaitArrival("/search", 5*time.Second); err != nil {
		t.Fatal(err)
	}

	close(gate)
	for _, ch := range []<-chan settled{first, second} {
		if r := waitResult(t, ch); r.err != nil {
			t.Errorf("Request failed: %v", r.err)
		}
	}
	if n := h.backend.RequestCount("/search"); n != 2 {
		t.Errorf("Backend received %d requests, want 2", n)
	}
}

func TestDispatch_WithoutDataComparison(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	h.backend.SetResponse("/search", testutil.NewGatedResponse(gate, 10000, `null`))

	first := h.dispatchAsync(&Request{URL: "/search", Payload: &Payload{Body: map[string]any{"q": "a"}}},
		WithoutDataComparison())
	if err := h.backend.WaitArrival("/search", 5*time.Second); err != nil {
		t.Fatal(err)
	}

	_, err := h.d.Dispatch(context.Background(),
		&Request{URL: "/search", Payload: &Payload{Body: map[string]any{"q": "b"}}},
		WithoutDataComparison())
	if !IsIgnored(err) {
		t.Errorf("Expected ErrIgnored for same URL, got %v", err)
	}

	close(gate)
	waitResult(t, first)
}

func TestDispatch_AbortDuplicate(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	h.backend.SetResponse("/search", testutil.NewGatedResponse(gate, 10000, `{"n":2}`))

	var firstErrors int
	first := h.dispatchAsync(&Request{
		URL:     "/search",
		OnError: func(error) { firstErrors++ },
	}, WithDuplicatePolicy(Abort))
	if err := h.backend.WaitArrival("/search", 5*time.Second); err != nil {
		t.Fatal(err)
	}

	second := h.dispatchAsync(&Request{URL: "/search"}, WithDuplicatePolicy(Abort))

	r := waitResult(t, first)
	if !IsAborted(r.err) {
		t.Fatalf("Expected first request to be aborted, got %v", r.err)
	}
	var terr *TransportError
	if !errors.As(r.err, &terr) {
		t.Errorf("Expected *TransportError, got %T", r.err)
	}

	close(gate)
	r = waitResult(t, second)
	if r.err != nil {
		t.Fatalf("Second request failed: %v", r.err)
	}

	if firstErrors != 0 {
		t.Errorf("Aborted request ran OnError %d times without WithFailureCallbacks", firstErrors)
	}
	if n := len(h.alerts.Messages()); n != 0 {
		t.Errorf("Abort must not alert, got %v", h.alerts.Messages())
	}
	if h.indicator.shows.Load() != 2 || h.indicator.hides.Load() != 1 {
		t.Errorf("Indicator shows=%d hides=%d, want 2/1", h.indicator.shows.Load(), h.indicator.hides.Load())
	}
}

func TestDispatch_NoDeduplication(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	h.backend.SetResponse("/ping", testutil.NewGatedResponse(gate, 10000, `null`))

	first := h.dispatchAsync(&Request{URL: "/ping"}, WithDuplicatePolicy(None))
	if err := h.backend.WaitArrival("/ping", 5*time.Second); err != nil {
		t.Fatal(err)
	}
	second := h.dispatchAsync(&Request{URL: "/ping"}, WithDuplicatePolicy(None))
	if err := h.backend.WaitArrival("/ping", 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if h.d.InFlight() != 2 {
		t.Errorf("InFlight = %d, want 2", h.d.InFlight())
	}

	close(gate)
	waitResult(t, first)
	waitResult(t, second)
	if n := h.backend.RequestCount("/ping"); n != 2 {
		t.Errorf("Backend received %d requests, want 2", n)
	}
}

func TestDispatch_ServerError(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetResponse("/login", testutil.NewServerErrorResponse("database down"))

	var onError error
	req := &Request{URL: "/login", OnError: func(err error) { onError = err }}

	_, err := h.d.Dispatch(context.Background(), req)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected *TransportError, got %T: %v", err, err)
	}
	if terr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", terr.StatusCode)
	}
	if terr.Envelope == nil || terr.Envelope.Header.Message != "database down" {
		t.Errorf("Synthesized envelope = %+v", terr.Envelope)
	}
	if onError != nil {
		t.Error("OnError must not run for transport failures by default")
	}
	if alerts := h.alerts.Messages(); len(alerts) != 1 || alerts[0] != "database down" {
		t.Errorf("Alerts = %v", alerts)
	}

	_, err = h.d.Dispatch(context.Background(), req, WithFailureCallbacks())
	if onError == nil || !errors.Is(onError, err) {
		t.Errorf("OnError with WithFailureCallbacks received %v", onError)
	}
}

func TestDispatch_ServerErrorWithEnvelope(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetResponse("/login", testutil.MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       testutil.EnvelopeJSON(50001, "maintenance", ""),
	})

	_, err := h.d.Post(context.Background(), "/login", nil)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected *TransportError, got %v", err)
	}
	if terr.Envelope.Header.Code != "50001" {
		t.Errorf("Envelope code = %q, want 50001", terr.Envelope.Header.Code)
	}
	if alerts := h.alerts.Messages(); len(alerts) != 1 || alerts[0] != "maintenance" {
		t.Errorf("Alerts = %v", alerts)
	}
}

func TestDispatch_NetworkError(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Close()

	_, err := h.d.Post(context.Background(), "/login", nil)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected *TransportError, got %v", err)
	}
	if terr.StatusCode != 0 || terr.Err == nil {
		t.Errorf("TransportError = %+v", terr)
	}
	if n := len(h.alerts.Messages()); n != 0 {
		t.Errorf("Network errors must not alert, got %v", h.alerts.Messages())
	}
	if h.indicator.hides.Load() != 1 {
		t.Errorf("Indicator not hidden after network error")
	}
}

func TestDispatch_ContextCancel(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	defer close(gate)
	h.backend.SetResponse("/slow", testutil.NewGatedResponse(gate, 10000, `null`))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		h.backend.WaitArrival("/slow", 5*time.Second)
		cancel()
	}()

	_, err := h.d.Post(ctx, "/slow", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if IsAborted(err) {
		t.Error("Caller cancellation must not report ErrAborted")
	}
	if h.d.InFlight() != 0 {
		t.Errorf("InFlight = %d after cancel", h.d.InFlight())
	}
}

func TestDispatch_UndecodableBody(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetResponse("/x", testutil.MockResponse{StatusCode: http.StatusOK, Body: "<html>"})

	_, err := h.d.Post(context.Background(), "/x", nil)
	var terr *TransportError
	if !errors.As(err, &terr) || terr.StatusCode != http.StatusOK {
		t.Errorf("Expected *TransportError with status 200, got %v", err)
	}
}

func TestDispatch_TextResponse(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetResponse("/readme", testutil.MockResponse{StatusCode: http.StatusOK, Body: "plain text"})

	env, err := h.d.Dispatch(context.Background(), &Request{URL: "/readme", Method: http.MethodGet, ResponseType: ResponseText})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if string(env.Raw) != "plain text" {
		t.Errorf("Raw = %q", env.Raw)
	}
}

func TestDispatch_RawCallback(t *testing.T) {
	h := newHarness(t, nil)
	body := testutil.EnvelopeJSON(40001, "bad password", "")
	h.backend.SetResponse("/login", testutil.MockResponse{StatusCode: http.StatusOK, Body: body})

	var got *Envelope
	var gotErr error
	_, err := h.d.Dispatch(context.Background(), &Request{
		URL:        "/login",
		OnCallback: func(env *Envelope, err error) { got, gotErr = env, err },
		OnError:    func(error) { t.Error("OnError must not run with raw callback") },
	}, WithRawCallback())
	if err != nil {
		t.Fatalf("Raw dispatch must not classify, got %v", err)
	}
	if gotErr != nil || got == nil || string(got.Raw) != body {
		t.Errorf("OnCallback received %v, %v", got, gotErr)
	}
	if n := len(h.alerts.Messages()); n != 0 {
		t.Errorf("Raw callback must not alert, got %d", n)
	}
}

func TestDispatch_ScopeMask(t *testing.T) {
	h := newHarness(t, nil)
	scope := newFakeScope()

	if _, err := h.d.Post(context.Background(), "/save", nil, WithMask(scope)); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if scope.shows.Load() != 1 || scope.hides.Load() != 1 {
		t.Errorf("Scope shows=%d hides=%d, want 1/1", scope.shows.Load(), scope.hides.Load())
	}
	if h.indicator.shows.Load() != 0 {
		t.Error("Scoped request must not show the global indicator")
	}

	if _, err := h.d.Post(context.Background(), "/save", nil, WithoutMask()); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if h.indicator.shows.Load() != 0 || scope.shows.Load() != 1 {
		t.Error("WithoutMask must not show any mask")
	}
}

func TestDispatch_ScopeClosedAborts(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	defer close(gate)
	h.backend.SetResponse("/save", testutil.NewGatedResponse(gate, 10000, `null`))

	scope := newFakeScope()
	ch := h.dispatchAsync(&Request{URL: "/save"}, WithMask(scope))
	if err := h.backend.WaitArrival("/save", 5*time.Second); err != nil {
		t.Fatal(err)
	}
	close(scope.done)

	if r := waitResult(t, ch); !IsAborted(r.err) {
		t.Errorf("Expected aborted request after scope close, got %v", r.err)
	}
	if scope.hides.Load() != 1 {
		t.Errorf("Scope hides = %d, want 1", scope.hides.Load())
	}
}

func TestDispatch_Hooks(t *testing.T) {
	bus := hook.NewBus()
	var mu sync.Mutex
	var events []ResponseEvent
	bus.On(EventResponse, func(_ context.Context, payload any) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, payload.(ResponseEvent))
		return nil
	})

	h := newHarness(t, func(cfg *Config) { cfg.Hooks = bus })
	h.backend.SetEnvelope("/ok", 10000, "", `null`)
	h.backend.SetEnvelope("/fail", 40001, "bad password", `null`)

	h.d.Post(context.Background(), "/ok", nil)
	h.d.Post(context.Background(), "/fail", nil)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Type != "success" || events[0].Envelope == nil {
		t.Errorf("First event = %+v", events[0])
	}
	if events[1].Type != "error" || events[1].Envelope == nil || events[1].Envelope.Header.Code != "40001" {
		t.Errorf("Second event = %+v", events[1])
	}
}

func TestDispatch_DefaultPayloadMerge(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.DefaultPayload = StaticPayload(&Payload{
			Header: map[string]any{"token": "t-1", "lang": "en"},
			Body:   map[string]any{"channel": "web"},
		})
	})

	payload := &Payload{
		Header: map[string]any{"lang": "de"},
		Body:   map[string]any{"user": "  alice  "},
	}
	if _, err := h.d.Post(context.Background(), "/login", payload); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	sent := string(h.backend.LastBody("/login"))
	want := `{"header":{"lang":"de","token":"t-1"},"body":{"channel":"web","user":"alice"}}`
	if sent != want {
		t.Errorf("Sent %s, want %s", sent, want)
	}
	if payload.Body["user"] != "  alice  " {
		t.Error("Caller payload was modified")
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		req     Request
		opts    []Option
		want    string
		wantErr bool
	}{
		{
			name: "production with domain and prefix",
			cfg:  Config{APIDomain: "https://api.example.com", APIPrefix: "/v1", Origin: "http://localhost:8080"},
			req:  Request{URL: "/login"},
			want: "https://api.example.com/v1/login",
		},
		{
			name: "host-only domain inherits origin scheme",
			cfg:  Config{APIDomain: "api.example.com", Origin: "http://localhost:8080"},
			req:  Request{URL: "login"},
			want: "http://api.example.com/login",
		},
		{
			name: "default domain resolves against origin",
			cfg:  Config{Origin: "http://localhost:8080"},
			req:  Request{URL: "/login"},
			want: "http://localhost:8080/login",
		},
		{
			name: "without prefix",
			cfg:  Config{APIDomain: "https://api.example.com", Origin: "http://localhost:8080"},
			req:  Request{URL: "https://other.example.com/x"},
			opts: []Option{WithoutURLPrefix()},
			want: "https://other.example.com/x",
		},
		{
			name: "development mock path",
			cfg: Config{APIDomain: "https://api.example.com", APIPrefix: "v1", Origin: "http://localhost:8080",
				Environment: env.Development("")},
			req:  Request{URL: "/login"},
			want: "http://localhost:8080/mock/v1/login",
		},
		{
			name: "development proxy with ignored segments",
			cfg: Config{APIDomain: "https://api.example.com", APIPrefix: "v1", Origin: "http://localhost:8080",
				Environment: env.Static{Development: true, MockPrefix: "proxy-a", IgnoredSegments: []string{"v1"}}},
			req:  Request{URL: "/login"},
			want: "http://localhost:8080/proxy-a/login",
		},
		{
			name: "force mock overrides proxy",
			cfg: Config{APIPrefix: "v1", Origin: "http://localhost:8080",
				Environment: env.Development("proxy-a")},
			req:  Request{URL: "/login"},
			opts: []Option{WithForceMock()},
			want: "http://localhost:8080/mock/v1/login",
		},
		{
			name: "ignore mock keeps real backend",
			cfg: Config{APIDomain: "https://api.example.com", Origin: "http://localhost:8080",
				Environment: env.Development("")},
			req:  Request{URL: "/login", IgnoreMock: true},
			want: "https://api.example.com/login",
		},
		{
			name:    "relative url without origin",
			cfg:     Config{},
			req:     Request{URL: "/login"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			got, _, err := d.resolveURL(&tt.req, resolveOptions(tt.opts))
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveURL failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("resolveURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDispatch_DevelopmentMockRetry(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Environment = env.Development("proxy-a") })
	h.backend.SetResponse("/proxy-a/login", testutil.NewServerErrorResponse("upstream down"))
	h.backend.SetEnvelope("/mock/login", 10000, "", `{"token":"mocked"}`)

	var successCalls int
	got, err := h.d.Dispatch(context.Background(), &Request{
		URL:       "/login",
		OnSuccess: func(*Envelope) { successCalls++ },
	})
	if err != nil {
		t.Fatalf("Expected mock fallback to succeed, got %v", err)
	}
	if !strings.Contains(string(got.Body), "mocked") {
		t.Errorf("Body = %s", got.Body)
	}
	if successCalls != 1 {
		t.Errorf("OnSuccess called %d times, want 1", successCalls)
	}
	if h.backend.RequestCount("/mock/login") != 1 {
		t.Errorf("Mock backend received %d requests", h.backend.RequestCount("/mock/login"))
	}
	if alerts := h.alerts.Messages(); len(alerts) != 1 || alerts[0] != "upstream down" {
		t.Errorf("Alerts = %v, want the original failure only", alerts)
	}
	if h.d.InFlight() != 0 {
		t.Errorf("InFlight = %d after retry", h.d.InFlight())
	}
}

func TestDispatch_DevelopmentMockRetryFails(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Environment = env.Development("proxy-a") })
	h.backend.SetResponse("/proxy-a/login", testutil.NewServerErrorResponse("upstream down"))
	h.backend.SetResponse("/mock/login", testutil.NewServerErrorResponse("mock down"))

	_, err := h.d.Post(context.Background(), "/login", nil)
	var terr *TransportError
	if !errors.As(err, &terr) || !strings.HasSuffix(terr.URL, "/proxy-a/login") {
		t.Fatalf("Expected original *TransportError, got %v", err)
	}
	if alerts := h.alerts.Messages(); len(alerts) != 1 {
		t.Errorf("Alerts = %v, want exactly one", alerts)
	}
}

func TestDispatch_DevelopmentMockRetryText(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Environment = env.Development("proxy-a") })
	h.backend.SetResponse("/proxy-a/page", testutil.NewServerErrorResponse("upstream down"))
	h.backend.SetResponse("/mock/page", testutil.MockResponse{StatusCode: http.StatusOK, Body: "hello text"})

	var successCalls int
	got, err := h.d.Dispatch(context.Background(), &Request{
		URL:          "/page",
		Method:       http.MethodGet,
		ResponseType: ResponseText,
		OnSuccess:    func(*Envelope) { successCalls++ },
		OnError:      func(error) { t.Error("OnError must not run after a successful fallback") },
	})
	if err != nil {
		t.Fatalf("Expected text fallback to succeed, got %v", err)
	}
	if string(got.Raw) != "hello text" || !got.Header.Success {
		t.Errorf("Envelope = %+v", got)
	}
	if successCalls != 1 {
		t.Errorf("OnSuccess called %d times, want 1", successCalls)
	}
	if alerts := h.alerts.Messages(); len(alerts) != 1 || alerts[0] != "upstream down" {
		t.Errorf("Alerts = %v, want the original failure only", alerts)
	}
}

func TestDispatch_NoRetryOnMockPath(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Environment = env.Development("") })
	h.backend.SetResponse("/mock/login", testutil.NewServerErrorResponse("mock down"))

	if _, err := h.d.Post(context.Background(), "/login", nil); err == nil {
		t.Fatal("Expected error")
	}
	if n := h.backend.RequestCount("/mock/login"); n != 1 {
		t.Errorf("Mock backend received %d requests, want 1", n)
	}
}
