package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/ya-request/pkg/env"
	"github.com/Sternrassler/ya-request/pkg/errcode"
	"github.com/Sternrassler/ya-request/pkg/hook"
	"github.com/Sternrassler/ya-request/pkg/logging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventResponse is emitted on the hook bus after every settled request.
const EventResponse = "response@request"

// ResponseType selects how a 2xx body is interpreted.
type ResponseType string

const (
	// ResponseJSON decodes the body as an Envelope and classifies its code.
	ResponseJSON ResponseType = "json"

	// ResponseText returns the body untouched in Envelope.Raw.
	ResponseText ResponseType = "text"
)

// Request describes one call to the backend.
type Request struct {
	// URL is relative to the API domain unless WithoutURLPrefix is used.
	URL string

	// Method defaults to POST.
	Method string

	Payload *Payload

	// Header carries extra HTTP headers.
	Header http.Header

	// ResponseType defaults to ResponseJSON.
	ResponseType ResponseType

	// IgnoreMock keeps the real backend in development.
	IgnoreMock bool

	OnSuccess  func(env *Envelope)
	OnError    func(err error)
	OnCallback func(env *Envelope, err error)
}

// ResponseEvent is the payload of EventResponse.
type ResponseEvent struct {
	Type     string // "success" or "error"
	URL      string
	Envelope *Envelope
	Err      error
}

// Config holds the dispatcher configuration.
type Config struct {
	// APIDomain is prepended to every prefixed URL. A value without a scheme
	// inherits the scheme of Origin.
	APIDomain string

	// APIPrefix is inserted between the domain and the request URL.
	APIPrefix string

	// Origin resolves relative URLs, e.g. "http://localhost:8080".
	Origin string

	HTTPClient     *http.Client
	Environment    env.Detector
	Alerter        Alerter
	Indicator      Indicator
	Hooks          *hook.Bus
	DefaultPayload DefaultPayloadFunc
	ErrorCodes     errcode.Table

	// Logger defaults to a "request" component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration for a production backend at origin.
func DefaultConfig(origin string) Config {
	return Config{
		APIDomain:   "/",
		Origin:      origin,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		Environment: env.Production(),
		Indicator:   NopIndicator{},
	}
}

// Dispatcher issues requests with deduplication, masking and error translation.
type Dispatcher struct {
	httpClient     *http.Client
	apiDomain      string
	apiPrefix      string
	origin         *url.URL
	env            env.Detector
	alerter        Alerter
	indicator      Indicator
	hooks          *hook.Bus
	defaultPayload DefaultPayloadFunc
	errorCodes     errcode.Table
	logger         zerolog.Logger

	registry registry

	// maskMu orders indicator show/hide with registry changes.
	maskMu sync.Mutex
}

// New creates a dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	var origin *url.URL
	if cfg.Origin != "" {
		u, err := url.Parse(cfg.Origin)
		if err != nil {
			return nil, fmt.Errorf("parse origin: %w", err)
		}
		if !u.IsAbs() {
			return nil, fmt.Errorf("origin must be absolute (got %q)", cfg.Origin)
		}
		origin = u
	}

	logger := logging.NewLogger("request")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	d := &Dispatcher{
		httpClient:     cfg.HTTPClient,
		apiDomain:      normalizeDomain(cfg.APIDomain, origin),
		apiPrefix:      normalizePrefix(cfg.APIPrefix),
		origin:         origin,
		env:            cfg.Environment,
		alerter:        cfg.Alerter,
		indicator:      cfg.Indicator,
		hooks:          cfg.Hooks,
		defaultPayload: cfg.DefaultPayload,
		errorCodes:     cfg.ErrorCodes,
		logger:         logger,
	}
	if d.httpClient == nil {
		d.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if d.env == nil {
		d.env = env.Production()
	}
	if d.alerter == nil {
		d.alerter = LogAlerter{Logger: logger}
	}
	if d.indicator == nil {
		d.indicator = NopIndicator{}
	}
	return d, nil
}

// normalizeDomain makes the domain end with "/" and gives host-only domains a scheme.
func normalizeDomain(domain string, origin *url.URL) string {
	if domain == "" {
		domain = "/"
	}
	if !strings.HasSuffix(domain, "/") {
		domain += "/"
	}
	if domain != "/" && !strings.HasPrefix(domain, "http") {
		scheme := "https"
		if origin != nil {
			scheme = origin.Scheme
		}
		domain = scheme + "://" + strings.TrimPrefix(domain, "//")
	}
	return domain
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// InFlight returns the number of registered in-flight requests.
func (d *Dispatcher) InFlight() int {
	return d.registry.len()
}

// Post dispatches payload to url with the default POST method.
func (d *Dispatcher) Post(ctx context.Context, url string, payload *Payload, opts ...Option) (*Envelope, error) {
	return d.Dispatch(ctx, &Request{URL: url, Payload: payload}, opts...)
}

// Dispatch sends req and classifies the response.
//
// It returns the envelope for success codes, a *BusinessError for other
// codes, a *TransportError when the request did not complete normally and
// ErrIgnored when an identical request is already in flight under Ignore.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request, opts ...Option) (result *Envelope, err error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	o := resolveOptions(opts)
	start := time.Now()

	target, debugPrefix, err := d.resolveURL(req, o)
	if err != nil {
		return nil, err
	}
	payload := d.mergePayload(req)
	dataKey, err := Canonical(payload)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	entry := &inflight{
		token:   uuid.NewString(),
		url:     target,
		dataKey: dataKey,
		cancel:  cancel,
	}

	d.maskMu.Lock()
	superseded, ok := d.registry.acquire(entry, o.DuplicatePolicy, o.CompareByData)
	if ok {
		d.showMask(o)
	}
	d.maskMu.Unlock()

	if !ok {
		duplicatesTotal.WithLabelValues(string(Ignore)).Inc()
		requestsTotal.WithLabelValues(outcomeIgnored).Inc()
		d.logger.Debug().
			Str("url", target).
			Str("policy", string(o.DuplicatePolicy)).
			Msg("Duplicate request ignored")
		return nil, ErrIgnored
	}
	if superseded != nil {
		duplicatesTotal.WithLabelValues(string(Abort)).Inc()
		d.logger.Debug().
			Str("url", target).
			Str("superseded", superseded.token).
			Msg("Aborted superseded duplicate request")
	}

	stopWatch := watchScope(ctx, o.Scope, cancel)

	defer func() {
		stopWatch()

		d.maskMu.Lock()
		remaining := d.registry.release(entry.token)
		d.hideMask(o, remaining)
		d.maskMu.Unlock()

		outcome := outcomeOf(err)
		requestsTotal.WithLabelValues(outcome).Inc()
		requestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

		d.emit(context.WithoutCancel(ctx), target, result, err)
	}()

	d.logger.Debug().
		Str("url", target).
		Str("token", entry.token).
		Str("policy", string(o.DuplicatePolicy)).
		Msg("Dispatching request")

	resp, body, err := d.send(ctx, req, target, payload)
	if err != nil {
		if ctx.Err() != nil {
			err = context.Cause(ctx)
		}
		return nil, d.failNetwork(req, o, &TransportError{URL: target, Err: err})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		terr := &TransportError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Envelope:   synthesizeEnvelope(resp, body),
		}
		return d.failResponse(ctx, req, o, terr, payload, debugPrefix, opts)
	}

	return d.settle(req, o, target, body)
}

// resolveURL applies the domain prefix and, in development, the mock path.
// It also returns the debug path prefix the request was routed with.
func (d *Dispatcher) resolveURL(req *Request, o Options) (string, string, error) {
	path := req.URL
	target := path
	if o.URLPrefixing {
		path = d.apiPrefix + strings.TrimPrefix(path, "/")
		target = d.apiDomain + path
	}

	debugPrefix := d.env.MockPathPrefix()
	if o.ForceMock {
		debugPrefix = env.DefaultMockPrefix
	}

	if d.env.IsDevelopment() && !req.IgnoreMock {
		target = "/" + debugPrefix + "/" + strings.TrimPrefix(path, "/")
		if ignored := d.env.IgnoredPathSegments(); len(ignored) > 0 {
			target = dropSegments(target, ignored)
		}
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", "", fmt.Errorf("parse request url: %w", err)
	}
	if !u.IsAbs() {
		if d.origin == nil {
			return "", "", fmt.Errorf("relative url %q requires an origin", target)
		}
		u = d.origin.ResolveReference(u)
	}
	return u.String(), debugPrefix, nil
}

func dropSegments(path string, ignored []string) string {
	skip := make(map[string]bool, len(ignored))
	for _, seg := range ignored {
		skip[seg] = true
	}
	parts := strings.Split(path, "/")
	kept := parts[:0]
	for _, p := range parts {
		if !skip[p] {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}

// mergePayload overlays the request payload on the default payload, section
// by section, and trims first-level string values.
func (d *Dispatcher) mergePayload(req *Request) *Payload {
	p := req.Payload.Clone()
	if d.defaultPayload != nil {
		if def := d.defaultPayload(req); def != nil {
			for k, v := range def.Header {
				if _, ok := p.Header[k]; !ok {
					p.Header[k] = v
				}
			}
			for k, v := range def.Body {
				if _, ok := p.Body[k]; !ok {
					p.Body[k] = v
				}
			}
		}
	}
	trimStrings(p.Header)
	trimStrings(p.Body)
	return p
}

func trimStrings(m map[string]any) {
	for k, v := range m {
		if s, ok := v.(string); ok {
			m[k] = strings.TrimSpace(s)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, req *Request, target string, payload *Payload) (*http.Response, []byte, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp, data, nil
}

// settle handles a 2xx body.
func (d *Dispatcher) settle(req *Request, o Options, target string, body []byte) (*Envelope, error) {
	if o.RawCallback {
		env := &Envelope{Raw: body}
		if req.OnCallback != nil {
			req.OnCallback(env, nil)
		}
		return env, nil
	}

	if req.ResponseType == ResponseText {
		env := &Envelope{Raw: body, Header: EnvelopeHeader{Success: true}}
		if req.OnSuccess != nil {
			req.OnSuccess(env)
		}
		return env, nil
	}

	env := &Envelope{}
	if err := json.Unmarshal(body, env); err != nil {
		terr := &TransportError{URL: target, StatusCode: http.StatusOK, Err: fmt.Errorf("decode envelope: %w", err)}
		d.logger.Error().Err(err).Str("url", target).Msg("Undecodable response envelope")
		d.failureCallbacks(req, o, terr)
		return nil, terr
	}
	env.Raw = body
	return d.classify(req, o, env)
}

// classify stamps the success flag and runs the matching callback.
func (d *Dispatcher) classify(req *Request, o Options, env *Envelope) (*Envelope, error) {
	if env.Header.Code.IsSuccess() {
		env.Header.Success = true
		if req.OnSuccess != nil {
			req.OnSuccess(env)
		}
		return env, nil
	}

	env.Header.Success = false
	msg := d.errorCodes.Message(string(env.Header.Code), env.Header.Message)
	if !o.silent(env, nil) {
		d.alert(msg)
	}

	berr := &BusinessError{Envelope: env, Message: msg}
	d.logger.Debug().
		Str("code", string(env.Header.Code)).
		Str("message", msg).
		Msg("Business error")
	if req.OnError != nil {
		req.OnError(berr)
	}
	return nil, berr
}

// failResponse handles a non-2xx response: alert, optional mock fallback,
// failure callbacks.
func (d *Dispatcher) failResponse(ctx context.Context, req *Request, o Options, terr *TransportError, payload *Payload, debugPrefix string, opts []Option) (*Envelope, error) {
	d.logger.Warn().
		Str("url", terr.URL).
		Int("status", terr.StatusCode).
		Msg("Request failed")

	if !o.silent(terr.Envelope, terr) {
		d.alert(d.errorCodes.Message(string(terr.Envelope.Header.Code), terr.Envelope.Header.Message))
	}

	if d.env.IsDevelopment() && debugPrefix != env.DefaultMockPrefix && !o.retryAttempt {
		if retried, err := d.retryOnMock(ctx, req, payload, opts); err == nil {
			if o.RawCallback {
				if req.OnCallback != nil {
					req.OnCallback(retried, nil)
				}
				return retried, nil
			}
			// The retry settled as a success already; text responses carry no code.
			if req.OnSuccess != nil {
				req.OnSuccess(retried)
			}
			return retried, nil
		}
	}

	d.failureCallbacks(req, o, terr)
	return nil, terr
}

// retryOnMock re-issues req against the mock backend with callbacks and
// alerts suppressed.
func (d *Dispatcher) retryOnMock(ctx context.Context, req *Request, payload *Payload, opts []Option) (*Envelope, error) {
	retry := &Request{
		URL:          req.URL,
		Method:       req.Method,
		Payload:      payload,
		Header:       req.Header,
		ResponseType: req.ResponseType,
	}
	retryOpts := make([]Option, 0, len(opts)+1)
	retryOpts = append(retryOpts, opts...)
	retryOpts = append(retryOpts, func(o *Options) {
		o.RawCallback = false
		o.FailureCallbacks = false
	}, asRetryAttempt())

	d.logger.Warn().Str("url", req.URL).Msg("Backend failed in development, retrying against mock backend")

	env, err := d.Dispatch(ctx, retry, retryOpts...)
	if err != nil {
		mockRetriesTotal.WithLabelValues("failure").Inc()
		d.logger.Debug().Err(err).Str("url", req.URL).Msg("Mock fallback failed")
		return nil, err
	}
	mockRetriesTotal.WithLabelValues("success").Inc()
	return env, nil
}

// failNetwork handles requests that never produced a response.
func (d *Dispatcher) failNetwork(req *Request, o Options, terr *TransportError) error {
	if errors.Is(terr.Err, ErrAborted) || errors.Is(terr.Err, context.Canceled) {
		d.logger.Debug().Err(terr.Err).Str("url", terr.URL).Msg("Request cancelled")
	} else {
		d.logger.Error().Err(terr.Err).Str("url", terr.URL).Msg("Request failed without response")
	}
	d.failureCallbacks(req, o, terr)
	return terr
}

func (d *Dispatcher) failureCallbacks(req *Request, o Options, err error) {
	if !o.FailureCallbacks {
		return
	}
	if o.RawCallback {
		if req.OnCallback != nil {
			req.OnCallback(nil, err)
		}
		return
	}
	if req.OnError != nil {
		req.OnError(err)
	}
}

// alert never blocks settlement: a panicking alerter is logged and ignored.
func (d *Dispatcher) alert(message string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Msg("Alerter panicked")
		}
	}()
	d.alerter.Alert(message, IconError)
}

func (d *Dispatcher) showMask(o Options) {
	if o.Scope != nil {
		o.Scope.ShowMask()
		return
	}
	if o.GlobalMask {
		d.indicator.ShowIndicator()
	}
}

func (d *Dispatcher) hideMask(o Options, remaining int) {
	if remaining == 0 {
		d.indicator.HideIndicator()
	}
	if o.Scope != nil {
		o.Scope.HideMask()
	}
}

func (d *Dispatcher) emit(ctx context.Context, target string, env *Envelope, err error) {
	if d.hooks == nil {
		return
	}
	ev := ResponseEvent{Type: "success", URL: target, Envelope: env, Err: err}
	if err != nil {
		ev.Type = "error"
		var berr *BusinessError
		if errors.As(err, &berr) {
			ev.Envelope = berr.Envelope
		}
	}
	if herr := d.hooks.Emit(ctx, EventResponse, ev); herr != nil {
		d.logger.Warn().Err(herr).Str("url", target).Msg("Response hook failed")
	}
}

// watchScope aborts the request when the mask scope is closed.
func watchScope(ctx context.Context, scope MaskScope, cancel context.CancelCauseFunc) func() {
	if scope == nil || scope.Done() == nil {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-scope.Done():
			cancel(ErrAborted)
		case <-ctx.Done():
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

// synthesizeEnvelope builds an envelope from a failed response body.
func synthesizeEnvelope(resp *http.Response, body []byte) *Envelope {
	var env Envelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil && (env.Header.Code != "" || env.Header.Message != "") {
		env.Raw = body
		return &env
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" || json.Valid(body) {
		msg = resp.Status
		if msg == "" {
			msg = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
	}
	return &Envelope{
		Header: EnvelopeHeader{Code: "0", Message: msg},
		Raw:    body,
	}
}

func outcomeOf(err error) string {
	var berr *BusinessError
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.As(err, &berr):
		return outcomeBusiness
	case errors.Is(err, ErrAborted):
		return outcomeAborted
	default:
		return outcomeTransport
	}
}
