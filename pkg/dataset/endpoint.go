package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Sternrassler/ya-request/pkg/logging"
	"github.com/Sternrassler/ya-request/pkg/request"
	"github.com/Sternrassler/ya-request/pkg/store"
	"github.com/rs/zerolog"
)

// Prefer decides between a recorded response and a fresh request.
type Prefer string

const (
	// Backward answers from the history when the payload has a recorded response.
	Backward Prefer = "backward"

	// Forward always dispatches and records the new response.
	Forward Prefer = "forward"
)

// Transform rewrites a successful response before it is recorded and returned.
type Transform func(env *request.Envelope) (*request.Envelope, error)

// Doer sends requests. *request.Dispatcher implements it.
type Doer interface {
	Dispatch(ctx context.Context, req *request.Request, opts ...request.Option) (*request.Envelope, error)
}

// Config holds the endpoint configuration.
type Config struct {
	// Strict dispatches on every call, even with an unchanged payload.
	Strict bool

	// Cache records successful responses per payload.
	Cache bool

	// Persist mirrors the history to Store. Requires Cache to take effect.
	Persist Persist

	// Prefer is the default replay preference (Backward).
	Prefer Prefer

	// Transforms run in order on every successful response.
	Transforms []Transform

	// HistoryLength bounds the responses kept per payload (default 1).
	HistoryLength int

	// Store receives the mirror. Required when Persist is enabled.
	Store store.Store

	// Logger defaults to a "dataset" component logger.
	Logger *zerolog.Logger
}

// Result is the outcome of a call.
type Result struct {
	Response *request.Envelope

	// Cache is a snapshot of the endpoint history, set in cached mode.
	Cache []Entry
}

// Endpoint is a dispatcher bound to one URL.
type Endpoint struct {
	doer   Doer
	url    string
	cfg    Config
	logger zerolog.Logger

	mu       sync.Mutex
	entries  []*Entry
	pending  *call
	lastKey  string
	hydrated bool

	// hydrateMu serializes mirror reads so only one caller loads the store.
	hydrateMu sync.Mutex
}

// call is one dispatched or answered request, shared by every caller waiting on it.
type call struct {
	key  string
	done chan struct{}
	res  *Result
	err  error
}

func (c *call) wait(ctx context.Context) (*Result, error) {
	select {
	case <-c.done:
		return c.res, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func settledCall(key string, res *Result) *call {
	c := &call{key: key, done: make(chan struct{}), res: res}
	close(c.done)
	return c
}

// Bind creates an endpoint for url.
func Bind(d Doer, url string, cfg Config) (*Endpoint, error) {
	if d == nil {
		return nil, errors.New("dispatcher is required")
	}
	if url == "" {
		return nil, errors.New("endpoint url is required")
	}
	if cfg.Prefer == "" {
		cfg.Prefer = Backward
	}
	if cfg.Prefer != Backward && cfg.Prefer != Forward {
		return nil, fmt.Errorf("invalid replay preference %q", cfg.Prefer)
	}
	if cfg.HistoryLength == 0 {
		cfg.HistoryLength = 1
	}
	if cfg.HistoryLength < 0 {
		return nil, fmt.Errorf("history length must be positive (got %d)", cfg.HistoryLength)
	}
	if cfg.Persist.Enabled() && cfg.Store == nil {
		return nil, errors.New("store is required when persist is enabled")
	}

	logger := logging.NewLogger("dataset")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Endpoint{
		doer:   d,
		url:    url,
		cfg:    cfg,
		logger: logger.With().Str("endpoint", url).Logger(),
	}, nil
}

// URL returns the bound endpoint URL.
func (e *Endpoint) URL() string {
	return e.url
}

// Fetch sends req to the bound URL, or answers it from a pending call or
// the history, depending on the endpoint mode. req.URL is ignored.
func (e *Endpoint) Fetch(ctx context.Context, req *request.Request, opts ...CallOption) (*Result, error) {
	if req == nil {
		return nil, request.ErrNilRequest
	}
	co := resolveCallOptions(e.cfg.Prefer, opts)

	r := *req
	r.URL = e.url
	data := req.Payload.Clone()

	key, err := CacheKey{Endpoint: e.url, Data: data}.String()
	if err != nil {
		return nil, err
	}

	if e.cfg.Cache {
		e.hydrate(ctx)
	}

	e.mu.Lock()
	c := e.begin(ctx, &r, data, key, co)
	e.lastKey = key
	e.mu.Unlock()

	return c.wait(ctx)
}

// Entries returns a snapshot of the history.
func (e *Endpoint) Entries() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.entries)
}

// begin picks the call answering this request. Callers hold e.mu.
func (e *Endpoint) begin(ctx context.Context, r *request.Request, data *request.Payload, key string, co callOptions) *call {
	if !e.cfg.Cache {
		if e.cfg.Strict || !e.sharable(key) {
			return e.start(ctx, r, data, key, co)
		}
		return e.share()
	}

	if e.cfg.Strict || !e.sharable(key) {
		return e.handle(ctx, r, data, key, co)
	}
	return e.share()
}

// sharable reports whether the pending call was made for an unchanged payload.
func (e *Endpoint) sharable(key string) bool {
	return e.pending != nil && e.pending.key == key && e.lastKey == key
}

func (e *Endpoint) share() *call {
	fetchesTotal.WithLabelValues(sourceShared).Inc()
	e.logger.Debug().Msg("Sharing pending call")
	return e.pending
}

// handle answers from the history under Backward, or dispatches.
func (e *Endpoint) handle(ctx context.Context, r *request.Request, data *request.Payload, key string, co callOptions) *call {
	if co.prefer == Backward {
		if entry := e.lookup(key); entry != nil && entry.Latest() != nil {
			fetchesTotal.WithLabelValues(sourceCache).Inc()
			e.logger.Debug().Str("key", key).Msg("Answered from history")
			return settledCall(key, &Result{Response: entry.Latest(), Cache: snapshot(e.entries)})
		}
	}
	return e.start(ctx, r, data, key, co)
}

// start dispatches in the background and makes the call pending.
func (e *Endpoint) start(ctx context.Context, r *request.Request, data *request.Payload, key string, co callOptions) *call {
	c := &call{key: key, done: make(chan struct{})}
	e.pending = c
	fetchesTotal.WithLabelValues(sourceNetwork).Inc()

	// A compatible call may be shared, so it must outlive the caller that started it.
	if !e.cfg.Strict {
		ctx = context.WithoutCancel(ctx)
	}
	go e.run(ctx, c, r, data, co)
	return c
}

func (e *Endpoint) run(ctx context.Context, c *call, r *request.Request, data *request.Payload, co callOptions) {
	env, err := e.doer.Dispatch(ctx, r, co.requestOpts...)
	if err == nil {
		env, err = e.transform(env, co.transforms)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err == nil {
		res := &Result{Response: env}
		if e.cfg.Cache {
			e.record(c.key, data, env)
			res.Cache = snapshot(e.entries)
			e.mirror(ctx)
		}
		c.res = res
	}
	c.err = err
	if e.pending == c {
		e.pending = nil
	}
	close(c.done)
}

func (e *Endpoint) transform(env *request.Envelope, extra []Transform) (*request.Envelope, error) {
	for _, fn := range append(append([]Transform(nil), e.cfg.Transforms...), extra...) {
		out, err := fn(env)
		if err != nil {
			return nil, fmt.Errorf("transform response: %w", err)
		}
		env = out
	}
	return env, nil
}

func (e *Endpoint) lookup(key string) *Entry {
	for _, entry := range e.entries {
		if entry.Key == key {
			return entry
		}
	}
	return nil
}

// record appends env to the entry for key, creating it when absent.
func (e *Endpoint) record(key string, data *request.Payload, env *request.Envelope) {
	recordedResponses.Inc()
	if entry := e.lookup(key); entry != nil {
		entry.record(env, e.cfg.HistoryLength)
		return
	}
	e.entries = append(e.entries, &Entry{
		Key:       key,
		URL:       e.url,
		Data:      data,
		Responses: []*request.Envelope{env},
	})
}

// hydrate loads the mirror into memory the first time it is needed. A failed
// read leaves the endpoint unhydrated so the next call tries again.
func (e *Endpoint) hydrate(ctx context.Context) {
	if !e.cfg.Persist.Enabled() {
		return
	}
	e.hydrateMu.Lock()
	defer e.hydrateMu.Unlock()

	e.mu.Lock()
	done := e.hydrated
	e.mu.Unlock()
	if done {
		return
	}

	raw, err := e.cfg.Store.Get(context.WithoutCancel(ctx), StorageKey(e.url))
	if errors.Is(err, store.ErrNotFound) {
		e.markHydrated(nil)
		return
	}
	if err != nil {
		mirrorErrors.WithLabelValues("hydrate").Inc()
		e.logger.Warn().Err(err).Msg("Failed to load persisted history, retrying on next call")
		return
	}

	var entries []*Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		mirrorErrors.WithLabelValues("hydrate").Inc()
		e.logger.Warn().Err(err).Msg("Discarding undecodable persisted history")
		e.markHydrated(nil)
		return
	}
	for _, entry := range entries {
		if len(entry.Responses) > e.cfg.HistoryLength {
			entry.Responses = entry.Responses[len(entry.Responses)-e.cfg.HistoryLength:]
		}
	}
	e.markHydrated(entries)
	e.logger.Debug().Int("entries", len(entries)).Msg("Hydrated history from store")
}

// markHydrated adds the persisted entries. History recorded by calls that ran
// before a successful read is newer and wins on key collisions.
func (e *Endpoint) markHydrated(entries []*Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hydrated = true
	for _, entry := range entries {
		if e.lookup(entry.Key) == nil {
			e.entries = append(e.entries, entry)
		}
	}
}

// mirror replaces the stored slice with the current history.
// Writes wait for hydration so an unread mirror is never overwritten.
func (e *Endpoint) mirror(ctx context.Context) {
	if !e.cfg.Persist.Enabled() {
		return
	}
	if !e.hydrated {
		e.logger.Debug().Msg("Deferring mirror write until history is loaded")
		return
	}
	value, err := json.Marshal(e.cfg.Persist.apply(e.entries))
	if err != nil {
		mirrorErrors.WithLabelValues("write").Inc()
		e.logger.Error().Err(err).Msg("Failed to encode history")
		return
	}
	if err := e.cfg.Store.Set(ctx, StorageKey(e.url), value); err != nil {
		mirrorErrors.WithLabelValues("write").Inc()
		e.logger.Error().Err(err).Str("key", StorageKey(e.url)).Msg("Failed to persist history")
	}
}
