package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/ya-request/pkg/dataset"
	"github.com/Sternrassler/ya-request/pkg/metrics"
	"github.com/Sternrassler/ya-request/pkg/request"
	"github.com/Sternrassler/ya-request/pkg/sequence"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// maxPayloadBytes bounds incoming request bodies.
const maxPayloadBytes = 1 << 20

// gateway forwards API calls through the dispatcher and its endpoints.
type gateway struct {
	dispatcher *request.Dispatcher
	endpoints  map[string]*dataset.Endpoint
	timeout    time.Duration
	logger     zerolog.Logger
}

func newRouter(g *gateway) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Handle("/metrics", metrics.Handler())
	r.Post("/api/*", g.apiHandler)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// apiHandler forwards /api/<path> to <path> on the backend.
func (g *gateway) apiHandler(w http.ResponseWriter, r *http.Request) {
	path := "/" + chi.URLParam(r, "*")

	payload, err := decodePayload(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	ctx := r.Context()
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req := &request.Request{URL: path, Payload: payload}
	if auth := r.Header.Get("Authorization"); auth != "" {
		req.Header = http.Header{"Authorization": []string{auth}}
	}

	env, err := g.forward(ctx, req)
	g.writeResult(w, path, env, err)
}

// forward sends req through the bound endpoint for its path, if any.
func (g *gateway) forward(ctx context.Context, req *request.Request) (*request.Envelope, error) {
	if ep, ok := g.endpoints[req.URL]; ok {
		res, err := ep.Fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		return res.Response, nil
	}
	return g.dispatcher.Dispatch(ctx, req)
}

func (g *gateway) writeResult(w http.ResponseWriter, path string, env *request.Envelope, err error) {
	var berr *request.BusinessError
	var terr *request.TransportError

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, env)
	case request.IsIgnored(err):
		writeJSON(w, http.StatusConflict, errorBody("duplicate request in flight"))
	case errors.As(err, &berr):
		writeJSON(w, http.StatusUnprocessableEntity, berr.Envelope)
	case errors.As(err, &terr):
		g.logger.Warn().Err(err).Str("url", path).Msg("Backend request failed")
		if terr.Envelope != nil {
			writeJSON(w, http.StatusBadGateway, terr.Envelope)
			return
		}
		writeJSON(w, http.StatusBadGateway, errorBody(terr.Error()))
	default:
		g.logger.Error().Err(err).Str("url", path).Msg("Gateway request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
	}
}

// warmup issues the configured requests one after another at startup.
func (g *gateway) warmup(ctx context.Context, reqs []WarmupConfig) error {
	tasks := make([]sequence.Named, len(reqs))
	for i, w := range reqs {
		req := &request.Request{URL: w.Path, Payload: &request.Payload{Body: w.Body}}
		tasks[i] = sequence.Named{
			Name: w.Path,
			Task: func(ctx context.Context) error {
				_, err := g.forward(ctx, req)
				return err
			},
		}
	}

	return sequence.RunNamed(ctx, tasks, func(err error) {
		if err != nil {
			g.logger.Warn().Err(err).Msg("Warmup stopped")
			return
		}
		g.logger.Info().Int("requests", len(reqs)).Msg("Warmup complete")
	})
}

func decodePayload(body io.Reader) (*request.Payload, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var p request.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return &p, nil
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
