// Package intakeapi exposes the HTTP surface through which helpdesk
// requests enter the system: a submit endpoint that persists the request
// and enqueues it for routing, and a lookup endpoint for stored requests.
package intakeapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/helpdesk/internal/helpdesk"
)

// Publisher enqueues an envelope for the routing worker.
type Publisher interface {
	Publish(ctx context.Context, env helpdesk.Envelope) error
}

// Analyst answers natural-language questions about the stored requests.
type Analyst interface {
	Ask(ctx context.Context, question string) (string, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger    log.Logger
	store     helpdesk.Store
	publisher Publisher
	analyst   Analyst
	token     string
}

// New creates a new API handler. A non-empty token guards every route.
// analyst may be nil when no model is configured; the chat endpoint then
// reports itself unavailable.
func New(logger log.Logger, store helpdesk.Store, publisher Publisher, analyst Analyst, token string) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if store == nil {
		panic(xerrors.New("request store is required"))
	}
	if publisher == nil {
		panic(xerrors.New("queue publisher is required"))
	}
	return &API{
		logger:    logger,
		store:     store,
		publisher: publisher,
		analyst:   analyst,
		token:     token,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		if a.token != "" {
			r.Use(bearerToken(a.token))
		}
		r.Post("/requests", a.handleSubmitRequest)
		r.Get("/requests/{category}/{id}", a.handleGetRequest)
		r.Post("/chat", a.handleChat)
	})
}

func (a *API) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("helpdesk.request.category", category),
		attribute.String("helpdesk.request.id", id),
	)

	req, ok, err := a.store.Get(r.Context(), category, id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get request", "category", category, "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(req)
}
