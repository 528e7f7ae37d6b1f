// Package statusapi exposes the mirrored notification state and the notification operations over
// HTTP to local consumers.
package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/freshbasket/notification-sync/logging"
	"github.com/freshbasket/notification-sync/model"
	"github.com/freshbasket/notification-sync/reconciler"
	"github.com/freshbasket/notification-sync/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log = logging.Log.WithField("package", "statusapi")

// StateReader provides the mirrored state.
type StateReader interface {
	Snapshot() store.Snapshot
}

// Operations describes the notification operations exposed by the API.
type Operations interface {
	LoadNotifications(ctx context.Context, page int) error
	UpdateStatus(ctx context.Context, id string, status model.Status) error
	DeleteNotification(ctx context.Context, id string) error
	UpdateMany(ctx context.Context, ids []string, status model.Status) error
	DeleteMany(ctx context.Context, ids []string) error
}

// Dependencies contains everything the router needs. Connected and JournalCount are optional.
type Dependencies struct {
	State        StateReader
	Operations   Operations
	Gatherer     prometheus.Gatherer
	Connected    func() bool
	JournalCount func(ctx context.Context) (int64, error)
}

type statusRequest struct {
	Status model.Status `json:"status"`
}

type bulkRequest struct {
	IDs    []string     `json:"ids"`
	Status model.Status `json:"status"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
}

type journalResponse struct {
	Events int64 `json:"events"`
}

type handler struct {
	deps Dependencies
}

// NewRouter returns the status API router.
func NewRouter(deps Dependencies) *chi.Mux {
	h := &handler{deps: deps}

	r := chi.NewRouter()
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", h.health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	if deps.JournalCount != nil {
		r.Get("/journal", h.journal)
	}

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/refresh", h.refresh)
		r.Patch("/update/many", h.updateMany)
		r.Patch("/delete/many", h.deleteMany)
		r.Put("/{id}", h.updateStatus)
		r.Delete("/{id}", h.delete)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("status", ww.Status()).
			WithField("duration", time.Since(start).String()).
			Debug("request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("unable to encode the response body")
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

// writeOperationError answers with 400 for requests that were rejected before reaching the admin
// API, and 502 otherwise.
func writeOperationError(w http.ResponseWriter, err error) {
	switch errors.Cause(err) {
	case reconciler.ErrMissingID, reconciler.ErrMissingIDs, reconciler.ErrMissingStatus, reconciler.ErrInvalidPage:
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		writeMessage(w, http.StatusBadGateway, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	connected := true
	if h.deps.Connected != nil {
		connected = h.deps.Connected()
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Connected: connected})
}

func (h *handler) journal(w http.ResponseWriter, r *http.Request) {
	count, err := h.deps.JournalCount(r.Context())
	if err != nil {
		writeMessage(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, journalResponse{Events: count})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.State.Snapshot())
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	page := 1
	if value := r.URL.Query().Get("page"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid page number: "+value)
			return
		}
		page = parsed
	}

	if err := h.deps.Operations.LoadNotifications(r.Context(), page); err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.State.Snapshot())
}

func (h *handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.deps.Operations.UpdateStatus(r.Context(), chi.URLParam(r, "id"), body.Status); err != nil {
		writeOperationError(w, err)
		return
	}
	writeMessage(w, http.StatusAccepted, "status update requested")
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Operations.DeleteNotification(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeOperationError(w, err)
		return
	}
	writeMessage(w, http.StatusAccepted, "deletion requested")
}

func (h *handler) updateMany(w http.ResponseWriter, r *http.Request) {
	var body bulkRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.deps.Operations.UpdateMany(r.Context(), body.IDs, body.Status); err != nil {
		writeOperationError(w, err)
		return
	}
	writeMessage(w, http.StatusAccepted, "status update requested")
}

func (h *handler) deleteMany(w http.ResponseWriter, r *http.Request) {
	var body bulkRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.deps.Operations.DeleteMany(r.Context(), body.IDs); err != nil {
		writeOperationError(w, err)
		return
	}
	writeMessage(w, http.StatusAccepted, "deletion requested")
}
