package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"offersync/internal/config"
	"offersync/internal/domain"
	"offersync/internal/metrics"
	"offersync/internal/models"
	"offersync/internal/store"
	"offersync/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Drainer runs a sync queue drain on demand.
type Drainer interface {
	Drain(ctx context.Context) worker.DrainResult
}

// HTTPServer exposes the offer store to a local UI over JSON.
type HTTPServer struct {
	offers  domain.OfferService
	drainer Drainer
	userID  string
	logger  *zerolog.Logger
	router  chi.Router
	server  *http.Server
}

func NewHTTPServer(cfg config.APIConfig, offers domain.OfferService, drainer Drainer, userID string, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	srv := &HTTPServer{
		offers:  offers,
		drainer: drainer,
		userID:  userID,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(srv.loggingMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/offers", func(r chi.Router) {
			r.Get("/", srv.handleListOffers)
			r.Post("/refresh", srv.handleRefresh)
			r.Get("/{id}", srv.handleGetOffer)
			r.Post("/{id}/accept", srv.handleAccept)
			r.Post("/{id}/decline", srv.handleDecline)
			r.Post("/{id}/undo", srv.handleUndo)
		})
		r.Route("/sync", func(r chi.Router) {
			r.Get("/queue", srv.handleQueue)
			r.Get("/failed", srv.handleFailed)
			r.Delete("/failed", srv.handleClearFailed)
			r.Post("/drain", srv.handleDrain)
		})
	})

	srv.router = r
	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

// Handler returns the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type offerView struct {
	models.Offer
	Status     models.OfferStatus `json:"status"`
	AcceptedAt *time.Time         `json:"accepted_at,omitempty"`
	CanUndo    bool               `json:"can_undo"`
}

func (s *HTTPServer) view(o models.Offer) offerView {
	v := offerView{Offer: o}
	v.Status, _ = s.offers.GetOfferStatus(o.ID)
	if ts, ok := s.offers.AcceptedAt(o.ID); ok {
		v.AcceptedAt = &ts
		v.CanUndo = s.offers.CanUndo(o.ID)
	}
	return v
}

var listOrder = []models.OfferStatus{
	models.StatusPending,
	models.StatusAccepted,
	models.StatusDeclined,
	models.StatusExpired,
}

func (s *HTTPServer) handleListOffers(w http.ResponseWriter, r *http.Request) {
	statuses := listOrder
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.OfferStatus(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		statuses = []models.OfferStatus{status}
	}

	out := make([]offerView, 0)
	for _, status := range statuses {
		for _, o := range s.offers.OffersByStatus(status) {
			out = append(out, s.view(o))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": out})
}

func (s *HTTPServer) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	o, ok := s.offers.GetOffer(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "offer not found")
		return
	}
	writeJSON(w, http.StatusOK, s.view(o))
}

func (s *HTTPServer) handleAccept(w http.ResponseWriter, r *http.Request) {
	if err := s.offers.AcceptOffer(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleDecline(w http.ResponseWriter, r *http.Request) {
	if err := s.offers.DeclineOffer(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleUndo(w http.ResponseWriter, r *http.Request) {
	undone := s.offers.UndoAccept(r.Context(), chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]bool{"undone": undone})
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = s.userID
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := s.offers.FetchOffers(r.Context(), userID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pending": len(s.offers.OffersByStatus(models.StatusPending))})
}

func (s *HTTPServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"actions": s.offers.PendingActions()})
}

func (s *HTTPServer) handleFailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"actions": s.offers.FailedActions()})
}

func (s *HTTPServer) handleClearFailed(w http.ResponseWriter, r *http.Request) {
	s.offers.ClearFailedActions(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleDrain(w http.ResponseWriter, r *http.Request) {
	if s.drainer == nil {
		writeError(w, http.StatusServiceUnavailable, "sync worker not running")
		return
	}
	writeJSON(w, http.StatusOK, s.drainer.Drain(r.Context()))
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, store.ErrRemoteFailure):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.IncHTTP(route)

		s.logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", recorder.status).
			Dur("dur", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
