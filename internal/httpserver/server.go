package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/citypulse/citypulse/internal/auth"
	"github.com/citypulse/citypulse/internal/config"
	"github.com/citypulse/citypulse/internal/domain"
	"github.com/citypulse/citypulse/internal/live"
)

// Server is the HTTP server exposing the pulse lifecycle and aggregation
// endpoints.
type Server struct {
	cfg        *config.Config
	service    *domain.PulseService
	views      *live.Manager
	ambient    domain.AmbientSource
	prefs      domain.PrefsStore
	logger     *slog.Logger
	secret     []byte
	httpServer *http.Server
}

// NewServer creates a new HTTP server around the pulse service and the live
// view manager.
func NewServer(
	cfg *config.Config,
	service *domain.PulseService,
	views *live.Manager,
	ambient domain.AmbientSource,
	prefs domain.PrefsStore,
	logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
		views:   views,
		ambient: ambient,
		prefs:   prefs,
		logger:  logger,
		secret:  []byte(cfg.JWTSecret),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /pulses", s.handleCreatePulse)
	mux.HandleFunc("DELETE /pulses/{id}", s.handleDeletePulse)
	mux.HandleFunc("GET /pulses", s.handleCityFeed)
	mux.HandleFunc("GET /city-mood", s.handleCityMood)
	mux.HandleFunc("GET /streak", s.handleStreak)
	mux.HandleFunc("GET /onboarding", s.handleOnboarding)
	mux.HandleFunc("POST /onboarding/complete", s.handleOnboardingComplete)
	mux.HandleFunc("POST /summary", s.handleSummary)
	mux.HandleFunc("POST /auto-seed", s.handleAutoSeed)
	mux.HandleFunc("GET /prefs/city", s.handleGetLastCity)
	mux.HandleFunc("PUT /prefs/city", s.handleSetLastCity)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(logger, withMetrics(mux)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) identity(r *http.Request) (auth.Identity, error) {
	return auth.ParseBearer(r.Header.Get("Authorization"), s.secret)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreatePulse(w http.ResponseWriter, r *http.Request) {
	identity, err := s.identity(r)
	if err != nil || identity.UserID == "" {
		pulsesRejected.WithLabelValues("auth").Inc()
		writeError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "sign in to post a pulse")
		return
	}

	var draft domain.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return
	}
	if draft.Author == "" {
		draft.Author = identity.DisplayName
	}

	pulse, err := s.service.CreatePulse(r.Context(), identity.UserID, draft)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	pulsesCreated.Inc()

	// Optimistic copy into the live view; the change feed confirmation is a
	// dedupe no-op.
	s.views.ApplyInsert(*pulse)

	writeJSON(w, http.StatusCreated, map[string]any{"pulse": pulse})
}

func (s *Server) handleDeletePulse(w http.ResponseWriter, r *http.Request) {
	identity, err := s.identity(r)
	if err != nil || identity.UserID == "" {
		writeError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "sign in to delete a pulse")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "pulse id must be an integer")
		return
	}

	pulse, err := s.service.GetPulse(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	if err := s.service.DeletePulse(r.Context(), identity.UserID, id); err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.views.ApplyDelete(pulse.City, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCityFeed(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if city == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "city parameter is required")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	// A cursor request is a stateless load-more; the first page goes
	// through the live view so the city gets watched.
	if c := r.URL.Query().Get("cursor"); c != "" {
		millis, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "cursor must be unix milliseconds")
			return
		}
		before := time.UnixMilli(millis).UTC()
		page, err := s.service.CityFeed(r.Context(), city, limit, &before)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, feedResponse(page.Pulses, domain.FeedLoaded, page.HasMore, page.NextCursor))
		return
	}

	view, err := s.views.Acquire(r.Context(), city)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	pulses, phase, hasMore := view.Feed()
	var next *time.Time
	if hasMore && len(pulses) > 0 {
		t := pulses[len(pulses)-1].CreatedAt
		next = &t
	}
	writeJSON(w, http.StatusOK, feedResponse(pulses, phase, hasMore, next))
}

func feedResponse(pulses []domain.Pulse, phase domain.FeedPhase, hasMore bool, next *time.Time) map[string]any {
	resp := map[string]any{
		"pulses":  pulses,
		"phase":   phase,
		"hasMore": hasMore,
	}
	if next != nil {
		resp["nextCursor"] = next.UnixMilli()
	}
	return resp
}

func (s *Server) handleCityMood(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	city := q.Get("city")
	if city == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "city parameter is required")
		return
	}

	// Explicit ambient ammo on the query overrides live sampling.
	if q.Has("eventsCount") || q.Has("trafficLevel") || q.Has("weatherCondition") || q.Has("newsCount") {
		override := domain.AmbientSnapshot{
			TrafficLevel:     q.Get("trafficLevel"),
			WeatherCondition: q.Get("weatherCondition"),
		}
		override.EventsCount, _ = strconv.Atoi(q.Get("eventsCount"))
		override.NewsCount, _ = strconv.Atoi(q.Get("newsCount"))

		mood, err := s.service.CityVibe(r.Context(), city, &override, "")
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, mood)
		return
	}

	view, err := s.views.Acquire(r.Context(), city)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Mood())
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	identity, err := s.identity(r)
	if err != nil || identity.UserID == "" {
		writeError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "sign in to see your streak")
		return
	}

	streak, err := s.service.UserStreak(r.Context(), identity.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, streak)
}

func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	identity, err := s.identity(r)
	if err != nil || identity.UserID == "" {
		// No identity yet: never prompt.
		writeJSON(w, http.StatusOK, map[string]bool{"showFirstPulsePrompt": false})
		return
	}

	show, err := s.service.ShouldPromptFirstPulse(r.Context(), identity.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"showFirstPulsePrompt": show})
}

func (s *Server) handleOnboardingComplete(w http.ResponseWriter, r *http.Request) {
	identity, err := s.identity(r)
	if err != nil || identity.UserID == "" {
		writeError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "sign in first")
		return
	}

	if err := s.service.Onboarding().Complete(r.Context(), identity.UserID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var body struct {
		City string `json:"city"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.City == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "city is required")
		return
	}

	sample := s.citySample(r.Context(), body.City)
	summary := s.service.Summary(r.Context(), body.City, sample)
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (s *Server) handleAutoSeed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		City string `json:"city"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.City == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "city is required")
		return
	}

	sample := s.citySample(r.Context(), body.City)
	created, err := s.service.AutoSeed(r.Context(), body.City, sample)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"created": created})
}

// citySample reuses the live view's settled sample when one exists, and
// otherwise runs a fresh ambient round under a new request token.
func (s *Server) citySample(ctx context.Context, city string) domain.AmbientSample {
	if view, err := s.views.Acquire(ctx, city); err == nil {
		if sample, ok := view.Sample(); ok {
			return sample
		}
	}
	if s.ambient == nil {
		return domain.AmbientSample{City: city}
	}
	return s.ambient.Sample(ctx, uuid.NewString(), city)
}

func (s *Server) handleGetLastCity(w http.ResponseWriter, r *http.Request) {
	identity, err := s.identity(r)
	if err != nil || identity.UserID == "" {
		writeError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "sign in first")
		return
	}

	pref, err := s.prefs.LastCity(r.Context(), identity.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if pref == nil {
		writeJSON(w, http.StatusOK, map[string]any{"city": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"city": pref})
}

func (s *Server) handleSetLastCity(w http.ResponseWriter, r *http.Request) {
	identity, err := s.identity(r)
	if err != nil || identity.UserID == "" {
		writeError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "sign in first")
		return
	}

	var pref domain.CityPref
	if err := json.NewDecoder(r.Body).Decode(&pref); err != nil || pref.Name == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "city name is required")
		return
	}

	if err := s.prefs.SetLastCity(r.Context(), identity.UserID, pref); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps domain errors onto the HTTP error taxonomy.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError

	switch {
	case errors.As(err, &validation):
		pulsesRejected.WithLabelValues("validation").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"code":   "VALIDATION_FAILED",
			"fields": validation.Fields,
		})
	case errors.Is(err, domain.ErrModerationFailed):
		pulsesRejected.WithLabelValues("moderation").Inc()
		writeError(w, http.StatusBadRequest, "MODERATION_FAILED", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "sign in first")
	case errors.Is(err, domain.ErrNotOwner):
		writeError(w, http.StatusForbidden, "NOT_OWNER", "only the author can delete a pulse")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "pulse not found")
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "something went wrong, try again")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
