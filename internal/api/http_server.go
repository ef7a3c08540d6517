package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"adspot/internal/config"
	"adspot/internal/domain"
	"adspot/internal/export"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPServer exposes the reservation engine over HTTP. Routing is a
// plain mux; auth, rate limiting and request logging wrap it.
type HTTPServer struct {
	cfg          config.APIConfig
	inventory    domain.InventoryService
	reservations domain.ReservationService
	settlement   domain.SettlementService
	exporter     *export.Exporter
	server       *http.Server
	auth         *HTTPAuth
	logger       zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	inventory domain.InventoryService,
	reservations domain.ReservationService,
	settlement domain.SettlementService,
	exporter *export.Exporter,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:          cfg,
		inventory:    inventory,
		reservations: reservations,
		settlement:   settlement,
		exporter:     exporter,
		auth:         NewHTTPAuth(cfg),
		logger:       logger.With().Str("component", "http").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/placements", srv.handlePlacements)
	mux.HandleFunc("/api/v1/availability/", srv.handleAvailability)
	mux.HandleFunc("/api/v1/sold/", srv.handleSold)
	mux.HandleFunc("/api/v1/applications", srv.handleApplications)
	mux.HandleFunc("/api/v1/applications/", srv.handleApplicationByID)
	mux.HandleFunc("/api/v1/slots", srv.handleCreateSlot)
	mux.HandleFunc("/api/v1/slots/", srv.handleSlotPrice)
	mux.HandleFunc("/api/v1/reports/applications.xlsx", srv.handleApplicationsReport)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the composed handler, used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("x-request-id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("x-request-id", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
