package rest

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pulse/internal/observability"
	"pulse/internal/service"
	"pulse/internal/transport/rest/handler"
	"pulse/internal/transport/rest/middleware"
	"pulse/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService       *service.AuthService
	SurveyService     *service.SurveyService
	InvitationService *service.InvitationService
	SubmissionService *service.SubmissionService
	LiveService       *service.LiveService
	ReportService     *service.ReportService
	WSHub             *ws.Hub
	Metrics           *observability.Metrics
	Gatherer          prometheus.Gatherer
	SubmitLimiter     *middleware.RateLimiter
	AllowedOrigins    string
	Logger            *slog.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Initialize handlers
	surveyHandler := handler.NewSurveyHandler(c.SurveyService, c.InvitationService)
	submissionHandler := handler.NewSubmissionHandler(c.SubmissionService)
	liveHandler := handler.NewLiveHandler(c.LiveService, c.Metrics)
	reportHandler := handler.NewReportHandler(c.ReportService)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.LiveService, logger)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.AllowedOrigins))
	r.Use(middleware.RequestLogger(logger))

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	if c.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(c.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// WebSocket routes (token in query param)
	v1.HandleFunc("/ws/microsurveys/{id}/live", wsHandler.LiveWS).Methods("GET")

	// Participant routes
	participantRoutes := v1.NewRoute().Subrouter()
	participantRoutes.Use(authMW.RequireCaller)
	if c.SubmitLimiter != nil {
		participantRoutes.Use(c.SubmitLimiter.Limit)
	}
	participantRoutes.HandleFunc("/microsurveys/{id}/responses", submissionHandler.Submit).Methods("POST", "OPTIONS")

	// Live dashboard reads (any caller of the survey's tenant)
	readerRoutes := v1.NewRoute().Subrouter()
	readerRoutes.Use(authMW.RequireCaller)
	readerRoutes.HandleFunc("/microsurveys/{id}/live", liveHandler.Live).Methods("GET", "OPTIONS")

	// Admin routes
	adminRoutes := v1.NewRoute().Subrouter()
	adminRoutes.Use(authMW.RequireAdmin)
	adminRoutes.HandleFunc("/microsurveys", surveyHandler.Create).Methods("POST", "OPTIONS")
	adminRoutes.HandleFunc("/microsurveys", surveyHandler.List).Methods("GET", "OPTIONS")
	adminRoutes.HandleFunc("/microsurveys/{id}", surveyHandler.Get).Methods("GET", "OPTIONS")
	adminRoutes.HandleFunc("/microsurveys/{id}/status", surveyHandler.Transition).Methods("POST", "OPTIONS")
	adminRoutes.HandleFunc("/microsurveys/{id}/invitations", surveyHandler.IssueInvitations).Methods("POST", "OPTIONS")
	adminRoutes.HandleFunc("/microsurveys/{id}/report", reportHandler.GetReport).Methods("GET", "OPTIONS")

	return r
}

func corsMiddleware(allowedOrigins string) mux.MiddlewareFunc {
	if strings.TrimSpace(allowedOrigins) == "" {
		allowedOrigins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag, Retry-After")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
