// Package router wires the HTTP routes.
package router

import (
	"net/http"

	"trovr-backend/internal/database"
	"trovr-backend/internal/handlers"
	"trovr-backend/internal/liveness"
	"trovr-backend/internal/middleware"
	"trovr-backend/internal/models"
	"trovr-backend/internal/registry"
	"trovr-backend/internal/scan"
	"trovr-backend/internal/session"
	"trovr-backend/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Store     *database.Store
	Registry  *registry.Registry
	Sessions  *session.Table
	Processor *scan.Processor
	Monitor   *liveness.Monitor
	Hub       *websocket.Hub

	JWTSecret string
	BinAPIKey string
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.BinKeyHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint (authentication handled in handler via query param)
	r.Get("/ws", websocket.HandleWebSocket(d.Hub, d.JWTSecret))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", handlers.Signup(d.Store, d.JWTSecret))
		r.Post("/auth/login", handlers.Login(d.Store, d.JWTSecret))

		r.Get("/containers/{barcode}", handlers.VerifyContainer(d.Processor))

		// Endpoints called by the bins themselves
		r.Group(func(r chi.Router) {
			r.Use(middleware.BinKey(d.BinAPIKey))

			r.Post("/bins/{id}/heartbeat", handlers.BinHeartbeat(d.Registry))
			r.Get("/bins/{id}", handlers.GetBinStatus(d.Registry, d.Sessions))
			r.Post("/bins/{id}/availability", handlers.SetBinAvailability(d.Sessions))
			r.Post("/bins/{id}/scans", handlers.ScanContainer(d.Processor))
			r.Get("/bins/{id}/session", handlers.ConfirmBinUser(d.Registry, d.Sessions, d.Store))
		})

		// User endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(d.JWTSecret))

			r.Post("/sessions", handlers.ClaimSession(d.Sessions, d.Registry))
			r.Get("/sessions/current", handlers.GetCurrentSession(d.Sessions))
			r.Delete("/sessions/current", handlers.ReleaseSession(d.Sessions))
			r.Get("/sessions/current/containers", handlers.GetSessionContainers(d.Processor))

			r.Post("/scans/reject", handlers.RejectScan(d.Processor))

			r.Get("/users/me", handlers.GetMe(d.Store, d.Sessions))
			r.Get("/users/me/containers", handlers.GetMyContainers(d.Store))
			r.Post("/users/me/fcm-token", handlers.RegisterFCMToken(d.Store))
		})

		// Admin endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(d.JWTSecret))
			r.Use(middleware.RequireRole(models.RoleAdmin))

			r.Get("/admin/bins", handlers.ListBins(d.Registry, d.Sessions))
			r.Get("/admin/sessions", handlers.ListSessions(d.Sessions))
			r.Get("/admin/sessions/{id}", handlers.GetSession(d.Store))
			r.Get("/admin/stats", handlers.GetStats(d.Sessions, d.Hub))
			r.Post("/admin/bins/{id}/online", handlers.SetBinOnline(d.Registry))
			r.Post("/admin/liveness/sweep", handlers.TriggerSweep(d.Monitor))
		})
	})

	return r
}
