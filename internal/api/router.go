// Package api exposes the JSON HTTP surface of the bridge.
package api

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"iotview/internal/auth"
	"iotview/internal/config"
	"iotview/internal/device"
	"iotview/internal/dispatch"
	"iotview/internal/history"
)

// Server represents the API server
type Server struct {
	router     *chi.Mux
	store      *device.Store
	registry   *device.Service
	dispatcher *dispatch.Dispatcher
	history    *history.Ring
	accounts   *auth.Accounts
	jwtManager *auth.JWTManager
	authMw     *auth.Middleware
	config     *config.Config
	noAuth     bool
	logger     *log.Logger
}

// Options bundles the collaborators the server needs.
type Options struct {
	Store      *device.Store
	Registry   *device.Service
	Dispatcher *dispatch.Dispatcher
	History    *history.Ring
	Accounts   *auth.Accounts
	Config     *config.Config // optional; enables the settings endpoints
	JWTSecret  string
	JWTExpiry  time.Duration
	NoAuth     bool
	Logger     *log.Logger
}

// NewServer creates the API server and wires all routes.
func NewServer(opts Options) *Server {
	jwtManager := auth.NewJWTManager(opts.JWTSecret, opts.JWTExpiry)

	s := &Server{
		router:     chi.NewRouter(),
		store:      opts.Store,
		registry:   opts.Registry,
		dispatcher: opts.Dispatcher,
		history:    opts.History,
		accounts:   opts.Accounts,
		jwtManager: jwtManager,
		authMw:     auth.NewMiddleware(jwtManager),
		config:     opts.Config,
		noAuth:     opts.NoAuth,
		logger:     opts.Logger,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// Public routes
	r.Post("/api/auth/login", s.handleLogin)

	// Protected routes: any authenticated operator
	r.Group(func(r chi.Router) {
		if !s.noAuth {
			r.Use(s.authMw.RequireAuth)
		} else {
			// In no-auth mode, inject a fake admin user
			r.Use(s.fakeAuthMiddleware)
		}

		// Auth
		r.Post("/api/auth/logout", s.handleLogout)
		r.Get("/api/auth/me", s.handleMe)

		// Dashboard reads
		r.Get("/api/device-data", s.handleDeviceData)
		r.Get("/api/live", s.handleLive)
		if s.config != nil {
			r.Get("/api/settings", s.handleGetSettings)
		}

		// Admin-only mutations
		r.Group(func(r chi.Router) {
			if !s.noAuth {
				r.Use(s.authMw.RequireAdmin)
			}

			// Registry CRUD
			r.Post("/api/sensors", s.handleCreateSensor)
			r.Put("/api/sensors/{id}", s.handleUpdateSensor)
			r.Delete("/api/sensors/{id}", s.handleDeleteSensor)

			r.Post("/api/actuators", s.handleCreateActuator)
			r.Put("/api/actuators/{id}", s.handleUpdateActuator)
			r.Delete("/api/actuators/{id}", s.handleDeleteActuator)

			// Commands
			r.Post("/api/actuator/raw_command", s.handleRawCommand)
			r.Post("/api/actuator/command", s.handleSemanticCommand)
			r.Post("/api/actuators/{id}/toggle", s.handleToggle)

			if s.config != nil {
				r.Put("/api/settings", s.handleUpdateSettings)
			}
		})
	})

	// Static dashboard assets, when present
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir("web/static"))))
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// fakeAuthMiddleware injects a fake admin user for no-auth mode
func (s *Server) fakeAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fakeUser := &auth.User{
			Username: "dev",
			Role:     auth.RoleAdmin,
		}
		ctx := auth.SetUserContext(r.Context(), fakeUser)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
