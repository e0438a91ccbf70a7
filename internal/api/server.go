package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sqkstwj/juzhondianping/internal/domain"
	"github.com/sqkstwj/juzhondianping/internal/seckill"
	"github.com/sqkstwj/juzhondianping/internal/shop"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, shops *shop.Service, seckillSvc *seckill.Service, version string) *Server {
	handler := NewHandler(repo, cache, shops, seckillSvc, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no user required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Shop catalog
	router.Get("/shops/{id}", handler.GetShop)
	router.Post("/shops", handler.CreateShop)
	router.Put("/shops/{id}", handler.UpdateShop)
	router.Post("/shops/{id}/warm", handler.WarmShop)

	// Voucher catalog
	router.Get("/vouchers/{id}", handler.GetVoucher)
	router.Post("/vouchers", handler.CreateVoucher)

	// Purchase routes (user required)
	router.Route("/vouchers/{id}/seckill", func(r chi.Router) {
		r.Use(UserMiddleware)
		r.Post("/", handler.Seckill)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
