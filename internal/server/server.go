package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/oshop/backoffice/config"
	"github.com/oshop/backoffice/internal/db"
	"github.com/oshop/backoffice/internal/handlers"
	"github.com/oshop/backoffice/internal/services"
	appsession "github.com/oshop/backoffice/internal/session"
	"github.com/oshop/backoffice/internal/store"
	"github.com/oshop/backoffice/internal/web"
	"github.com/redis/go-redis/v9"
)

const sessionMaxAgeSeconds = 12 * 60 * 60

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	userService := services.NewUserService(userRepo)

	secret := strings.TrimSpace(cfg.Session.Secret)
	if secret == "" {
		_ = dbConn.Close()
		return nil, errors.New("SESSION_SECRET is required")
	}

	sessionStore, err := newSessionStore(cfg, []byte(secret))
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	sessionManager := appsession.NewManager(sessionStore)

	views, err := web.NewRenderer()
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userHandler := handlers.NewUserHandler(userService, sessionManager, views)

	if !cfg.RBACEnforce {
		log.Printf("warning: RBAC_ENFORCE is off, the user administration pages are not role-guarded")
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	handlers.UserRouter(router, userHandler, cfg.RBACEnforce)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
	}, nil
}

// newSessionStore picks the configured session backend.
func newSessionStore(cfg config.Config, secret []byte) (sessions.Store, error) {
	options := sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAgeSeconds,
		HttpOnly: true,
		Secure:   cfg.Session.Secure,
		SameSite: http.SameSiteStrictMode,
	}

	switch cfg.Session.Backend {
	case "", "cookie":
		cookieStore := sessions.NewCookieStore(secret)
		cookieStore.Options = &options
		return cookieStore, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisStore := appsession.NewRedisStore(client, secret)
		redisStore.SetOptions(options)
		return redisStore, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
