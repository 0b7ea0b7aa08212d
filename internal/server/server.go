// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer: it connects handlers, middleware and
// routes, and owns the database handle for the lifetime of the server.
//
// DEPENDENCY INJECTION FLOW:
//
//	sqldb.DB (repositories) ─┬─> AuthService ──> UserHandler
//	                         ├─> RecipeService ─> RecipeHandler
//	storage.LocalStore ──────┘   LabelService ──> LabelHandler (tags, ingredients)
//
// All dependencies are wired in New; handlers never touch the database.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/recipe-api/internal/auth"
	"github.com/sakif/recipe-api/internal/config"
	"github.com/sakif/recipe-api/internal/handler"
	"github.com/sakif/recipe-api/internal/middleware"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository/sqldb"
	"github.com/sakif/recipe-api/internal/service"
	"github.com/sakif/recipe-api/internal/storage"
)

// ServiceName identifies the process in traces.
const ServiceName = "recipe-api"

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it once the HTTP
// server has drained, so in-flight requests never see a closed handle.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqldb.DB
	store  *storage.LocalStore
}

// New wires services and handlers on top of an open, migrated database.
func New(cfg config.Config, db *sqldb.DB, logger *slog.Logger) (*Server, error) {
	store, err := storage.NewLocalStore(cfg.MediaRoot, cfg.MediaURL)
	if err != nil {
		return nil, fmt.Errorf("server: opening media store: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		store:  store,
	}
	s.setupRoutes(tokens, auth.NewPasswordService(cfg.BcryptCost))
	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET            /healthz                          → database ping
//	GET            /media/*                          → uploaded images
//	POST           /user/create                      → register
//	POST           /user/token                       → issue token
//	GET, PATCH     /user/me                          → own profile        [auth]
//	GET, POST      /recipe/recipes                   → list / create      [auth]
//	GET, PUT, PATCH, DELETE /recipe/recipes/{id}     → detail             [auth]
//	POST           /recipe/recipes/{id}/upload-image → image upload       [auth]
//	GET            /recipe/tags, /recipe/ingredients → list               [auth]
//	GET, PUT, PATCH, DELETE /recipe/tags/{id}, /recipe/ingredients/{id}   [auth]
//
// A trailing slash is accepted on every route ("/user/create/").
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns an id the logger reads
//  2. RealIP: client IP from X-Forwarded-For
//  3. Logger: one line per request
//  4. Recoverer: a panic becomes a 500 instead of killing the process
//  5. StripSlashes: "/recipe/recipes/" routes like "/recipe/recipes"
func (s *Server) setupRoutes(tokens *auth.TokenService, passwords *auth.PasswordService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.StripSlashes)

	// Set before any Route call so subrouters inherit them.
	s.router.NotFound(handler.NotFound)
	s.router.MethodNotAllowed(handler.MethodNotAllowed)

	authService := service.NewAuthService(s.db, tokens, passwords, s.logger)
	recipeService := service.NewRecipeService(s.db, s.store, s.config.MaxUploadBytes, s.logger)

	users := handler.NewUserHandler(authService, s.logger)
	recipes := handler.NewRecipeHandler(recipeService, s.logger)
	tags := handler.NewLabelHandler(service.NewLabelService(model.KindTag, s.db, s.logger), s.logger)
	ingredients := handler.NewLabelHandler(service.NewLabelService(model.KindIngredient, s.db, s.logger), s.logger)
	health := handler.NewHealthHandler(s.db, s.logger)

	requireAuth := auth.RequireAuth(tokens, s.db)

	s.router.Get("/healthz", health.HandleHealth)

	mediaPrefix := strings.TrimSuffix(s.config.MediaURL, "/")
	s.router.Handle(mediaPrefix+"/*", http.StripPrefix(mediaPrefix+"/", mediaFiles(s.store.Root())))

	s.router.Route("/user", func(r chi.Router) {
		r.Post("/create", users.HandleCreate)
		r.Post("/token", users.HandleToken)
		r.With(requireAuth).Get("/me", users.HandleMe)
		r.With(requireAuth).Patch("/me", users.HandleUpdate)
	})

	s.router.Route("/recipe", func(r chi.Router) {
		r.Use(requireAuth)

		r.Route("/recipes", func(r chi.Router) {
			r.Get("/", recipes.HandleList)
			r.Post("/", recipes.HandleCreate)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", recipes.HandleGet)
				r.Put("/", recipes.HandleUpdate)
				r.Patch("/", recipes.HandleUpdate)
				r.Delete("/", recipes.HandleDelete)
				r.Post("/upload-image", recipes.HandleUploadImage)
			})
		})

		r.Route("/tags", labelRoutes(tags))
		r.Route("/ingredients", labelRoutes(ingredients))
	})
}

func labelRoutes(h *handler.LabelHandler) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Put("/", h.HandleUpdate)
			r.Patch("/", h.HandleUpdate)
			r.Delete("/", h.HandleDelete)
		})
	}
}

// mediaFiles serves stored uploads. Directory paths are 404: http.FileServer
// would otherwise list every uploaded file name.
func mediaFiles(root string) http.Handler {
	files := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			handler.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// Handler returns the full handler chain, tracing included.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, ServiceName)
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM or a server
// error.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait up to 30s for in-flight requests
//  3. Close the database connection
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second, // image uploads
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("driver", s.db.Driver()),
			slog.String("mediaRoot", s.store.Root()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
