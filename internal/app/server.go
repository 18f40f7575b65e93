package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/Polibase/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Polibase/internal/api/middlewares"
	"github.com/markdave123-py/Polibase/internal/config"
	"github.com/markdave123-py/Polibase/internal/core"
	"github.com/markdave123-py/Polibase/internal/core/retrieval"
	"github.com/markdave123-py/Polibase/internal/models"
	"github.com/markdave123-py/Polibase/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, store core.TenantStore, docs *services.DocumentService,
	engine *retrieval.Engine, llm core.LLMProvider) *Server {

	authHandler := handlers.NewAuthHandler(store, cfg.JWTSecret)
	orgHandler := handlers.NewOrgHandler(store)
	docHandler := handlers.NewDocumentHandler(store, docs)
	chatHandler := handlers.NewChatHandler(engine, llm, cfg.SearchThreshold, cfg.SearchTopK)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Organization-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// authenticated, not yet organization-scoped
		api.Group(func(authed chi.Router) {
			authed.Use(appMiddleware.JWT(cfg.JWTSecret))
			authed.Post("/organizations", orgHandler.Create)

			// organization-scoped endpoints; every route below reads and
			// writes exactly one tenant
			authed.Group(func(org chi.Router) {
				org.Use(appMiddleware.Membership(store))

				org.Get("/organization", orgHandler.Get)
				org.With(appMiddleware.RequireRole(models.RoleAdmin)).
					Post("/organization/members", orgHandler.AddMember)

				org.Get("/documents", docHandler.List)
				org.Get("/documents/{documentID}", docHandler.Get)

				org.Group(func(writer chi.Router) {
					writer.Use(appMiddleware.RequireRole(models.RoleManager))
					writer.Post("/documents/upload", docHandler.Upload)
					writer.Patch("/documents/{documentID}", docHandler.UpdateMetadata)
					writer.Post("/documents/{documentID}/publish", docHandler.Publish)
					writer.Post("/documents/{documentID}/archive", docHandler.Archive)
					writer.Post("/documents/{documentID}/enabled", docHandler.SetEnabled)
				})

				org.Group(func(admin chi.Router) {
					admin.Use(appMiddleware.RequireRole(models.RoleAdmin))
					admin.Post("/documents/{documentID}/reprocess", docHandler.Reprocess)
					admin.Delete("/documents/{documentID}", docHandler.Delete)
				})

				org.Post("/search", chatHandler.Search)
				org.Post("/chat/ask", chatHandler.Ask)
			})
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
