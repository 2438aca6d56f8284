package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mark3labs/mcp-go/server"
	querybuddy "github.com/querybuddy/querybuddy"
	apimiddleware "github.com/querybuddy/querybuddy/infrastructure/api/middleware"
	v1 "github.com/querybuddy/querybuddy/infrastructure/api/v1"
	mcpinternal "github.com/querybuddy/querybuddy/internal/mcp"
)

// APIServer provides an HTTP API backed by a querybuddy Client.
type APIServer struct {
	client       *querybuddy.Client
	apiKeys      []string
	server       *Server
	router       chi.Router
	routerCalled bool
	logger       *slog.Logger
}

// NewAPIServer creates a new APIServer wired to the given querybuddy
// Client. apiKeys configures write-protection: mutating endpoints (POST,
// DELETE) require a valid key. Read-only endpoints, health, and docs
// remain open. Passing nil uses the client's configured keys.
func NewAPIServer(client *querybuddy.Client, apiKeys []string) *APIServer {
	if apiKeys == nil {
		apiKeys = client.APIKeys()
	}
	return &APIServer{
		client:  client,
		apiKeys: apiKeys,
		logger:  client.Logger(),
	}
}

// Router returns the chi router for customization before starting.
// Call this first, add custom middleware with router.Use(), then call
// MountRoutes(). If not called, ListenAndServe creates a default router
// with all standard routes.
func (a *APIServer) Router() chi.Router {
	if a.router != nil {
		return a.router
	}

	a.router = chi.NewRouter()
	a.routerCalled = true
	return a.router
}

// MountRoutes wires up all v1 API routes on the router.
// Call this after adding any custom middleware via Router().Use().
func (a *APIServer) MountRoutes() {
	if a.router == nil {
		a.Router()
	}
	a.mountRoutes(a.router)
}

// mountRoutes wires up all v1 API routes on the given router.
func (a *APIServer) mountRoutes(router chi.Router) {
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", apimiddleware.APIKeyHeader},
		MaxAge:         300,
	}))
	router.Use(apimiddleware.Logging(a.logger))

	sessionsRouter := v1.NewSessionsRouter(a.client)
	schemaRouter := v1.NewSchemaRouter(a.client)
	queryLogRouter := v1.NewQueryLogRouter(a.client)

	router.Route("/api/v1", func(r chi.Router) {
		// Generation plus execution can take well over a minute when the
		// model endpoint retries, so the route timeout is generous.
		r.Use(chimiddleware.Timeout(2 * time.Minute))
		r.Use(apimiddleware.WriteProtectAuth(a.apiKeys))

		r.Mount("/sessions", sessionsRouter.Routes())
		r.Mount("/schema", schemaRouter.Routes())
		r.Mount("/query-log", queryLogRouter.Routes())
	})

	router.Get("/healthz", a.health)

	// MCP (Model Context Protocol) endpoint, mounted without the timeout
	// middleware. MCP uses streaming responses and manages its own session
	// state via response headers, which is incompatible with chi's Timeout
	// middleware that wraps the ResponseWriter.
	mcpSrv := mcpinternal.NewServer(a.client, querybuddy.Version, a.logger)
	httpHandler := server.NewStreamableHTTPServer(mcpSrv.MCPServer())
	router.Mount("/mcp", httpHandler)
}

// health handles GET /healthz. It pings the target database.
func (a *APIServer) health(w http.ResponseWriter, r *http.Request) {
	if err := a.client.Healthy(r.Context()); err != nil {
		apimiddleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	apimiddleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DocsRouter returns a router for Swagger UI and OpenAPI spec.
func (a *APIServer) DocsRouter(specURL string) *DocsRouter {
	return NewDocsRouter(specURL)
}

// ListenAndServe starts the HTTP server on the given address.
func (a *APIServer) ListenAndServe(addr string) error {
	server := NewServer(addr, a.logger)
	a.server = &server

	if a.routerCalled && a.router != nil {
		server.Router().Mount("/", a.router)
	} else {
		a.mountRoutes(server.Router())
	}

	return server.Start()
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Handler returns the router as an http.Handler for use with custom servers.
func (a *APIServer) Handler() http.Handler {
	if a.router == nil {
		a.Router()
		a.MountRoutes()
	}
	return a.router
}
