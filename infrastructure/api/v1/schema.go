package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	querybuddy "github.com/querybuddy/querybuddy"
	"github.com/querybuddy/querybuddy/infrastructure/api/jsonapi"
	"github.com/querybuddy/querybuddy/infrastructure/api/middleware"
)

// SchemaRouter exposes the introspected schema.
type SchemaRouter struct {
	client *querybuddy.Client
	logger *slog.Logger
}

// NewSchemaRouter creates a SchemaRouter.
func NewSchemaRouter(client *querybuddy.Client) *SchemaRouter {
	return &SchemaRouter{
		client: client,
		logger: client.Logger(),
	}
}

// Routes returns the chi router for schema endpoints.
func (r *SchemaRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.Show)
	router.Post("/refresh", r.Refresh)

	return router
}

// FragmentAttributes represents a schema fragment in JSON:API format.
type FragmentAttributes struct {
	Table string `json:"table,omitempty"`
	Text  string `json:"text"`
}

// Show handles GET /api/v1/schema. It returns the fragments from the last
// introspection run.
func (r *SchemaRouter) Show(w http.ResponseWriter, req *http.Request) {
	fragments := r.client.Schema()
	resources := make([]*jsonapi.Resource, len(fragments))
	for i, f := range fragments {
		resources[i] = jsonapi.NewResource("fragment", f.ID(), FragmentAttributes{
			Table: f.TableName(),
			Text:  f.Text(),
		})
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewListResponse(resources))
}

// Refresh handles POST /api/v1/schema/refresh. It re-introspects the
// target database and rebuilds the embedding index.
func (r *SchemaRouter) Refresh(w http.ResponseWriter, req *http.Request) {
	if err := r.client.RefreshSchema(req.Context()); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
