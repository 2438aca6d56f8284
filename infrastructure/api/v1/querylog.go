package v1

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	querybuddy "github.com/querybuddy/querybuddy"
	"github.com/querybuddy/querybuddy/domain/query"
	"github.com/querybuddy/querybuddy/infrastructure/api/jsonapi"
	"github.com/querybuddy/querybuddy/infrastructure/api/middleware"
)

// defaultQueryLogLimit caps unpaginated query log listings.
const defaultQueryLogLimit = 50

// QueryLogRouter exposes the audit log of executed queries.
type QueryLogRouter struct {
	client *querybuddy.Client
	logger *slog.Logger
}

// NewQueryLogRouter creates a QueryLogRouter.
func NewQueryLogRouter(client *querybuddy.Client) *QueryLogRouter {
	return &QueryLogRouter{
		client: client,
		logger: client.Logger(),
	}
}

// Routes returns the chi router for query log endpoints.
func (r *QueryLogRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.List)

	return router
}

// RecordAttributes represents one audit log entry in JSON:API format.
type RecordAttributes struct {
	SessionID  string    `json:"session_id"`
	Question   string    `json:"question"`
	SQL        string    `json:"sql"`
	RowCount   int       `json:"row_count"`
	Truncated  bool      `json:"truncated"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// List handles GET /api/v1/query-log. It returns the most recent entries,
// newest first. Supports ?limit=N and ?session_id=ID filters.
func (r *QueryLogRouter) List(w http.ResponseWriter, req *http.Request) {
	limit := defaultQueryLogLimit
	if raw := req.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			middleware.WriteErrorStatus(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	var err error
	var records []query.Record
	if sessionID := req.URL.Query().Get("session_id"); sessionID != "" {
		records, err = r.client.SessionQueryLog(req.Context(), sessionID, limit)
	} else {
		records, err = r.client.QueryLog(req.Context(), limit)
	}
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	resources := make([]*jsonapi.Resource, len(records))
	for i, rec := range records {
		resources[i] = jsonapi.NewResource("query", strconv.Itoa(i), RecordAttributes{
			SessionID:  rec.SessionID(),
			Question:   rec.Question(),
			SQL:        rec.SQL(),
			RowCount:   rec.RowCount(),
			Truncated:  rec.Truncated(),
			DurationMS: rec.Duration().Milliseconds(),
			CreatedAt:  rec.CreatedAt(),
		})
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewListResponse(resources))
}
