// Package v1 implements the versioned HTTP API.
package v1

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	querybuddy "github.com/querybuddy/querybuddy"
	"github.com/querybuddy/querybuddy/infrastructure/api/jsonapi"
	"github.com/querybuddy/querybuddy/infrastructure/api/middleware"
	"github.com/querybuddy/querybuddy/infrastructure/api/v1/dto"
)

// SessionsRouter handles session and question endpoints.
type SessionsRouter struct {
	client *querybuddy.Client
	logger *slog.Logger
}

// NewSessionsRouter creates a SessionsRouter.
func NewSessionsRouter(client *querybuddy.Client) *SessionsRouter {
	return &SessionsRouter{
		client: client,
		logger: client.Logger(),
	}
}

// Routes returns the chi router for session endpoints.
func (r *SessionsRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", r.Create)
	router.Get("/{sessionID}", r.Show)
	router.Delete("/{sessionID}", r.Delete)
	router.Post("/{sessionID}/questions", r.AskQuestion)
	router.Get("/{sessionID}/turns", r.ListTurns)

	return router
}

// Create handles POST /api/v1/sessions.
func (r *SessionsRouter) Create(w http.ResponseWriter, req *http.Request) {
	session := r.client.Sessions().Create()
	resource := jsonapi.SessionResource(session.ID(), session.CreatedAt(), session.Manager().Summary())
	middleware.WriteJSON(w, http.StatusCreated, jsonapi.NewSingleResponse(resource))
}

// Show handles GET /api/v1/sessions/{sessionID}. The attributes carry the
// conversation summary.
func (r *SessionsRouter) Show(w http.ResponseWriter, req *http.Request) {
	session, err := r.client.Sessions().Get(chi.URLParam(req, "sessionID"))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	resource := jsonapi.SessionResource(session.ID(), session.CreatedAt(), session.Manager().Summary())
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewSingleResponse(resource))
}

// Delete handles DELETE /api/v1/sessions/{sessionID}.
func (r *SessionsRouter) Delete(w http.ResponseWriter, req *http.Request) {
	if err := r.client.Sessions().Delete(chi.URLParam(req, "sessionID")); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AskQuestion handles POST /api/v1/sessions/{sessionID}/questions. It runs
// the full pipeline and returns the completed turn.
func (r *SessionsRouter) AskQuestion(w http.ResponseWriter, req *http.Request) {
	var body dto.QuestionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		middleware.WriteErrorStatus(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := r.client.Ask(req.Context(), chi.URLParam(req, "sessionID"), body.Data.Attributes.Question)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewSingleResponse(jsonapi.TurnResource(turn)))
}

// ListTurns handles GET /api/v1/sessions/{sessionID}/turns.
func (r *SessionsRouter) ListTurns(w http.ResponseWriter, req *http.Request) {
	session, err := r.client.Sessions().Get(chi.URLParam(req, "sessionID"))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	turns := session.Manager().Recent(session.Manager().Len())
	middleware.WriteJSON(w, http.StatusOK, jsonapi.TurnListResponse(turns))
}
