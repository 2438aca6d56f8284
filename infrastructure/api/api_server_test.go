package api_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	querybuddy "github.com/querybuddy/querybuddy"
	"github.com/querybuddy/querybuddy/infrastructure/api"
	"github.com/querybuddy/querybuddy/infrastructure/provider"
	"github.com/querybuddy/querybuddy/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	replies   []string
	chatCalls int
}

func (f *fakeProvider) ChatCompletion(_ context.Context, _ provider.ChatCompletionRequest) (provider.ChatCompletionResponse, error) {
	reply := "```sql\nSELECT 1\n```"
	if f.chatCalls < len(f.replies) {
		reply = f.replies[f.chatCalls]
	}
	f.chatCalls++
	return provider.NewChatCompletionResponse(reply, "stop", provider.NewUsage(10, 5, 15)), nil
}

func (f *fakeProvider) SupportsTextGeneration() bool { return true }

func (f *fakeProvider) Embed(_ context.Context, req provider.EmbeddingRequest) (provider.EmbeddingResponse, error) {
	texts := req.Texts()
	embeddings := make([][]float64, len(texts))
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		vec := make([]float64, 8)
		for j := range vec {
			bits := binary.BigEndian.Uint32(sum[j*4 : j*4+4])
			vec[j] = float64(bits)/float64(1<<32) - 0.5
		}
		embeddings[i] = vec
	}
	return provider.NewEmbeddingResponse(embeddings, provider.NewUsage(len(texts), 0, len(texts))), nil
}

func (f *fakeProvider) SupportsEmbedding() bool { return true }

func newTestHandler(t *testing.T, fake *fakeProvider, apiKeys []string) http.Handler {
	t.Helper()
	opts := []querybuddy.Option{
		querybuddy.WithDatabaseURL(testdb.RetailURL(t)),
		querybuddy.WithTextProvider(fake),
		querybuddy.WithEmbeddingProvider(fake),
		querybuddy.WithInsightDisabled(),
	}
	if len(apiKeys) > 0 {
		opts = append(opts, querybuddy.WithAPIKeys(apiKeys...))
	}
	client, err := querybuddy.New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return api.NewAPIServer(client, nil).Handler()
}

func createSession(t *testing.T, handler http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.Data.ID)
	return resp.Data.ID
}

func postQuestion(handler http.Handler, sessionID, question string) *httptest.ResponseRecorder {
	body := fmt.Sprintf(`{"data":{"type":"question","attributes":{"question":%q}}}`, question)
	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/sessions/"+sessionID+"/questions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(t, &fakeProvider{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestSessionLifecycle(t *testing.T) {
	fake := &fakeProvider{replies: []string{
		"```sql\nSELECT name FROM customers ORDER BY id\n```\nLists all customers.",
	}}
	handler := newTestHandler(t, fake, nil)

	sessionID := createSession(t, handler)

	// Ask a question.
	w := postQuestion(handler, sessionID, "who are my customers?")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var turnResp struct {
		Data struct {
			Type       string `json:"type"`
			Attributes struct {
				SQL         string   `json:"sql"`
				Explanation string   `json:"explanation"`
				Columns     []string `json:"columns"`
				RowCount    int      `json:"row_count"`
				Truncated   bool     `json:"truncated"`
			} `json:"attributes"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&turnResp))
	assert.Equal(t, "turn", turnResp.Data.Type)
	assert.Equal(t, "SELECT name FROM customers ORDER BY id", turnResp.Data.Attributes.SQL)
	assert.Equal(t, []string{"name"}, turnResp.Data.Attributes.Columns)
	assert.Equal(t, 4, turnResp.Data.Attributes.RowCount)
	assert.False(t, turnResp.Data.Attributes.Truncated)

	// History lists the completed turn.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+sessionID+"/turns", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var listResp struct {
		Data []struct {
			ID         string `json:"id"`
			Attributes struct {
				Question string `json:"question"`
			} `json:"attributes"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&listResp))
	require.Len(t, listResp.Data, 1)
	assert.Equal(t, "0", listResp.Data[0].ID)
	assert.Equal(t, "who are my customers?", listResp.Data[0].Attributes.Question)

	// Summary counts the turn and its rows.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+sessionID, nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var summaryResp struct {
		Data struct {
			Attributes struct {
				Turns     int `json:"turns"`
				TotalRows int `json:"total_rows"`
			} `json:"attributes"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summaryResp))
	assert.Equal(t, 1, summaryResp.Data.Attributes.Turns)
	assert.Equal(t, 4, summaryResp.Data.Attributes.TotalRows)

	// Delete the session; it is gone afterwards.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+sessionID, nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+sessionID, nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAskUnknownSessionReturns404(t *testing.T) {
	handler := newTestHandler(t, &fakeProvider{}, nil)

	w := postQuestion(handler, "no-such-session", "anything?")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAskEmptyQuestionReturns400(t *testing.T) {
	handler := newTestHandler(t, &fakeProvider{}, nil)
	sessionID := createSession(t, handler)

	w := postQuestion(handler, sessionID, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnsafeGenerationReturns422(t *testing.T) {
	fake := &fakeProvider{replies: []string{"```sql\nDROP TABLE customers\n```"}}
	handler := newTestHandler(t, fake, nil)
	sessionID := createSession(t, handler)

	w := postQuestion(handler, sessionID, "clean up")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSchemaEndpoint(t *testing.T) {
	handler := newTestHandler(t, &fakeProvider{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schema", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []struct {
			Type       string `json:"type"`
			Attributes struct {
				Table string `json:"table"`
				Text  string `json:"text"`
			} `json:"attributes"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Data, 5)
	assert.Equal(t, "fragment", resp.Data[0].Type)
	assert.Contains(t, resp.Data[0].Attributes.Text, "Table: customers")
}

func TestWriteEndpointsRequireKey(t *testing.T) {
	handler := newTestHandler(t, &fakeProvider{}, []string{"test-secret-key"})

	// Mutating requests without a key are rejected.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// With the key they pass.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	req.Header.Set("X-API-KEY", "test-secret-key")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	// Read-only requests stay open.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/schema", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health never requires a key.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDocsEndpointOpen(t *testing.T) {
	fake := &fakeProvider{}
	client, err := querybuddy.New(context.Background(),
		querybuddy.WithDatabaseURL(testdb.RetailURL(t)),
		querybuddy.WithTextProvider(fake),
		querybuddy.WithEmbeddingProvider(fake),
		querybuddy.WithInsightDisabled(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	apiServer := api.NewAPIServer(client, nil)
	router := apiServer.Router()
	apiServer.MountRoutes()
	router.Mount("/docs", apiServer.DocsRouter("/docs/openapi.json").Routes())

	req := httptest.NewRequest(http.MethodGet, "/docs/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/docs/openapi.json", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "QueryBuddy API")
}

func TestQueryLogEndpoint(t *testing.T) {
	fake := &fakeProvider{replies: []string{
		"```sql\nSELECT name FROM customers ORDER BY id\n```",
	}}
	handler := newTestHandler(t, fake, nil)

	sessionID := createSession(t, handler)
	require.Equal(t, http.StatusOK, postQuestion(handler, sessionID, "who are my customers?").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/query-log", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data []struct {
			Type       string `json:"type"`
			Attributes struct {
				SessionID string `json:"session_id"`
				Question  string `json:"question"`
				SQL       string `json:"sql"`
				RowCount  int    `json:"row_count"`
			} `json:"attributes"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "query", resp.Data[0].Type)
	assert.Equal(t, sessionID, resp.Data[0].Attributes.SessionID)
	assert.Equal(t, "who are my customers?", resp.Data[0].Attributes.Question)
	assert.Equal(t, 4, resp.Data[0].Attributes.RowCount)

	// Session filter returns the same entry; unknown sessions return none.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/query-log?session_id="+sessionID, nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Data, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/query-log?session_id=missing", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Empty(t, resp.Data)
}

func TestQueryLogEndpointRejectsBadLimit(t *testing.T) {
	handler := newTestHandler(t, &fakeProvider{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/query-log?limit=zero", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
