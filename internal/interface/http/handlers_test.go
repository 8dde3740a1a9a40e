package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readstack-hub/progression-engine/internal/application/command"
	"github.com/readstack-hub/progression-engine/internal/application/query"
	"github.com/readstack-hub/progression-engine/internal/domain/achievement"
	"github.com/readstack-hub/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

const apiTestUserID = "5b3c1a9e-0b2f-4f7e-9d7a-2c3e4f5a6b7c"

// newTestServer wires a full server against the in-memory store.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := logger.New(logger.Options{Output: io.Discard})
	store := memory.NewStore()
	catalog := achievement.NewStaticProvider(achievement.DefaultCatalog())
	evaluator := achievement.NewEvaluator(log)

	config := DefaultConfig()
	config.RateLimitPerMinute = 0

	srv := NewServer(config, Dependencies{
		AddPointsHandler:        command.NewAddPointsHandler(store, evaluator, catalog, nil, time.UTC, log),
		TouchStreakHandler:      command.NewTouchStreakHandler(store, evaluator, catalog, nil, time.UTC, log),
		IncrementCounterHandler: command.NewIncrementCounterHandler(store, evaluator, catalog, nil, time.UTC, log),
		MarkSeenHandler:         command.NewMarkSeenHandler(store, nil, log),
		GetProgressHandler:      query.NewGetProgressHandler(store, catalog, nil, log),
		GetAchievementsHandler:  query.NewGetAchievementsHandler(store, catalog, log),
		GetLedgerHandler:        query.NewGetLedgerHandler(store, log),
		Logger:                  log,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// doJSON posts a JSON body and decodes the response envelope.
func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any) (int, JSONResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope JSONResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp.StatusCode, envelope
}

// dataMap extracts the data object from an envelope.
func dataMap(t *testing.T, envelope JSONResponse) map[string]any {
	t.Helper()
	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok, "expected object data, got %T", envelope.Data)
	return data
}

func TestAPI_AddPointsAndReadProgress(t *testing.T) {
	ts := newTestServer(t)

	status, envelope := doJSON(t, ts, http.MethodPost, "/api/v1/users/"+apiTestUserID+"/points", map[string]any{
		"points": 40,
		"reason": "item_read",
	})
	require.Equal(t, http.StatusOK, status)
	require.True(t, envelope.Success)

	data := dataMap(t, envelope)
	assert.EqualValues(t, 40, data["total_points"])
	assert.EqualValues(t, 40, data["applied_points"])

	status, envelope = doJSON(t, ts, http.MethodGet, "/api/v1/users/"+apiTestUserID+"/progress", nil)
	require.Equal(t, http.StatusOK, status)
	data = dataMap(t, envelope)
	assert.EqualValues(t, 40, data["total_points"])
}

func TestAPI_AddPointsValidation(t *testing.T) {
	ts := newTestServer(t)

	status, envelope := doJSON(t, ts, http.MethodPost, "/api/v1/users/"+apiTestUserID+"/points", map[string]any{
		"points": -5,
		"reason": "item_read",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "invalid_request", envelope.Error.Code)

	// Malformed user id fails validation the same way.
	status, _ = doJSON(t, ts, http.MethodPost, "/api/v1/users/not-a-uuid/points", map[string]any{
		"points": 5,
		"reason": "item_read",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_ProgressNotFound(t *testing.T) {
	ts := newTestServer(t)

	status, envelope := doJSON(t, ts, http.MethodGet, "/api/v1/users/"+apiTestUserID+"/progress", nil)
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "not_found", envelope.Error.Code)
}

func TestAPI_TouchStreakWithoutBody(t *testing.T) {
	ts := newTestServer(t)

	status, envelope := doJSON(t, ts, http.MethodPost, "/api/v1/users/"+apiTestUserID+"/streak", nil)
	require.Equal(t, http.StatusOK, status)

	data := dataMap(t, envelope)
	assert.Equal(t, "started", data["transition"])
	assert.EqualValues(t, 1, data["current_streak"])

	// Same day again leaves the streak unchanged.
	status, envelope = doJSON(t, ts, http.MethodPost, "/api/v1/users/"+apiTestUserID+"/streak", nil)
	require.Equal(t, http.StatusOK, status)
	data = dataMap(t, envelope)
	assert.Equal(t, "unchanged", data["transition"])
	assert.EqualValues(t, 1, data["current_streak"])
}

func TestAPI_IncrementCounter(t *testing.T) {
	ts := newTestServer(t)

	status, envelope := doJSON(t, ts, http.MethodPost, "/api/v1/users/"+apiTestUserID+"/counters/items_read", map[string]any{
		"by": 3,
	})
	require.Equal(t, http.StatusOK, status)

	data := dataMap(t, envelope)
	assert.Equal(t, "items_read", data["counter"])
	assert.EqualValues(t, 3, data["new_value"])
}

func TestAPI_MarkSeenFlow(t *testing.T) {
	ts := newTestServer(t)

	// A perfect quiz earns an award to acknowledge.
	status, envelope := doJSON(t, ts, http.MethodPost, "/api/v1/users/"+apiTestUserID+"/points", map[string]any{
		"points":       10,
		"reason":       "quiz_correct",
		"perfect_quiz": true,
	})
	require.Equal(t, http.StatusOK, status)
	data := dataMap(t, envelope)
	awarded, ok := data["newly_awarded"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, awarded)

	status, envelope = doJSON(t, ts, http.MethodPost, "/api/v1/users/"+apiTestUserID+"/achievements/seen", map[string]any{
		"achievement_ids": awarded,
	})
	require.Equal(t, http.StatusOK, status)
	data = dataMap(t, envelope)
	assert.EqualValues(t, len(awarded), data["updated"])
}

func TestAPI_LedgerPagination(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 3; i++ {
		status, _ := doJSON(t, ts, http.MethodPost, "/api/v1/users/"+apiTestUserID+"/points", map[string]any{
			"points": 10,
			"reason": "item_read",
		})
		require.Equal(t, http.StatusOK, status)
	}

	status, envelope := doJSON(t, ts, http.MethodGet, "/api/v1/users/"+apiTestUserID+"/ledger?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, status)

	data := dataMap(t, envelope)
	entries, ok := data["entries"].([]any)
	require.True(t, ok)
	assert.Len(t, entries, 2)

	require.NotNil(t, envelope.Meta)
	assert.Equal(t, 1, envelope.Meta.Page)
	assert.Equal(t, 2, envelope.Meta.PageSize)
	assert.True(t, envelope.Meta.HasMore)

	status, envelope = doJSON(t, ts, http.MethodGet, "/api/v1/users/"+apiTestUserID+"/ledger?page=2&page_size=2", nil)
	require.Equal(t, http.StatusOK, status)
	data = dataMap(t, envelope)
	entries, ok = data["entries"].([]any)
	require.True(t, ok)
	assert.Len(t, entries, 1)
}

func TestAPI_InvalidJSONBody(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.Client().Post(
		ts.URL+"/api/v1/users/"+apiTestUserID+"/points",
		"application/json",
		bytes.NewBufferString("{not json"),
	)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_WriteRoutesRequireAPIKey(t *testing.T) {
	log := logger.New(logger.Options{Output: io.Discard})
	store := memory.NewStore()
	catalog := achievement.NewStaticProvider(achievement.DefaultCatalog())
	evaluator := achievement.NewEvaluator(log)

	config := DefaultConfig()
	config.RateLimitPerMinute = 0
	config.APIKeys = []string{"secret-key"}

	srv := NewServer(config, Dependencies{
		AddPointsHandler:   command.NewAddPointsHandler(store, evaluator, catalog, nil, time.UTC, log),
		GetProgressHandler: query.NewGetProgressHandler(store, catalog, nil, log),
		Logger:             log,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	body := `{"points": 10, "reason": "item_read"}`

	// No key: rejected.
	resp, err := ts.Client().Post(
		ts.URL+"/api/v1/users/"+apiTestUserID+"/points",
		"application/json",
		bytes.NewBufferString(body),
	)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid key: accepted.
	req, err := http.NewRequest(http.MethodPost,
		ts.URL+"/api/v1/users/"+apiTestUserID+"/points",
		bytes.NewBufferString(body),
	)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "secret-key")

	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Read routes stay open.
	getResp, err := ts.Client().Get(ts.URL + "/api/v1/users/" + apiTestUserID + "/progress")
	require.NoError(t, err)
	getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestAPI_HealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/health", "/live", "/ready"} {
		status, _ := doJSON(t, ts, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, status, path)
	}
}
