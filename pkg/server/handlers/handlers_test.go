package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallai/recall/pkg/params"
	"github.com/recallai/recall/pkg/types"
)

type fakeRecall struct {
	result    *types.RetrievalResult
	err       error
	saved     map[string]types.UserParameters
	presets   []string
	retrieved types.RetrievalRequest
}

func newFakeRecall() *fakeRecall {
	return &fakeRecall{saved: make(map[string]types.UserParameters)}
}

func (f *fakeRecall) Retrieve(_ context.Context, req types.RetrievalRequest) (*types.RetrievalResult, error) {
	f.retrieved = req
	return f.result, f.err
}

func (f *fakeRecall) Parameters(_ context.Context, userID string) (types.UserParameters, error) {
	if userID == "" {
		return types.UserParameters{}, &types.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if p, ok := f.saved[userID]; ok {
		return p, nil
	}
	return params.Defaults(), nil
}

func (f *fakeRecall) UpdateParameters(_ context.Context, userID string, p types.UserParameters) error {
	merged := params.Merge(params.Defaults(), p)
	if err := merged.Validate(); err != nil {
		return err
	}
	f.saved[userID] = merged
	return nil
}

func (f *fakeRecall) Presets() []string { return f.presets }

func (f *fakeRecall) Close(context.Context) error { return nil }

func performJSON(t *testing.T, handler gin.HandlerFunc, method, path string, body any, pathParams ...gin.Param) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, &buf)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = pathParams

	handler(c)
	return w
}

func TestHealthCheck(t *testing.T) {
	handler := NewHealthHandler(nil)

	w := performJSON(t, handler.HealthCheck, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "recall", response["service"])
	assert.Contains(t, response, "timestamp")
	assert.Contains(t, response, "version")
}

func TestReadinessCheck(t *testing.T) {
	t.Run("ready with client", func(t *testing.T) {
		w := performJSON(t, NewHealthHandler(newFakeRecall()).ReadinessCheck, http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("not ready without client", func(t *testing.T) {
		w := performJSON(t, NewHealthHandler(nil).ReadinessCheck, http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestRetrieveSuccess(t *testing.T) {
	fake := newFakeRecall()
	fake.result = &types.RetrievalResult{
		MemoryUnits: []types.RetrievedRecord{{ID: "m1", Title: "ski trip"}},
		Summary:     "retrieved 1 memory unit(s)",
	}
	handler := NewRetrieveHandler(fake)

	w := performJSON(t, handler.Retrieve, http.MethodPost, "/api/v1/retrieve", map[string]any{
		"user_id":                   "u1",
		"key_phrases_for_retrieval": []string{"skiing"},
		"retrieval_scenario":        "timeline",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result types.RetrievalResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.MemoryUnits, 1)
	assert.Equal(t, "m1", result.MemoryUnits[0].ID)

	assert.Equal(t, "u1", fake.retrieved.UserID)
	assert.Equal(t, types.ScenarioTimeline, fake.retrieved.Scenario)
}

func TestRetrieveRejectsBadRequests(t *testing.T) {
	handler := NewRetrieveHandler(newFakeRecall())

	t.Run("missing user id", func(t *testing.T) {
		w := performJSON(t, handler.Retrieve, http.MethodPost, "/api/v1/retrieve", map[string]any{
			"key_phrases_for_retrieval": []string{"skiing"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("too many phrases", func(t *testing.T) {
		phrases := make([]string, 51)
		for i := range phrases {
			phrases[i] = "p"
		}
		w := performJSON(t, handler.Retrieve, http.MethodPost, "/api/v1/retrieve", map[string]any{
			"user_id":                   "u1",
			"key_phrases_for_retrieval": phrases,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", bytes.NewBufferString("{not json"))
		handler.Retrieve(c)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRetrieveFatalPathReturnsStructuredResult(t *testing.T) {
	fake := newFakeRecall()
	fake.result = &types.RetrievalResult{
		Summary: "retrieval failed: postgres down",
		Errors: []types.StageError{
			{Stage: types.StageHydration, Message: "postgres down", Impact: types.ImpactFatal},
		},
	}
	fake.err = &types.FatalPipelineError{Stage: types.StageHydration, Summary: "content fetch failed"}
	handler := NewRetrieveHandler(fake)

	w := performJSON(t, handler.Retrieve, http.MethodPost, "/api/v1/retrieve", map[string]any{
		"user_id":                   "u1",
		"key_phrases_for_retrieval": []string{"skiing"},
	})
	require.Equal(t, http.StatusBadGateway, w.Code)

	var result types.RetrievalResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Failed())
	assert.Contains(t, result.Summary, "retrieval failed")
}

func TestParamsGet(t *testing.T) {
	handler := NewParamsHandler(newFakeRecall())

	w := performJSON(t, handler.Get, http.MethodGet, "/api/v1/params/u1", nil,
		gin.Param{Key: "user_id", Value: "u1"})
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		UserID     string               `json:"user_id"`
		Parameters types.UserParameters `json:"parameters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "u1", response.UserID)
	assert.Equal(t, params.Defaults().MaxGraphHops, response.Parameters.MaxGraphHops)
}

func TestParamsUpdate(t *testing.T) {
	fake := newFakeRecall()
	handler := NewParamsHandler(fake)

	t.Run("valid update persists", func(t *testing.T) {
		update := params.Defaults()
		update.MaxGraphHops = 3
		w := performJSON(t, handler.Update, http.MethodPut, "/api/v1/params/u1", update,
			gin.Param{Key: "user_id", Value: "u1"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 3, fake.saved["u1"].MaxGraphHops)
	})

	t.Run("out-of-range update rejected", func(t *testing.T) {
		update := params.Defaults()
		update.MaxGraphHops = 99
		w := performJSON(t, handler.Update, http.MethodPut, "/api/v1/params/u2", update,
			gin.Param{Key: "user_id", Value: "u2"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotContains(t, fake.saved, "u2")
	})
}

func TestParamsPresets(t *testing.T) {
	fake := newFakeRecall()
	fake.presets = []string{"deep-recall", "fast"}
	handler := NewParamsHandler(fake)

	w := performJSON(t, handler.Presets, http.MethodGet, "/api/v1/params/presets", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Presets []string `json:"presets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, []string{"deep-recall", "fast"}, response.Presets)
}
