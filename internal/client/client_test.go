package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bayesian-melody-predictor/internal/ml"
	"bayesian-melody-predictor/internal/selection"
	"bayesian-melody-predictor/internal/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Select(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/select", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req server.SelectRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "composite", req.Strategy)
		assert.Len(t, req.Candidates, 2)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(server.SelectResponse{
			RequestID: req.RequestID,
			BestIndex: 1,
			Strategy:  req.Strategy,
			Scores:    []selection.CandidateScore{{Index: 0, Score: 0.4}, {Index: 1, Score: 0.1}},
		})
	}))
	defer ts.Close()

	c := New(ts.URL+"/", time.Second)
	resp, err := c.Select(context.Background(), server.SelectRequest{
		RequestID:  "case-7",
		SeedWindow: []float64{0.1, 0.2},
		Candidates: [][]float64{{0.3}, {0.2}},
		Strategy:   "composite",
	})
	require.NoError(t, err)
	assert.Equal(t, "case-7", resp.RequestID)
	assert.Equal(t, 1, resp.BestIndex)
	assert.Len(t, resp.Scores, 2)
}

func TestClient_SelectAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(server.ErrorResponse{Error: "horizon mismatch", RequestID: "r1"})
	}))
	defer ts.Close()

	_, err := New(ts.URL, time.Second).Select(context.Background(), server.SelectRequest{RequestID: "r1"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "horizon mismatch", apiErr.Message)
	assert.Equal(t, "r1", apiErr.RequestID)
}

func TestClient_HealthAndModelInfo(t *testing.T) {
	var trained atomic.Bool
	trained.Store(true)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/health":
			if !trained.Load() {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(server.HealthResponse{Status: "unavailable"})
				return
			}
			json.NewEncoder(w).Encode(server.HealthResponse{Status: "ok", ModelTrained: true})
		case "/model/info":
			json.NewEncoder(w).Encode(server.ModelInfoResponse{
				ModelInfo:    ml.ModelInfo{Trained: true, WindowSize: 32},
				ModelVersion: "v1",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := New(ts.URL, 0)

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	info, err := c.ModelInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 32, info.WindowSize)
	assert.Equal(t, "v1", info.ModelVersion)

	trained.Store(false)
	health, err = c.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, "unavailable", health.Status)
}

func TestClient_ContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(ts.URL, time.Second).Select(ctx, server.SelectRequest{})
	require.Error(t, err)
}
