package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"intentScope/internal/config"
	"intentScope/internal/model"
)

// healthyRPC serves an empty chain with id 0x1 and tip 5.
func healthyRPC(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		var result interface{}
		switch req.Method {
		case "eth_chainId":
			result = "0x1"
		case "eth_blockNumber":
			result = "0x5"
		case "eth_getLogs":
			result = []interface{}{}
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
}

func TestNewAppInMemory(t *testing.T) {
	a, err := newApp(context.Background(), config.Config{MaxPasses: 1}, prometheus.NewRegistry(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Empty(t, a.runOnce(context.Background()))
}

func TestMetricsMux(t *testing.T) {
	a, err := newApp(context.Background(), config.Config{}, prometheus.NewRegistry(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	a.metrics.SetState(1, 0)

	srv := httptest.NewServer(a.metricsMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "intentscope_pipeline_state")
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	_, err := newLogger("loud")
	assert.Error(t, err)

	logger, err := newLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestRPCOutageOnOneChainDoesNotStopOthers(t *testing.T) {
	good := healthyRPC(t)
	defer good.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	contract := "0x00000000000000000000000000000000000000c0"
	cfg := config.Config{
		WindowSize:   10,
		MaxPasses:    3,
		Concurrency:  2,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
		HTTPTimeout:  5 * time.Second,
		Chains: []model.ChainConfig{
			{ID: 1, Name: "mainnet", RPCURL: good.URL, ContractAddress: contract, StartBlock: 1, Source: model.SourceRPC},
			{ID: 2, Name: "flaky", RPCURL: down.URL, ContractAddress: contract, StartBlock: 1, Source: model.SourceRPC},
		},
	}

	a, err := newApp(context.Background(), cfg, prometheus.NewRegistry(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	reports := a.runOnce(context.Background())
	require.Len(t, reports, 2)

	assert.False(t, reports[0].Failed())
	assert.True(t, reports[0].CaughtUp)
	assert.Equal(t, uint64(5), reports[0].LastBlock)

	require.True(t, reports[1].Failed())
	require.Len(t, reports[1].Errors, 1)
	assert.True(t, strings.Contains(reports[1].Errors[0], "get chain id"), reports[1].Errors[0])
}
