package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/sjson"

	"github.com/sells-group/fraud-ensemble/internal/config"
	"github.com/sells-group/fraud-ensemble/internal/model"
)

// agentServer returns a stub agent that answers every request with score
// under field.
func agentServer(t *testing.T, field string, score float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]float64{field: score})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// testConfig points the three stock agents at stub servers scoring 0.9,
// 0.5 and 0.7.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	agents := config.DefaultAgents()
	scores := []float64{0.9, 0.5, 0.7}
	for i := range agents {
		agents[i].URL = agentServer(t, agents[i].ScoreField, scores[i]).URL
		agents[i].TimeoutMS = 2000
	}
	return &config.Config{
		Server: config.ServerConfig{Port: 8000, CORSOrigins: []string{"*"}},
		Agents: agents,
		Ensemble: config.EnsembleConfig{
			Weights:            []float64{0.4, 0.3, 0.3},
			MissingAgentPolicy: "fail",
			RejectOutOfRange:   true,
		},
		Retry: config.RetryConfig{MaxAttempts: 1},
		Audit: config.AuditConfig{Driver: "none"},
		Batch: config.BatchConfig{Concurrency: 4},
	}
}

func withSQLiteAudit(t *testing.T, c *config.Config) {
	t.Helper()
	c.Audit.Driver = "sqlite"
	c.Audit.DatabaseURL = filepath.Join(t.TempDir(), "audit.db")
}

func fixture(t *testing.T) []byte {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", "transaction.json"))
	require.NoError(t, err)
	return raw
}

// fixtureLine returns the fixture as one compact JSON line with eventID.
func fixtureLine(t *testing.T, eventID string) string {
	t.Helper()
	raw, err := sjson.SetBytes(fixture(t), "event_id", eventID)
	require.NoError(t, err)
	var line bytes.Buffer
	require.NoError(t, json.Compact(&line, raw))
	return line.String()
}

func fixtureTransaction(t *testing.T) model.Transaction {
	t.Helper()
	req, err := model.DecodeFraudCheck(fixture(t))
	require.NoError(t, err)
	return req.Transaction
}
