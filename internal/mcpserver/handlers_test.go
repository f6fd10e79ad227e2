package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/aw3econ/internal/config"
	"github.com/mbd888/aw3econ/internal/server"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	h := NewHandlers(NewEconClient(Config{APIURL: ts.URL}))
	return h, ts.Close
}

// newEngineSetup runs the real API in-process with in-memory stores.
func newEngineSetup(t *testing.T) *Handlers {
	t.Helper()
	cfg := &config.Config{
		Port:               "0",
		Env:                "development",
		LogLevel:           "error",
		LogFormat:          "text",
		QuoteSigningSecret: "mcp-test",
		RateLimitRPM:       6000,
		RateLimitBurst:     1000,
		CORSOrigins:        []string{"*"},
	}
	srv, err := server.New(cfg, server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	h, closeFn := newTestSetup(srv.Router())
	t.Cleanup(closeFn)
	return h
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_HTTPError_WithValidationDetails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "validation_failed",
			"message": "invalid input",
			"details": []map[string]string{{"field": "budgetAmount", "message": "must be positive"}},
		})
	}))
	defer ts.Close()

	client := NewEconClient(Config{APIURL: ts.URL})
	_, err := client.EstimateFees(context.Background(), map[string]any{"budgetAmount": "-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "budgetAmount: must be positive")
}

func TestClient_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewEconClient(Config{APIURL: ts.URL})
	_, err := client.Info(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_Paths(t *testing.T) {
	var gotPath, gotQuery, gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()
	client := NewEconClient(Config{APIURL: ts.URL})
	ctx := context.Background()

	_, err := client.AcceptEstimate(ctx, "fe/1", "abc")
	require.NoError(t, err)
	assert.Equal(t, "/v1/fees/estimates/fe%2F1/accept", gotPath)
	assert.JSONEq(t, `{"signature":"abc"}`, gotBody)

	_, err = client.CreatorHistory(ctx, "creator-7", "90d")
	require.NoError(t, err)
	assert.Equal(t, "/v1/cvpi/creators/creator-7", gotPath)
	assert.Equal(t, "period=90d", gotQuery)

	_, err = client.EvaluateReputation(ctx, "", "720")
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":"720"}`, gotBody)
}

// ============================================================
// Handler tests against a stub API
// ============================================================

func TestHandleEstimateFees_BuildsRequest(t *testing.T) {
	var body map[string]any
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/fees/estimate", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"estimate":{"id":"fe_1","budgetAmount":"4000","finalServiceFee":"320","oracleFee":"0","totalEscrowRequired":"4807"},"signature":"sig"}`))
	}))
	defer cleanup()

	result, err := h.HandleEstimateFees(context.Background(), makeRequest(map[string]any{
		"budget_amount":    "4000",
		"participants":     float64(3),
		"complexity":       "complex",
		"reputation_score": "850",
		"kpi_metrics":      []any{map[string]any{"source": "twitter", "weight": "1"}, "junk"},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	assert.Equal(t, "4000", body["budgetAmount"])
	assert.Equal(t, float64(3), body["numberOfParticipants"])
	assert.Equal(t, "complex", body["complexityTag"])
	assert.Equal(t, map[string]any{"cumulativeSpend": "0", "reputationScore": "850"}, body["payer"])
	assert.Len(t, body["kpiMetrics"], 1)

	text := resultText(t, result)
	assert.Contains(t, text, "fe_1")
	assert.Contains(t, text, "Total escrow:       4807 USDC")
	assert.Contains(t, text, "Signature: sig")
}

func TestHandlers_RequiredArguments(t *testing.T) {
	h := NewHandlers(NewEconClient(Config{APIURL: "http://127.0.0.1:0"}))
	ctx := context.Background()

	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		want    string
	}{
		{"estimate", h.HandleEstimateFees, "budget_amount is required"},
		{"accept", h.HandleAcceptEstimate, "estimate_id is required"},
		{"settle", h.HandleSettlePayment, "base_amount is required"},
		{"cvpi", h.HandleScoreCVPI, "total_cost and verified_impact_score are required"},
		{"history", h.HandleCreatorHistory, "creator_id is required"},
		{"reputation", h.HandleReputationTier, "score is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler(ctx, makeRequest(nil))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.want)
		})
	}
}

func TestHandleSettlePayment_APIError(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"validation_failed","message":"invalid input"}`))
	}))
	defer cleanup()

	result, err := h.HandleSettlePayment(context.Background(), makeRequest(map[string]any{"base_amount": "100"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Failed to settle")
}

func TestHandleEconomicTables_BadResponse(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"aw3econ"}`))
	}))
	defer cleanup()

	result, err := h.HandleEconomicTables(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ============================================================
// End-to-end against the real engine
// ============================================================

func TestEngine_EstimateAndAccept(t *testing.T) {
	h := newEngineSetup(t)
	ctx := context.Background()

	result, err := h.HandleEstimateFees(ctx, makeRequest(map[string]any{
		"budget_amount": "4000",
		"complexity":    "simple",
	}))
	require.NoError(t, err)
	text := resultText(t, result)
	require.False(t, result.IsError, text)
	assert.Contains(t, text, "Service fee:        320 USDC")

	id := lineValue(text, "Fee estimate ")
	sig := lineValue(text, "Signature: ")
	require.NotEmpty(t, id)
	require.Len(t, sig, 64)

	result, err = h.HandleAcceptEstimate(ctx, makeRequest(map[string]any{"estimate_id": id, "signature": "bad"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "403")

	result, err = h.HandleAcceptEstimate(ctx, makeRequest(map[string]any{"estimate_id": id, "signature": sig}))
	require.NoError(t, err)
	assert.False(t, result.IsError, resultText(t, result))
	assert.Contains(t, resultText(t, result), "accepted")

	result, err = h.HandleAcceptEstimate(ctx, makeRequest(map[string]any{"estimate_id": id, "signature": sig}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "409")
}

func TestEngine_Settle(t *testing.T) {
	h := newEngineSetup(t)

	result, err := h.HandleSettlePayment(context.Background(), makeRequest(map[string]any{
		"base_amount":     "5000",
		"achievement_pct": "116.3",
		"fee_rate":        "0.04",
	}))
	require.NoError(t, err)
	text := resultText(t, result)
	require.False(t, result.IsError, text)
	assert.Contains(t, text, "Calculated payment: 5815 USDC")
	assert.Contains(t, text, "Platform fee (0.04): 232.6 USDC")
	assert.Contains(t, text, "Net to creator: 5582.4 USDC")
	assert.Contains(t, text, "treasury: 116.3")
	assert.NotContains(t, text, "Refund")
}

func TestEngine_CVPIScoreAndHistory(t *testing.T) {
	h := newEngineSetup(t)
	ctx := context.Background()

	result, err := h.HandleCreatorHistory(ctx, makeRequest(map[string]any{"creator_id": "c1"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No CVPI scores for c1")

	for _, cost := range []string{"1000", "500"} {
		result, err = h.HandleScoreCVPI(ctx, makeRequest(map[string]any{
			"total_cost":            cost,
			"verified_impact_score": "1000",
			"creator_id":            "c1",
		}))
		require.NoError(t, err)
		require.False(t, result.IsError, resultText(t, result))
	}
	assert.Contains(t, resultText(t, result), "CVPI: 0.5")

	result, err = h.HandleCreatorHistory(ctx, makeRequest(map[string]any{"creator_id": "c1", "period": "7d"}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "2 scores")
	assert.Contains(t, text, "Best:    0.5")
	assert.Contains(t, text, "Worst:   1")
}

func TestEngine_ReputationTier(t *testing.T) {
	h := newEngineSetup(t)

	result, err := h.HandleReputationTier(context.Background(), makeRequest(map[string]any{"score": "720"}))
	require.NoError(t, err)
	text := resultText(t, result)
	require.False(t, result.IsError, text)
	assert.Contains(t, text, "tier B")
	assert.Contains(t, text, "Next tier A in 80 points")

	result, err = h.HandleReputationTier(context.Background(), makeRequest(map[string]any{"score": "950"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Top tier reached.")
}

func TestEngine_EconomicTables(t *testing.T) {
	h := newEngineSetup(t)

	result, err := h.HandleEconomicTables(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	text := resultText(t, result)
	require.False(t, result.IsError, text)
	assert.Contains(t, text, `"budgetTiers"`)
	assert.True(t, json.Valid([]byte(text)))
}

func TestNewMCPServer_RegistersTools(t *testing.T) {
	s := NewMCPServer(Config{APIURL: "http://localhost:8080"}, "test")
	tools := s.ListTools()
	for _, name := range []string{"estimate_fees", "accept_estimate", "settle_payment", "score_cvpi",
		"creator_cvpi_history", "reputation_tier", "economic_tables"} {
		assert.Contains(t, tools, name)
	}
}

func TestIsZero(t *testing.T) {
	assert.True(t, isZero(""))
	assert.True(t, isZero("0"))
	assert.True(t, isZero("0.00"))
	assert.False(t, isZero("0.01"))
	assert.False(t, isZero("10"))
}

// lineValue returns the first word after prefix on the line starting with it.
func lineValue(text, prefix string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, prefix) {
			fields := strings.Fields(strings.TrimPrefix(line, prefix))
			if len(fields) > 0 {
				return fields[0]
			}
		}
	}
	return ""
}
