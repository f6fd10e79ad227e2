package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		if got := statusBucket(tt.code); got != tt.want {
			t.Errorf("statusBucket(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestAddPlatformFee(t *testing.T) {
	before := counterValue(t, PlatformFeeAmountTotal)

	AddPlatformFee(decimal.RequireFromString("232.60"))
	AddPlatformFee(decimal.RequireFromString("-5"))

	assert.InDelta(t, 232.60, counterValue(t, PlatformFeeAmountTotal)-before, 1e-9)
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/v1/fees/estimates/:id", func(c *gin.Context) { c.Status(http.StatusGone) })

	c := HTTPRequestsTotal.WithLabelValues("GET", "/v1/fees/estimates/:id", "4xx")
	before := counterValue(t, c)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/fees/estimates/abc", nil))

	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, before+1, counterValue(t, c))
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())

	GoroutineCount.Set(1)
	FeeEstimatesTotal.WithLabelValues("SIMPLE").Inc()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	for _, name := range []string{
		"aw3econ_goroutines",
		"aw3econ_db_open_connections",
		`aw3econ_fee_estimates_total{complexity="SIMPLE"}`,
	} {
		assert.True(t, strings.Contains(body, name), "missing %s", name)
	}
}
