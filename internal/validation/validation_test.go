package validation

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{"0x1234567890123456789012345678901234567890", true},
		{"0xabcdefABCDEF1234567890123456789012345678", true},
		{"0x0000000000000000000000000000000000000000", true},

		{"1234567890123456789012345678901234567890", false},     // No 0x
		{"0x12345678901234567890123456789012345678", false},     // Too short
		{"0x123456789012345678901234567890123456789012", false}, // Too long
		{"0xGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGG", false},   // Invalid chars
		{"", false},
		{"0x", false},
	}

	for _, tc := range tests {
		if got := IsValidAddress(tc.addr); got != tc.valid {
			t.Errorf("IsValidAddress(%q) = %v, want %v", tc.addr, got, tc.valid)
		}
	}
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t,
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		NormalizeAddress("  0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed "))
	assert.Equal(t,
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		NormalizeAddress("5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
	assert.Equal(t, "not-an-address", NormalizeAddress("not-an-address"))
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
		{"héllo", 2, "h"},
		{"héllo", 3, "hé"},
		{"日本語", 7, "日本"},
		{"ok\xffok", 10, "okok"},
		{"🙂", 3, ""},
	}

	for _, tc := range tests {
		got := SanitizeString(tc.input, tc.maxLen)
		if got != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, got, tc.expected)
		}
		if !utf8.ValidString(got) {
			t.Errorf("SanitizeString(%q, %d) returned invalid UTF-8", tc.input, tc.maxLen)
		}
	}
}

func TestCheck_CollectsAllFailures(t *testing.T) {
	err := Check(
		Positive("budgetAmount", decimal.Zero),
		MinInt("numberOfParticipants", 0, 1),
		OneOf("complexity", "EPIC", "SIMPLE", "STANDARD", "COMPLEX"),
		NonNegative("cumulativeSpend", decimal.NewFromInt(10)),
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	fields := Fields(err)
	require.Len(t, fields, 3)
	assert.Equal(t, "budgetAmount", fields[0].Field)
	assert.Equal(t, "numberOfParticipants", fields[1].Field)
	assert.Equal(t, "must be at least 1", fields[1].Message)
	assert.Equal(t, "complexity", fields[2].Field)
}

func TestCheck_NilWhenValid(t *testing.T) {
	err := Check(
		Required("id", "abc"),
		InRange("feeRate", decimal.RequireFromString("0.04"), decimal.Zero, decimal.NewFromInt(1)),
		ValidAddress("wallet", ""),
	)
	assert.NoError(t, err)
}

func TestWrappedValidationErrorStillMatches(t *testing.T) {
	err := fmt.Errorf("estimate: %w", Fail("budgetAmount", "must be greater than zero"))
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Len(t, Fields(err), 1)
	assert.Nil(t, Fields(errors.New("other")))
}

func TestInRange(t *testing.T) {
	lo, hi := decimal.Zero, decimal.NewFromInt(1)
	assert.Nil(t, InRange("r", decimal.NewFromInt(1), lo, hi)())
	assert.NotNil(t, InRange("r", decimal.RequireFromString("1.01"), lo, hi)())
	assert.NotNil(t, InRange("r", decimal.RequireFromString("-0.01"), lo, hi)())
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("fee", " 232.60 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("232.6")))

	for _, bad := range []string{"", "  ", "1e3", "abc", "1.2.3"} {
		_, err := ParseAmount("fee", bad)
		assert.ErrorIs(t, err, ErrInvalidInput, "input %q", bad)
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestSizeMiddleware(16))
	r.POST("/", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"`+strings.Repeat("x", 64)+`"}`))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
