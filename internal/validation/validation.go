// Package validation provides input checks shared by the calculators and the
// HTTP layer.
package validation

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mbd888/aw3econ/internal/money"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

// ErrInvalidInput matches every ValidationErrors via errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAddress reports whether addr is a 0x-prefixed 20-byte hex address.
// Addresses only label parties; nothing is sent on chain.
func IsValidAddress(addr string) bool {
	return strings.HasPrefix(addr, "0x") && common.IsHexAddress(addr)
}

// NormalizeAddress returns the EIP-55 checksummed form of a valid address.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "0x") && len(addr) == 40 {
		addr = "0x" + addr
	}
	if !common.IsHexAddress(addr) {
		return addr
	}
	return common.HexToAddress(addr).Hex()
}

// SanitizeString trims whitespace, removes null bytes and invalid UTF-8, and
// limits the result to maxLen bytes without splitting a rune.
func SanitizeString(s string, maxLen int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\x00", "")
	s = strings.ToValidUTF8(s, "")
	if len(s) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Is lets callers test with errors.Is(err, ErrInvalidInput).
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidInput
}

// Fail returns a single-field validation error.
func Fail(field, message string) error {
	return ValidationErrors{{Field: field, Message: message}}
}

// Validate runs validators and collects their failures.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Check is Validate returning a nil error when every validator passes.
func Check(validators ...func() *ValidationError) error {
	if errs := Validate(validators...); len(errs) > 0 {
		return errs
	}
	return nil
}

// Fields extracts the per-field failures from err, if any.
func Fields(err error) ValidationErrors {
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAddress checks an optional wallet address.
func ValidAddress(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidAddress(value) {
			return &ValidationError{Field: field, Message: "must be a valid address (0x + 40 hex chars)"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// Positive requires d > 0.
func Positive(field string, d decimal.Decimal) func() *ValidationError {
	return func() *ValidationError {
		if !d.IsPositive() {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		return nil
	}
}

// NonNegative requires d >= 0.
func NonNegative(field string, d decimal.Decimal) func() *ValidationError {
	return func() *ValidationError {
		if d.IsNegative() {
			return &ValidationError{Field: field, Message: "must not be negative"}
		}
		return nil
	}
}

// InRange requires lo <= d <= hi.
func InRange(field string, d, lo, hi decimal.Decimal) func() *ValidationError {
	return func() *ValidationError {
		if d.LessThan(lo) || d.GreaterThan(hi) {
			return &ValidationError{Field: field, Message: "must be between " + lo.String() + " and " + hi.String()}
		}
		return nil
	}
}

// MinInt requires n >= min.
func MinInt(field string, n, min int) func() *ValidationError {
	return func() *ValidationError {
		if n < min {
			return &ValidationError{Field: field, Message: "must be at least " + itoa(min)}
		}
		return nil
	}
}

// OneOf requires value to be one of allowed.
func OneOf(field, value string, allowed ...string) func() *ValidationError {
	return func() *ValidationError {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return &ValidationError{Field: field, Message: "must be one of " + strings.Join(allowed, ", ")}
	}
}

func itoa(n int) string {
	return decimal.NewFromInt(int64(n)).String()
}

// ParseAmount parses a plain decimal string, rejecting empty, malformed and
// exponent forms.
func ParseAmount(field, s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, Fail(field, "is required")
	}
	d, ok := money.Parse(s)
	if !ok {
		return decimal.Zero, Fail(field, "must be a plain decimal number")
	}
	return d, nil
}
