// Package validation provides input validation for check requests.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/finsentry/finsentry/internal/operations"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20

// MaxIDLength caps identifier fields (operation, user, account ids).
const MaxIDLength = 128

// currencyRegex validates ISO-4217-shaped currency codes.
var currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidCurrency checks if a string is a recognized 3-letter currency code.
func IsValidCurrency(code string) bool {
	return currencyRegex.MatchString(code)
}

// ValidationError represents a single field validation failure.
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

// CheckRequest validates an operation check request. A failed validation is
// a rejection distinct from a block decision: it happens before any history
// lookup or ledger write.
//
// The declared timestamp is accepted as-is, including past values; it is the
// only time-like field the caller provides and the rules evaluate against
// it. Backdating by a malicious caller is a known exposure.
func CheckRequest(req *operations.CheckRequest) ValidationErrors {
	var errs ValidationErrors

	add := func(field, message string) {
		errs = append(errs, ValidationError{Field: field, Message: message})
	}

	checkID := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			add(field, "is required")
		} else if len(value) > MaxIDLength {
			add(field, "exceeds maximum length")
		}
	}
	checkID("operationId", req.OperationID)
	checkID("userId", req.UserID)
	checkID("accountId", req.AccountID)

	if req.Type == "" {
		add("operationType", "is required")
	} else if !req.Type.Known() {
		add("operationType", "must be one of DEPOSIT, WITHDRAWAL, TRANSFER, PAYMENT")
	}

	if req.Amount.LessThanOrEqual(decimal.Zero) {
		add("amount", "must be greater than zero")
	}

	if req.Currency == "" {
		add("currency", "is required")
	} else if !IsValidCurrency(req.Currency) {
		add("currency", "must be a 3-letter uppercase currency code")
	}

	if req.Timestamp.IsZero() {
		add("timestamp", "is required")
	}

	return errs
}
