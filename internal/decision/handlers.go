package decision

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/finsentry/finsentry/internal/operations"
	"github.com/finsentry/finsentry/internal/validation"
	"github.com/gin-gonic/gin"
)

// Handler provides the HTTP surface for operation checks and audit history.
type Handler struct {
	svc *Service
}

// NewHandler creates a decision handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes sets up the check and history routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/operations/check", h.CheckOperation)
	r.GET("/users/:userId/operations", h.GetOperationHistory)
}

// CheckOperation handles POST /operations/check
func (h *Handler) CheckOperation(c *gin.Context) {
	var req operations.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	resp, err := h.svc.Check(c.Request.Context(), &req)
	if err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": "Request failed validation",
				"fields":  verrs,
			})
			return
		}
		// Fail closed: the caller must not treat an engine failure as an
		// implicit allow.
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "engine_unavailable",
			"message": "Operation could not be evaluated",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetOperationHistory handles GET /users/:userId/operations
func (h *Handler) GetOperationHistory(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_user",
			"message": "userId path parameter is required",
		})
		return
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	records, err := h.svc.History(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "engine_unavailable",
			"message": "Operation history could not be read",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"operations": records,
		"count":      len(records),
	})
}
