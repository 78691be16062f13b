package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/recallai/recall"
	"github.com/recallai/recall/pkg/server/dto"
	"github.com/recallai/recall/pkg/types"
)

// RetrieveHandler serves the retrieval pipeline over HTTP.
type RetrieveHandler struct {
	recall recall.Recall
}

// NewRetrieveHandler creates a new retrieve handler
func NewRetrieveHandler(r recall.Recall) *RetrieveHandler {
	return &RetrieveHandler{recall: r}
}

// Retrieve handles POST /api/v1/retrieve
func (h *RetrieveHandler) Retrieve(c *gin.Context) {
	var req dto.RetrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	result, err := h.recall.Retrieve(c.Request.Context(), req.ToRequest())
	if err != nil {
		var valErr *types.ValidationError
		if errors.As(err, &valErr) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: valErr.Error()})
			return
		}

		// The fatal path still carries a structured result with the
		// failure summary and diagnostics; surface it with a 502 since
		// the failure is a backing store, not the caller.
		if result != nil {
			c.JSON(http.StatusBadGateway, result)
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "retrieval_failed", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}
