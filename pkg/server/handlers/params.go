package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/recallai/recall"
	"github.com/recallai/recall/pkg/server/dto"
	"github.com/recallai/recall/pkg/types"
)

// ParamsHandler serves per-user retrieval parameters.
type ParamsHandler struct {
	recall recall.Recall
}

// NewParamsHandler creates a new parameters handler
func NewParamsHandler(r recall.Recall) *ParamsHandler {
	return &ParamsHandler{recall: r}
}

// Get handles GET /api/v1/params/:user_id: the user's effective
// parameters (defaults overlaid with stored overrides).
func (h *ParamsHandler) Get(c *gin.Context) {
	userID := c.Param("user_id")

	params, err := h.recall.Parameters(c.Request.Context(), userID)
	if err != nil {
		writeParamsError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ParametersResponse{UserID: userID, Parameters: params})
}

// Update handles PUT /api/v1/params/:user_id. This is the
// parameter-edit boundary: out-of-range values are rejected here with
// a 400 and never persisted.
func (h *ParamsHandler) Update(c *gin.Context) {
	userID := c.Param("user_id")

	var params types.UserParameters
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	if err := h.recall.UpdateParameters(c.Request.Context(), userID, params); err != nil {
		writeParamsError(c, err)
		return
	}

	effective, err := h.recall.Parameters(c.Request.Context(), userID)
	if err != nil {
		writeParamsError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ParametersResponse{UserID: userID, Parameters: effective})
}

// Presets handles GET /api/v1/params/presets
func (h *ParamsHandler) Presets(c *gin.Context) {
	c.JSON(http.StatusOK, dto.PresetsResponse{Presets: h.recall.Presets()})
}

func writeParamsError(c *gin.Context, err error) {
	var valErr *types.ValidationError
	if errors.As(err, &valErr) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_parameters", Message: valErr.Error()})
		return
	}
	var cfgErr *types.ConfigurationError
	if errors.As(err, &cfgErr) {
		c.JSON(http.StatusNotImplemented, dto.ErrorResponse{Error: "not_configured", Message: cfgErr.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "params_failed", Message: err.Error()})
}
