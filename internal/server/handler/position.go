package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/matchmarket/internal/pricing"
)

// PositionService values a user's positions.
type PositionService interface {
	Positions(ctx context.Context, userID string) ([]pricing.PositionValue, error)
}

// PositionHandler serves portfolio endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{positions: positions, logger: logger}
}

type positionsResponse struct {
	Positions  []pricing.PositionValue `json:"positions"`
	TotalValue float64                 `json:"total_value"`
	TotalSpent float64                 `json:"total_spent"`
}

// ListPositions returns a user's open positions marked to market.
// GET /api/positions/{userID}
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	values, err := h.positions.Positions(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, "list positions", err)
		return
	}

	resp := positionsResponse{Positions: values}
	if resp.Positions == nil {
		resp.Positions = []pricing.PositionValue{}
	}
	value, spent := decimal.Zero, decimal.Zero
	for _, v := range values {
		value = value.Add(decimal.NewFromFloat(v.CurrentValue))
		spent = spent.Add(decimal.NewFromFloat(v.AmountSpent))
	}
	resp.TotalValue = value.InexactFloat64()
	resp.TotalSpent = spent.InexactFloat64()
	writeJSON(w, http.StatusOK, resp)
}
