package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/matchmarket/internal/odds"
)

// OddsHandler converts probabilities to regional odds.
type OddsHandler struct {
	logger *slog.Logger
}

// NewOddsHandler creates an OddsHandler.
func NewOddsHandler(logger *slog.Logger) *OddsHandler {
	return &OddsHandler{logger: logger}
}

type oddsResponse struct {
	Probability float64     `json:"probability"`
	Format      odds.Format `json:"format"`
	Odds        string      `json:"odds"`
	Display     string      `json:"display"`
	Moneyline   string      `json:"moneyline,omitempty"`
}

// Convert renders p in the requested format, EU by default.
// GET /api/odds?p=0.4&format=US
func (h *OddsHandler) Convert(w http.ResponseWriter, r *http.Request) {
	p, _, ok := queryFloat(r, "p")
	if !ok {
		writeError(w, http.StatusBadRequest, "p must be a number")
		return
	}

	f := odds.FormatEU
	if s := r.URL.Query().Get("format"); s != "" {
		parsed, err := odds.ParseFormat(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f = parsed
	}

	resp := oddsResponse{
		Probability: p,
		Format:      f,
		Odds:        odds.Convert(p, f),
		Display:     odds.FormatOutcomePrice(p, f, "-"),
	}
	if f == odds.FormatUS {
		resp.Moneyline = odds.Moneyline(p)
	}
	writeJSON(w, http.StatusOK, resp)
}
