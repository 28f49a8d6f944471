package odds

import (
	"math"
	"testing"
)

func TestFormatOutcomePrice(t *testing.T) {
	tests := []struct {
		p      float64
		region Format
		want   string
	}{
		{0.4, FormatUS, "40¢"},
		{0.4, FormatEU, "2.50"},
		{0.4, FormatUK, "2.50"},
		{0, FormatEU, "--"},
		{-1, FormatUS, "--"},
		{math.NaN(), FormatEU, "--"},
		{math.Inf(1), FormatUS, "--"},
	}
	for _, tt := range tests {
		if got := FormatOutcomePrice(tt.p, tt.region, "--"); got != tt.want {
			t.Errorf("FormatOutcomePrice(%v, %s) = %q, want %q", tt.p, tt.region, got, tt.want)
		}
	}
}

func TestMoneyline(t *testing.T) {
	if got := Moneyline(0.25); got != "ML +300" {
		t.Errorf("Moneyline(0.25) = %q", got)
	}
	if got := Moneyline(1); got != "" {
		t.Errorf("Moneyline(1) = %q, want empty", got)
	}
}

func TestOutcomeLabel(t *testing.T) {
	tests := []struct {
		slug, label, want string
	}{
		{"home", "1", "Lions"},
		{"yes", "Yes", "Lions"},
		{"away", "2", "Tigers"},
		{"no", "No", "Tigers"},
		{"draw", "X", "Draw"},
		{"horse-7", "Lightning", "Lightning"},
		{"horse-8", "", "horse-8"},
	}
	for _, tt := range tests {
		if got := OutcomeLabel(tt.slug, tt.label, "Lions", "Tigers"); got != tt.want {
			t.Errorf("OutcomeLabel(%q, %q) = %q, want %q", tt.slug, tt.label, got, tt.want)
		}
	}
}
