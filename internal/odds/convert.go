// Package odds renders probabilities in regional odds formats.
package odds

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alanyoungcy/matchmarket/internal/numfmt"
)

// Format is a regional odds notation.
type Format string

const (
	FormatEU Format = "EU" // decimal
	FormatUS Format = "US" // moneyline
	FormatUK Format = "UK" // fractional
)

// ParseFormat parses a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToUpper(strings.TrimSpace(s))); f {
	case FormatEU, FormatUS, FormatUK:
		return f, nil
	}
	return "", fmt.Errorf("odds: unknown format %q", s)
}

const (
	fractionTolerance = 0.0001
	maxDenominator    = 100
)

// Convert renders probability p in format f. Probabilities outside (0, 1)
// produce a boundary sentinel: "-" for US, "∞" otherwise.
func Convert(p float64, f Format) string {
	if !(p > 0 && p < 1) {
		if f == FormatUS {
			return "-"
		}
		return "∞"
	}

	switch f {
	case FormatUS:
		return moneyline(p)
	case FormatUK:
		return fractional(p)
	default:
		return numfmt.Fixed(1/p, 2)
	}
}

// moneyline uses the negative branch for favourites, including exactly 0.5.
func moneyline(p float64) string {
	if p >= 0.5 {
		return strconv.FormatInt(int64(numfmt.Round(-100*(p/(1-p)))), 10)
	}
	return "+" + strconv.FormatInt(int64(numfmt.Round(100*((1-p)/p))), 10)
}

// fractional approximates the net decimal odds with the first denominator in
// 1..100 that lands within tolerance, then reduces the fraction.
func fractional(p float64) string {
	dec := 1/p - 1
	num, den := int64(1), int64(1)
	for d := int64(1); d <= maxDenominator; d++ {
		n := numfmt.Round(dec * float64(d))
		if math.Abs(dec-n/float64(d)) < fractionTolerance {
			num, den = int64(n), d
			break
		}
	}
	if g := gcd(num, den); g != 0 {
		num, den = num/g, den/g
	}
	return fmt.Sprintf("%d/%d", num, den)
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
