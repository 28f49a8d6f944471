// Package numfmt holds the rounding and formatting rules shared by the
// pricing, odds and chart code. Rounding is half toward positive infinity.
package numfmt

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Round rounds x to the nearest integer, with halves going toward +Inf.
func Round(x float64) float64 {
	return math.Floor(x + 0.5)
}

// RoundTo rounds x to the given number of decimal places.
func RoundTo(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return Round(x*p) / p
}

// Fixed formats x with exactly places decimals. The exact binary value of x
// is rounded half away from zero, so 2.125 gives "2.13" while 1.005, stored
// just below 1.005, gives "1.00".
func Fixed(x float64, places int) string {
	if !Finite(x) || places < 0 {
		return strconv.FormatFloat(x, 'f', places, 64)
	}

	r := new(big.Rat).SetFloat64(math.Abs(x))
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	r.Add(r, big.NewRat(1, 2))
	digits := new(big.Int).Quo(r.Num(), r.Denom()).String()

	if places > 0 {
		if len(digits) <= places {
			digits = strings.Repeat("0", places-len(digits)+1) + digits
		}
		digits = digits[:len(digits)-places] + "." + digits[len(digits)-places:]
	}
	if x < 0 {
		digits = "-" + digits
	}
	return digits
}

// Cents renders a probability as a rounded cent price, e.g. "75¢".
func Cents(p float64) string {
	return fmt.Sprintf("%d¢", int64(Round(p*100)))
}

// FloorCents renders a probability as a truncated cent price.
func FloorCents(p float64) string {
	return fmt.Sprintf("%d¢", int64(math.Floor(p*100)))
}

// Percent renders a probability as a one-decimal percentage, e.g. "75.0%".
func Percent(p float64) string {
	return Fixed(p*100, 1) + "%"
}

// Finite reports whether x is neither NaN nor infinite.
func Finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
