// Package decode turns loosely typed data-store rows into domain values.
// Every row is checked field by field; a row that fails is reported as a
// DecodeError and never reaches an aggregator.
package decode

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/domain"
	"github.com/alanyoungcy/matchmarket/internal/history"
)

// DecodeError describes why a row was rejected.
type DecodeError struct {
	Kind   string
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("decode %s: field %q: %s", e.Kind, e.Field, e.Reason)
}

// Unwrap lets callers match decode failures with errors.Is(err, domain.ErrInvalidInput).
func (e *DecodeError) Unwrap() error { return domain.ErrInvalidInput }

// Result is either a decoded value or the reason it could not be decoded.
type Result[T any] struct {
	Value T
	Err   *DecodeError
}

// OK reports whether the row decoded cleanly.
func (r Result[T]) OK() bool { return r.Err == nil }

// Unwrap returns the value and the error as a plain Go pair.
func (r Result[T]) Unwrap() (T, error) {
	if r.Err != nil {
		var zero T
		return zero, r.Err
	}
	return r.Value, nil
}

func valid[T any](v T) Result[T] { return Result[T]{Value: v} }

func fail[T any](kind, field, reason string) Result[T] {
	return Result[T]{Err: &DecodeError{Kind: kind, Field: field, Reason: reason}}
}

// Partition splits results into decoded values and rejections, keeping order.
func Partition[T any](results []Result[T]) ([]T, []*DecodeError) {
	values := make([]T, 0, len(results))
	var errs []*DecodeError
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		values = append(values, r.Value)
	}
	return values, errs
}

// All decodes each raw row with fn.
func All[T any](rows []json.RawMessage, fn func(json.RawMessage) Result[T]) []Result[T] {
	out := make([]Result[T], len(rows))
	for i, raw := range rows {
		out[i] = fn(raw)
	}
	return out
}

type row map[string]json.RawMessage

func parseRow(raw json.RawMessage) (row, string) {
	if len(raw) == 0 {
		return nil, "empty row"
	}
	var r row
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, "not a JSON object"
	}
	return r, ""
}

func (r row) present(field string) bool {
	v, ok := r[field]
	return ok && string(v) != "null"
}

func (r row) str(field string) (string, bool) {
	v, ok := r[field]
	if !ok || string(v) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

// id accepts strings and integers; numeric ids are common for legacy rows.
func (r row) id(field string) (string, bool) {
	if s, ok := r.str(field); ok {
		return s, s != ""
	}
	v, ok := r[field]
	if !ok {
		return "", false
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", false
	}
	if _, err := n.Int64(); err != nil {
		return "", false
	}
	return n.String(), true
}

// num accepts JSON numbers and numeric strings, as Postgres numeric columns
// are often serialized as strings. NaN and infinities are rejected.
func (r row) num(field string) (float64, string) {
	v, ok := r[field]
	if !ok || string(v) == "null" {
		return 0, "missing"
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		var s string
		if json.Unmarshal(v, &s) != nil {
			return 0, "not a number"
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, "not a number"
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, "not finite"
	}
	return f, ""
}

func (r row) optNum(field string) (*float64, string) {
	if !r.present(field) {
		return nil, ""
	}
	f, reason := r.num(field)
	if reason != "" {
		return nil, reason
	}
	return &f, ""
}

func (r row) timestamp(fields ...string) (time.Time, string, string) {
	for _, f := range fields {
		s, ok := r.str(f)
		if !ok {
			continue
		}
		t, ok := history.NormalizeTimestamp(s)
		if !ok {
			return time.Time{}, f, "unparseable timestamp"
		}
		return t, f, ""
	}
	return time.Time{}, fields[0], "missing"
}

const (
	kindOutcome = "outcome"
	kindPoint   = "price point"
	kindTrade   = "trade"
	kindMarket  = "market"
)

// DecodeOutcome decodes {id, label, pool, outcome_slug?, current_fee_rate?}.
// A negative pool is kept; the pricing layer clamps it.
func DecodeOutcome(raw json.RawMessage) Result[domain.Outcome] {
	r, reason := parseRow(raw)
	if reason != "" {
		return fail[domain.Outcome](kindOutcome, "", reason)
	}
	return decodeOutcome(r)
}

func decodeOutcome(r row) Result[domain.Outcome] {
	id, ok := r.id("id")
	if !ok {
		return fail[domain.Outcome](kindOutcome, "id", "missing")
	}
	pool, reason := r.num("pool")
	if reason != "" {
		return fail[domain.Outcome](kindOutcome, "pool", reason)
	}
	fee, reason := r.optNum("current_fee_rate")
	if reason != "" {
		return fail[domain.Outcome](kindOutcome, "current_fee_rate", reason)
	}
	if fee != nil && *fee < 0 {
		return fail[domain.Outcome](kindOutcome, "current_fee_rate", "negative")
	}
	label, _ := r.str("label")
	slug, _ := r.str("outcome_slug")
	marketID, _ := r.id("market_id")
	return valid(domain.Outcome{
		ID:       id,
		MarketID: marketID,
		Label:    label,
		Slug:     slug,
		Pool:     pool,
		FeeRate:  fee,
	})
}

// OutcomePatch is a partial outcome update. Nil fields were absent from the
// event and keep their previous value when merged.
type OutcomePatch struct {
	ID      string
	Label   *string
	Slug    *string
	Pool    *float64
	FeeRate *float64
	// HasFee is true when current_fee_rate was present, even as null.
	HasFee bool
}

// DecodeOutcomePatch decodes an outcome update that may carry only some
// columns. Only id is required.
func DecodeOutcomePatch(raw json.RawMessage) Result[OutcomePatch] {
	r, reason := parseRow(raw)
	if reason != "" {
		return fail[OutcomePatch](kindOutcome, "", reason)
	}
	id, ok := r.id("id")
	if !ok {
		return fail[OutcomePatch](kindOutcome, "id", "missing")
	}
	p := OutcomePatch{ID: id}
	if s, ok := r.str("label"); ok {
		p.Label = &s
	}
	if s, ok := r.str("outcome_slug"); ok {
		p.Slug = &s
	}
	if p.Pool, reason = r.optNum("pool"); reason != "" {
		return fail[OutcomePatch](kindOutcome, "pool", reason)
	}
	_, p.HasFee = r["current_fee_rate"]
	if p.FeeRate, reason = r.optNum("current_fee_rate"); reason != "" {
		return fail[OutcomePatch](kindOutcome, "current_fee_rate", reason)
	}
	return Result[OutcomePatch]{Value: p}
}

// DecodePricePoint decodes {outcome_id, price, time|created_at}. Timestamps
// go through history.NormalizeTimestamp; an unparseable one rejects the row.
func DecodePricePoint(raw json.RawMessage) Result[domain.PricePoint] {
	r, reason := parseRow(raw)
	if reason != "" {
		return fail[domain.PricePoint](kindPoint, "", reason)
	}
	outcomeID, ok := r.id("outcome_id")
	if !ok {
		return fail[domain.PricePoint](kindPoint, "outcome_id", "missing")
	}
	price, reason := r.num("price")
	if reason != "" {
		return fail[domain.PricePoint](kindPoint, "price", reason)
	}
	t, field, reason := r.timestamp("time", "created_at")
	if reason != "" {
		return fail[domain.PricePoint](kindPoint, field, reason)
	}
	marketID, _ := r.id("market_id")
	return valid(domain.PricePoint{MarketID: marketID, OutcomeID: outcomeID, Price: price, Time: t})
}

// DecodeTrade decodes {price, shares, side} plus the optional identifying
// columns. Side must be buy or sell.
func DecodeTrade(raw json.RawMessage) Result[domain.Trade] {
	r, reason := parseRow(raw)
	if reason != "" {
		return fail[domain.Trade](kindTrade, "", reason)
	}
	price, reason := r.num("price")
	if reason != "" {
		return fail[domain.Trade](kindTrade, "price", reason)
	}
	shares, reason := r.num("shares")
	if reason != "" {
		return fail[domain.Trade](kindTrade, "shares", reason)
	}
	if shares < 0 {
		return fail[domain.Trade](kindTrade, "shares", "negative")
	}
	side, _ := r.str("side")
	switch domain.TradeSide(strings.ToLower(side)) {
	case domain.SideBuy, domain.SideSell:
	default:
		return fail[domain.Trade](kindTrade, "side", fmt.Sprintf("unknown side %q", side))
	}

	t := domain.Trade{
		Price:  price,
		Shares: shares,
		Side:   domain.TradeSide(strings.ToLower(side)),
	}
	t.ID, _ = r.id("id")
	t.UserID, _ = r.id("user_id")
	t.MarketID, _ = r.id("market_id")
	t.OutcomeID, _ = r.id("outcome_id")
	if amount, _ := r.optNum("amount"); amount != nil {
		t.Amount = *amount
	}
	if r.present("created_at") {
		ts, field, reason := r.timestamp("created_at")
		if reason != "" {
			return fail[domain.Trade](kindTrade, field, reason)
		}
		t.Time = ts
	}
	return valid(t)
}

// DecodeMarket decodes a market row. An embedded "outcomes" array is decoded
// strictly: one bad outcome rejects the market, since prices depend on the
// full outcome set.
func DecodeMarket(raw json.RawMessage) Result[domain.Market] {
	r, reason := parseRow(raw)
	if reason != "" {
		return fail[domain.Market](kindMarket, "", reason)
	}
	id, ok := r.id("id")
	if !ok {
		return fail[domain.Market](kindMarket, "id", "missing")
	}
	m := domain.Market{ID: id}
	m.MatchID, _ = r.id("match_id")
	m.Type, _ = r.str("type")
	if s, ok := r.str("status"); ok {
		m.Status = domain.MarketStatus(strings.ToUpper(s))
	}
	if r.present("liquidity_usdc") {
		liq, reason := r.num("liquidity_usdc")
		if reason != "" {
			return fail[domain.Market](kindMarket, "liquidity_usdc", reason)
		}
		m.Liquidity = liq
	}
	if m.RiskMultiplier, reason = r.optNum("risk_multiplier"); reason != "" {
		return fail[domain.Market](kindMarket, "risk_multiplier", reason)
	}
	if r.present("updated_at") {
		if s, ok := r.str("updated_at"); ok {
			m.UpdatedAt, _ = history.NormalizeTimestamp(s)
		}
	}

	if r.present("outcomes") {
		var rows []json.RawMessage
		if err := json.Unmarshal(r["outcomes"], &rows); err != nil {
			return fail[domain.Market](kindMarket, "outcomes", "not an array")
		}
		for i, raw := range rows {
			res := DecodeOutcome(raw)
			if res.Err != nil {
				return fail[domain.Market](kindMarket, fmt.Sprintf("outcomes[%d].%s", i, res.Err.Field), res.Err.Reason)
			}
			if res.Value.MarketID == "" {
				res.Value.MarketID = id
			}
			m.Outcomes = append(m.Outcomes, res.Value)
		}
	}
	return valid(m)
}
