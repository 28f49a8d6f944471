package service

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/matchmarket/internal/decode"
	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// SourceKind names where an outcome set came from.
type SourceKind string

// Outcome sources in their documented precedence order.
const (
	SourceRealtime  SourceKind = "realtime"
	SourceEmbedded  SourceKind = "embedded"
	SourceRefetched SourceKind = "refetched"
)

// OutcomeSource is one candidate outcome set. Fetch, when set, is only
// called if every earlier source was empty.
type OutcomeSource struct {
	Kind     SourceKind
	Outcomes []domain.Outcome
	Fetch    func(ctx context.Context) ([]domain.Outcome, error)
}

// Realtime wraps the outcome set maintained from change events.
func Realtime(outcomes []domain.Outcome) OutcomeSource {
	return OutcomeSource{Kind: SourceRealtime, Outcomes: outcomes}
}

// Embedded wraps the outcomes carried on a market snapshot.
func Embedded(m domain.Market) OutcomeSource {
	return OutcomeSource{Kind: SourceEmbedded, Outcomes: m.Outcomes}
}

// Refetched loads the outcomes from the store on demand.
func Refetched(store domain.MarketStore, marketID string) OutcomeSource {
	return OutcomeSource{
		Kind: SourceRefetched,
		Fetch: func(ctx context.Context) ([]domain.Outcome, error) {
			return store.ListOutcomes(ctx, marketID)
		},
	}
}

// ResolveOutcomes returns the first non-empty source in the order given,
// along with its kind. Callers pass Realtime, Embedded and Refetched in that
// order. A fetch error stops the walk. When every source is empty the
// result is empty with no error.
func ResolveOutcomes(ctx context.Context, sources ...OutcomeSource) ([]domain.Outcome, SourceKind, error) {
	for _, src := range sources {
		if len(src.Outcomes) > 0 {
			return src.Outcomes, src.Kind, nil
		}
		if src.Fetch == nil {
			continue
		}
		outcomes, err := src.Fetch(ctx)
		if err != nil {
			return nil, src.Kind, fmt.Errorf("service: resolve outcomes from %s: %w", src.Kind, err)
		}
		if len(outcomes) > 0 {
			return outcomes, src.Kind, nil
		}
	}
	return nil, "", nil
}

// MergeOutcome applies a partial update to prev. Fields absent from the
// patch keep their previous value. needsRefetch is true when the patch did
// not carry the fee rate, which change events omit when the column did not
// change.
func MergeOutcome(prev domain.Outcome, patch decode.OutcomePatch) (next domain.Outcome, needsRefetch bool) {
	next = prev
	next.ID = patch.ID
	if patch.Label != nil {
		next.Label = *patch.Label
	}
	if patch.Slug != nil {
		next.Slug = *patch.Slug
	}
	if patch.Pool != nil {
		next.Pool = *patch.Pool
	}
	if patch.HasFee {
		next.FeeRate = patch.FeeRate
	}
	return next, !patch.HasFee
}

// ApplyOutcomeEvent folds an outcomes-table change into the current set and
// returns a new slice; the input is not modified. Inserts append (or replace
// a row with the same id), updates merge, deletes remove. refetch reports
// that the event could not be applied in full and the set should be
// reloaded from the store.
func ApplyOutcomeEvent(current []domain.Outcome, ev domain.ChangeEvent) (next []domain.Outcome, refetch bool, err error) {
	next = make([]domain.Outcome, len(current))
	copy(next, current)

	switch ev.Type {
	case domain.ChangeInsert:
		o, err := decode.DecodeOutcome(ev.New).Unwrap()
		if err != nil {
			return current, false, err
		}
		if i := indexOf(next, o.ID); i >= 0 {
			next[i] = o
		} else {
			next = append(next, o)
		}
		return next, false, nil

	case domain.ChangeUpdate:
		patch, err := decode.DecodeOutcomePatch(ev.New).Unwrap()
		if err != nil {
			return current, false, err
		}
		i := indexOf(next, patch.ID)
		if i < 0 {
			return current, true, nil
		}
		next[i], refetch = MergeOutcome(next[i], patch)
		return next, refetch, nil

	case domain.ChangeDelete:
		patch, err := decode.DecodeOutcomePatch(ev.Old).Unwrap()
		if err != nil {
			return current, true, nil
		}
		if i := indexOf(next, patch.ID); i >= 0 {
			next = append(next[:i], next[i+1:]...)
		}
		return next, true, nil
	}
	return current, false, fmt.Errorf("service: apply outcome event: type %q: %w", ev.Type, domain.ErrInvalidInput)
}

func indexOf(outcomes []domain.Outcome, id string) int {
	for i, o := range outcomes {
		if o.ID == id {
			return i
		}
	}
	return -1
}

// sameOutcomeSet reports whether a and b hold the same ids in the same order.
func sameOutcomeSet(a, b []domain.Outcome) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Slug != b[i].Slug {
			return false
		}
	}
	return true
}
