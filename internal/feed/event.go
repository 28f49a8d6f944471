package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

var knownTables = map[string]bool{
	domain.TableOutcomes:     true,
	domain.TableMarkets:      true,
	domain.TablePriceHistory: true,
	domain.TableTrades:       true,
}

// ParseEvent decodes a change notification payload as written by the
// notify_change trigger:
//
//	{"table":"outcomes","type":"UPDATE","market_id":"...","record":{...},"old_record":{...}}
//
// Rows inside the event stay raw; workers decode them.
func ParseEvent(payload []byte) (domain.ChangeEvent, error) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("feed: parse event: %w", err)
	}
	ev.Type = domain.ChangeType(strings.ToUpper(string(ev.Type)))
	switch ev.Type {
	case domain.ChangeInsert, domain.ChangeUpdate, domain.ChangeDelete:
	default:
		return domain.ChangeEvent{}, fmt.Errorf("feed: parse event: unknown type %q: %w", ev.Type, domain.ErrInvalidInput)
	}
	if !knownTables[ev.Table] {
		return domain.ChangeEvent{}, fmt.Errorf("feed: parse event: unknown table %q: %w", ev.Table, domain.ErrInvalidInput)
	}
	ev.ReceivedAt = time.Now().UTC()
	return ev, nil
}

// EncodeEvent is the inverse of ParseEvent.
func EncodeEvent(ev domain.ChangeEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("feed: encode event: %w", err)
	}
	return data, nil
}
