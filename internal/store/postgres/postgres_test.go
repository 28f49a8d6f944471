package postgres

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{"explicit", ClientConfig{DSN: "postgres://x"}, "postgres://x"},
		{"defaults", ClientConfig{Host: "db", User: "u", Password: "p", Database: "mm"}, "postgres://u:p@db:5432/mm?sslmode=disable"},
		{"ssl", ClientConfig{Host: "db", Port: 6543, User: "u", Password: "p", Database: "mm", SSLMode: "require"}, "postgres://u:p@db:6543/mm?sslmode=require"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Fatalf("DSN = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHistoryQuery(t *testing.T) {
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	q, args := historyQuery("market_id", "m1", domain.ListOpts{Since: &since, Limit: 50})
	if !strings.Contains(q, "market_id = $1") || !strings.Contains(q, "created_at >= $2") || !strings.Contains(q, "LIMIT $3") {
		t.Fatalf("query = %s", q)
	}
	if !strings.Contains(q, "ORDER BY created_at DESC") {
		t.Fatalf("query must select newest first: %s", q)
	}
	if len(args) != 3 || args[2] != 50 {
		t.Fatalf("args = %v", args)
	}

	_, args = historyQuery("outcome_id", "o1", domain.ListOpts{})
	if args[len(args)-1] != defaultHistoryLimit {
		t.Fatalf("default limit = %v", args[len(args)-1])
	}
}

func TestDecodePointsDropsBadRows(t *testing.T) {
	raws := []json.RawMessage{
		json.RawMessage(`{"market_id":"m1","outcome_id":"a","price":0.61,"time":"2024-05-01T11:55:00+00:00"}`),
		json.RawMessage(`{"market_id":"m1","outcome_id":"b","price":null,"time":"2024-05-01T11:54:00+00:00"}`),
		json.RawMessage(`{"market_id":"m1","outcome_id":"b","price":"0.39","time":"2024-05-01 11:50:00+00"}`),
	}
	points, rejected := decodePoints(raws)
	if len(points) != 2 || len(rejected) != 1 {
		t.Fatalf("points=%d rejected=%d", len(points), len(rejected))
	}
	if points[0].OutcomeID != "b" || points[0].Price != 0.39 || points[1].OutcomeID != "a" {
		t.Errorf("points not ascending: %+v", points)
	}
	if rejected[0].Field != "price" {
		t.Errorf("rejected field = %q", rejected[0].Field)
	}
	want := time.Date(2024, 5, 1, 11, 50, 0, 0, time.UTC)
	if !points[0].Time.Equal(want) {
		t.Errorf("time = %v, want %v", points[0].Time, want)
	}
}

func TestReversePoints(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	p := []domain.PricePoint{{Time: t0.Add(2 * time.Minute)}, {Time: t0.Add(time.Minute)}, {Time: t0}}
	reversePoints(p)
	for i := 1; i < len(p); i++ {
		if !p[i].Time.After(p[i-1].Time) {
			t.Fatalf("not ascending at %d", i)
		}
	}
}

func TestTradePageQuery(t *testing.T) {
	until := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	q, args := tradePageQuery("m1", domain.ListOpts{Until: &until, Offset: 200})
	if !strings.Contains(q, "created_at < $2") || !strings.Contains(q, "LIMIT $3 OFFSET $4") {
		t.Fatalf("query = %s", q)
	}
	if args[2] != 1000 || args[3] != 200 {
		t.Fatalf("args = %v", args)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) < 3 {
		t.Fatalf("got %d migrations", len(entries))
	}
	data, err := migrationsFS.ReadFile("migrations/003_notify_change.sql")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "matchmarket_changes") {
		t.Fatal("notify trigger must publish on matchmarket_changes")
	}
}
