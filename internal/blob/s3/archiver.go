package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/matchmarket/internal/domain"
)

// tradePage is the page size used when streaming a market's trade tape.
const tradePage = 1000

// SeriesFunc returns the built chart rows of a market for one timeframe.
type SeriesFunc func(ctx context.Context, marketID, timeframe string) ([]domain.HistoryRow, error)

// ExportResult summarises one market's export.
type ExportResult struct {
	MarketID   string `json:"market_id"`
	SeriesPath string `json:"series_path"`
	SeriesRows int    `json:"series_rows"`
	TradesPath string `json:"trades_path"`
	Trades     int64  `json:"trades"`
}

// Archiver writes chart series and trade tapes as JSONL objects under
// {run}/series/{market}/{timeframe}.jsonl and {run}/trades/{market}.jsonl.
// It never deletes anything from the primary store.
type Archiver struct {
	writer domain.BlobWriter
	trades domain.TradeStore
	series SeriesFunc
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, trades domain.TradeStore, series SeriesFunc, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		trades: trades,
		series: series,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ExportMarket exports one market's series for timeframe and its trades
// created at or after since. A zero since exports the full tape.
func (a *Archiver) ExportMarket(ctx context.Context, runID, marketID, timeframe string, since time.Time) (ExportResult, error) {
	res := ExportResult{
		MarketID:   marketID,
		SeriesPath: seriesPath(runID, marketID, timeframe),
		TradesPath: tradesPath(runID, marketID),
	}

	rows, err := a.series(ctx, marketID, timeframe)
	if err != nil {
		return res, fmt.Errorf("s3blob: export series %s: %w", marketID, err)
	}
	buf, err := marshalJSONL(rows)
	if err != nil {
		return res, fmt.Errorf("s3blob: export series %s marshal: %w", marketID, err)
	}
	if err := a.writer.Put(ctx, res.SeriesPath, bytes.NewReader(buf), jsonlContentType); err != nil {
		return res, fmt.Errorf("s3blob: export series %s upload: %w", marketID, err)
	}
	res.SeriesRows = len(rows)

	res.Trades, err = a.exportTrades(ctx, res.TradesPath, marketID, since)
	if err != nil {
		return res, err
	}

	a.logger.Info("market exported",
		slog.String("market_id", marketID),
		slog.Int("series_rows", res.SeriesRows),
		slog.Int64("trades", res.Trades),
	)
	return res, nil
}

// exportTrades pages through the tape and streams it into a multipart
// upload so large tapes are never held in memory.
func (a *Archiver) exportTrades(ctx context.Context, path, marketID string, since time.Time) (int64, error) {
	pr, pw := io.Pipe()

	done := make(chan int64, 1)
	go func() {
		n, err := writeTrades(ctx, pw, a.trades, marketID, since)
		pw.CloseWithError(err)
		done <- n
	}()

	if err := a.writer.PutMultipart(ctx, path, pr, 0); err != nil {
		_ = pr.CloseWithError(err)
		return 0, fmt.Errorf("s3blob: export trades %s: %w", marketID, err)
	}
	return <-done, nil
}

func writeTrades(ctx context.Context, w io.Writer, store domain.TradeStore, marketID string, since time.Time) (int64, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	opts := domain.ListOpts{Limit: tradePage}
	if !since.IsZero() {
		opts.Since = &since
	}

	var count int64
	for {
		trades, err := store.ListByMarket(ctx, marketID, opts)
		if err != nil {
			return count, fmt.Errorf("s3blob: list trades %s: %w", marketID, err)
		}
		for _, t := range trades {
			if err := enc.Encode(t); err != nil {
				return count, fmt.Errorf("s3blob: encode trade %s: %w", t.ID, err)
			}
			count++
		}
		if len(trades) < tradePage {
			return count, nil
		}
		opts.Offset += len(trades)
	}
}

func seriesPath(runID, marketID, timeframe string) string {
	return fmt.Sprintf("%s/series/%s/%s.jsonl", runID, marketID, timeframe)
}

func tradesPath(runID, marketID string) string {
	return fmt.Sprintf("%s/trades/%s.jsonl", runID, marketID)
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
