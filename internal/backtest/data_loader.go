package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stepback/internal/journal"
	"stepback/internal/quote"
)

// DataLoader loads historical bid/ask quotes for a backtest run from a CSV
// export, after the teacher's DataLoader. A prior run's journal holds no
// quotes; LoadFromJournal reads ladder balances from it instead.
type DataLoader struct {
	quotes []quote.Quote
}

// NewDataLoader returns an empty loader.
func NewDataLoader() *DataLoader {
	return &DataLoader{}
}

// LoadFromCSV loads quotes from a CSV file with columns
// timestamp,bid,ask (timestamp as RFC3339 or "2006-01-02 15:04:05").
func (dl *DataLoader) LoadFromCSV(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read CSV header: %w", err)
	}

	indices := make(map[string]int, len(header))
	for i, col := range header {
		indices[col] = i
	}

	for {
		record, err := reader.Read()
		if err != nil {
			break
		}

		ts, err := parseTimestamp(record[indices["timestamp"]])
		if err != nil {
			continue
		}
		bid, err := decimal.NewFromString(record[indices["bid"]])
		if err != nil {
			continue
		}
		ask, err := decimal.NewFromString(record[indices["ask"]])
		if err != nil {
			continue
		}

		dl.quotes = append(dl.quotes, quote.Quote{Bid: bid, Ask: ask, Ts: ts})
	}

	dl.sort()
	return nil
}

// LoadFromJournal does not reconstruct a quote series (the journal stores
// ladder/trade records, not raw quote ticks); it reads the ladder
// transitions so a run can be resumed from a prior run's final state.
// Returns the balance after each journaled transition, in chronological
// order (see journal.Reconstruct).
func LoadFromJournal(dataPath string) ([]decimal.Decimal, error) {
	return journal.Reconstruct(dataPath)
}

// Clip discards quotes outside [start, end]. Either bound may be empty, in
// which case that side is left unclipped. Bounds are parsed with the same
// formats parseTimestamp accepts.
func (dl *DataLoader) Clip(start, end string) error {
	var startTs, endTs time.Time
	var err error
	if start != "" {
		if startTs, err = parseTimestamp(start); err != nil {
			return fmt.Errorf("parse start-date: %w", err)
		}
	}
	if end != "" {
		if endTs, err = parseTimestamp(end); err != nil {
			return fmt.Errorf("parse end-date: %w", err)
		}
	}

	clipped := dl.quotes[:0]
	for _, q := range dl.quotes {
		if !startTs.IsZero() && q.Ts.Before(startTs) {
			continue
		}
		if !endTs.IsZero() && q.Ts.After(endTs) {
			continue
		}
		clipped = append(clipped, q)
	}
	dl.quotes = clipped
	return nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", raw)
}

func (dl *DataLoader) sort() {
	sort.Slice(dl.quotes, func(i, j int) bool {
		return dl.quotes[i].Ts.Before(dl.quotes[j].Ts)
	})
}

// Quotes returns the loaded quotes in chronological order.
func (dl *DataLoader) Quotes() []quote.Quote {
	return dl.quotes
}

// Count returns the total number of loaded quotes.
func (dl *DataLoader) Count() int {
	return len(dl.quotes)
}

// NewSource builds a quote.Replay source from the loaded data, logging the
// span it covers.
func (dl *DataLoader) NewSource(logger zerolog.Logger) *quote.Replay {
	if len(dl.quotes) > 0 {
		logger.Info().
			Int("count", len(dl.quotes)).
			Time("start", dl.quotes[0].Ts).
			Time("end", dl.quotes[len(dl.quotes)-1].Ts).
			Msg("backtest quotes loaded")
	}
	return quote.NewReplay(dl.quotes)
}
