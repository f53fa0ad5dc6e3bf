package quote

import (
	"context"
)

// Replay is a deterministic Source for backtests: it publishes a
// pre-loaded, chronologically ordered slice of quotes (such as the ones
// backtest.DataLoader reads from CSV) and then closes its channel.
type Replay struct {
	quotes []Quote
}

// NewReplay returns a Source that replays quotes in the given order,
// regardless of symbol (a backtest run is always scoped to one instrument).
func NewReplay(quotes []Quote) *Replay {
	return &Replay{quotes: quotes}
}

func (r *Replay) Stream(ctx context.Context, symbol string) (<-chan Quote, <-chan error) {
	out := make(chan Quote)
	errs := make(chan error)

	go func() {
		defer close(out)
		defer close(errs)
		for _, q := range r.quotes {
			select {
			case <-ctx.Done():
				return
			case out <- q:
			}
		}
	}()

	return out, errs
}
