// Package quote is the Market Data Source boundary: a stream of best
// bid/ask quotes for the engine's single configured instrument. The
// production implementation is a gorilla/websocket client with ping/pong
// health checks and reconnect, grounded on the teacher's bitunix.WS; a
// replay implementation feeds a deterministic sequence for backtests.
package quote

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a single best bid/ask observation.
type Quote struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
	Ts  time.Time
}

// Source streams quotes for one symbol until ctx is cancelled. The returned
// error channel carries transient connection errors; the implementation is
// responsible for reconnecting internally and continuing to publish quotes
// after a transient failure.
type Source interface {
	Stream(ctx context.Context, symbol string) (<-chan Quote, <-chan error)
}
