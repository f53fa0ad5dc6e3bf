package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const pongTimeout = 10 * time.Second

// WS is a Source backed by a gorilla/websocket connection, with ping/pong
// health checks and reconnect-with-backoff, grounded on the teacher's
// bitunix.WS.streamOnce loop.
type WS struct {
	url    string
	ping   time.Duration
	logger zerolog.Logger
}

// NewWS returns a websocket quote source for url, sending a ping every
// pingInterval.
func NewWS(url string, pingInterval time.Duration, logger zerolog.Logger) *WS {
	return &WS{url: url, ping: pingInterval, logger: logger}
}

// wireQuote is the exchange's wire format for a best-bid/ask tick.
type wireQuote struct {
	Symbol string `json:"symbol"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
	Ts     int64  `json:"ts"`
}

func (w *WS) Stream(ctx context.Context, symbol string) (<-chan Quote, <-chan error) {
	quotes := make(chan Quote, 256)
	errs := make(chan error, 16)

	go func() {
		defer close(quotes)
		defer close(errs)

		backoff := time.Second
		const maxBackoff = 30 * time.Second

		for {
			if ctx.Err() != nil {
				return
			}
			if err := w.streamOnce(ctx, symbol, quotes); err != nil {
				select {
				case errs <- fmt.Errorf("quote stream: %w", err):
				default:
				}
				w.logger.Warn().Err(err).Dur("backoff", backoff).Msg("quote stream disconnected, reconnecting")
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			backoff = time.Second
		}
	}()

	return quotes, errs
}

func (w *WS) streamOnce(ctx context.Context, symbol string, quotes chan<- Quote) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	pongDeadline := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		select {
		case pongDeadline <- struct{}{}:
		default:
		}
		return nil
	})

	done := make(chan struct{})
	readErrs := make(chan error, 1)
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErrs <- err
				return
			}
			var wq wireQuote
			if err := json.Unmarshal(data, &wq); err != nil {
				continue
			}
			if wq.Symbol != symbol {
				continue
			}
			bid, err1 := decimal.NewFromString(wq.Bid)
			ask, err2 := decimal.NewFromString(wq.Ask)
			if err1 != nil || err2 != nil {
				continue
			}
			q := Quote{Bid: bid, Ask: ask, Ts: time.Unix(0, wq.Ts)}
			select {
			case quotes <- q:
			case <-ctx.Done():
				return
			}
		}
	}()

	pingTicker := time.NewTicker(w.ping)
	defer pingTicker.Stop()
	pongTimeoutTicker := time.NewTicker(pongTimeout)
	defer pongTimeoutTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErrs:
			return err
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case <-pongDeadline:
			pongTimeoutTicker.Reset(pongTimeout)
		case <-pongTimeoutTicker.C:
			return fmt.Errorf("pong timeout: no response within %v", pongTimeout)
		}
	}
}
