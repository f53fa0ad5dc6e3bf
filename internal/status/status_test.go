package status

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"stepback/internal/journal"
)

type stubEngine struct {
	ladder *journal.LadderSnapshot
	stats  journal.Stats
	open   bool
}

func (s stubEngine) LadderSnapshot() *journal.LadderSnapshot { return s.ladder }
func (s stubEngine) Stats() journal.Stats                    { return s.stats }
func (s stubEngine) HasOpenPosition() bool                   { return s.open }

func TestHandleStatus_ServesLadderAndStats(t *testing.T) {
	eng := stubEngine{
		ladder: &journal.LadderSnapshot{
			History:   []decimal.Decimal{decimal.NewFromInt(100), decimal.NewFromInt(130)},
			StepIndex: 1,
			Balance:   decimal.NewFromInt(130),
		},
		stats: journal.Stats{TotalTrades: 2, WinningTrades: 1},
	}
	s := New(eng, 0, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"step_index":1`)
	require.Contains(t, rec.Body.String(), `"total_trades":2`)
}

func TestHandleHealthz_ReportsOK(t *testing.T) {
	s := New(stubEngine{ladder: &journal.LadderSnapshot{}}, 0, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.handleHealthz(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
