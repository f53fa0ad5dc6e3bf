// Package journal is the append-only record of every ladder transition,
// order submission, fill, and stats snapshot the engine produces. It is a
// dual sink, after the teacher's storage.Store (BoltDB, time-ordered keys):
// every record, whatever its kind, is written to a single BoltDB bucket and
// mirrored as a structured zerolog event. It is written from the
// orchestrator goroutine only, so it needs no internal locking beyond what
// bbolt itself provides.
package journal

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"
)

const recordsBucket = "records"

// Kind identifies the shape of a journal record.
type Kind string

const (
	KindLadderTransition Kind = "ladder_transition"
	KindOrderSubmit      Kind = "order_submit"
	KindFill             Kind = "fill"
	KindTradeClosed      Kind = "trade_closed"
	KindStatsSnapshot    Kind = "stats_snapshot"
)

// LadderSnapshot is the ladder state captured alongside any record.
type LadderSnapshot struct {
	History     []decimal.Decimal `json:"history"`
	StepIndex   int               `json:"step_index"`
	Balance     decimal.Decimal   `json:"balance"`
	WasProfit   bool              `json:"was_profit,omitempty"`
	WasTransition bool            `json:"was_transition"`
}

// Stats is a cumulative statistics snapshot.
type Stats struct {
	TotalTrades     int             `json:"total_trades"`
	WinningTrades   int             `json:"winning_trades"`
	WinRate         decimal.Decimal `json:"win_rate"`
	MaxStepReached  int             `json:"max_step_reached"`
	CumulativeReturn decimal.Decimal `json:"cumulative_return"`
}

// Record is one journal entry. Fields not relevant to Kind are left zero.
type Record struct {
	Kind      Kind            `json:"kind"`
	Ts        time.Time       `json:"ts"`
	Ladder    *LadderSnapshot `json:"ladder,omitempty"`
	TradeJSON json.RawMessage `json:"trade,omitempty"`
	Stats     *Stats          `json:"stats,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// Journal is the BoltDB-backed append-only sink with a zerolog mirror.
type Journal struct {
	db     *bbolt.DB
	logger zerolog.Logger
}

// Open creates or opens the journal database at dataPath/journal.db.
func Open(dataPath string, logger zerolog.Logger) (*Journal, error) {
	dbPath := filepath.Join(dataPath, "journal.db")
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(recordsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create records bucket: %w", err)
	}

	return &Journal{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append writes r to BoltDB keyed by its timestamp plus a monotonic
// sequence number and mirrors it to the logger at info level, whatever its
// kind. The sequence suffix keeps two records sharing the same
// timestamp (e.g. a trade-closed record and the stats snapshot it
// triggers) from colliding on the same bbolt key and silently overwriting
// one another; since appends happen in call order on the orchestrator's
// single goroutine, the sequence also preserves chronological order
// between same-timestamp records for the cursor scans in All/Reconstruct.
func (j *Journal) Append(r Record) error {
	if r.Ts.IsZero() {
		return fmt.Errorf("journal: record missing timestamp")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}

	if err := j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(recordsBucket))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := []byte(fmt.Sprintf("%020d-%020d", r.Ts.UnixNano(), seq))
		return b.Put(key, data)
	}); err != nil {
		return fmt.Errorf("append journal record: %w", err)
	}

	event := j.logger.Info()
	event.Str("kind", string(r.Kind)).Time("ts", r.Ts)
	if r.Ladder != nil {
		event.Str("balance", r.Ladder.Balance.String()).Int("step_index", r.Ladder.StepIndex)
	}
	if r.Reason != "" {
		event.Str("reason", r.Reason)
	}
	event.Msg("journal")

	return nil
}

// All returns every record in the journal in timestamp order.
func (j *Journal) All() ([]Record, error) {
	var records []Record
	err := j.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(recordsBucket))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			records = append(records, r)
		}
		return nil
	})
	return records, err
}

// Reconstruct replays ladder_transition records read back from BoltDB and
// returns the balance each one moved the ladder to, in chronological order:
// one entry per transition, not the rung history itself (a loss appears as
// a lower balance following a higher one). It does not depend on the ladder
// package directly, since a transition record already carries the
// resulting balance.
func Reconstruct(dataPath string) ([]decimal.Decimal, error) {
	dbPath := filepath.Join(dataPath, "journal.db")
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("open journal db for reconstruction: %w", err)
	}
	defer db.Close()

	var history []decimal.Decimal
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(recordsBucket))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			if r.Kind != KindLadderTransition || r.Ladder == nil {
				continue
			}
			history = append(history, r.Ladder.Balance)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}
