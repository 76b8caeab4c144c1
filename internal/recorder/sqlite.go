package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"BreakoutSentinel/internal/model"
)

// SQLiteRecorder persists the decision journal to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so the dashboard can read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ranges (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			date       TEXT NOT NULL,
			high       REAL,
			low        REAL,
			last_close REAL,
			candles    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ranges_date ON ranges(date)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			date         TEXT NOT NULL,
			price        REAL,
			range_high   REAL,
			breakout     INTEGER,
			predicted_rr REAL,
			qualified    INTEGER,
			orb_range    REAL,
			candle_range REAL,
			momentum     REAL,
			atr20        REAL,
			range_ratio  REAL,
			action       TEXT,
			cause        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(timestamp)`,

		`CREATE TABLE IF NOT EXISTS transitions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			execution_id TEXT NOT NULL,
			date         TEXT,
			from_state   TEXT,
			to_state     TEXT,
			note         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_exec ON transitions(execution_id)`,

		`CREATE TABLE IF NOT EXISTS executions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			execution_id TEXT NOT NULL,
			date         TEXT,
			state        TEXT,
			quantity     REAL,
			fill_price   REAL,
			stop         REAL,
			take_profit  REAL,
			predicted_rr REAL,
			actual_rr    REAL,
			degraded     INTEGER,
			abort_reason TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_date ON executions(date)`,

		`CREATE TABLE IF NOT EXISTS day_marks (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			date      TEXT NOT NULL,
			cause     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_day_marks_date ON day_marks(date)`,

		`CREATE TABLE IF NOT EXISTS account_snapshots (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp         INTEGER NOT NULL,
			wallet_balance    REAL,
			available_balance REAL,
			total_margin      REAL,
			unrealized_pnl    REAL,
			margin_usage_pct  REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_account_ts ON account_snapshots(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRange(evt *RangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rng := evt.Range
	_, err := r.db.Exec(`INSERT INTO ranges
		(timestamp, date, high, low, last_close, candles)
		VALUES (?,?,?,?,?,?)`,
		time.Now().Unix(), rng.Date, rng.High, rng.Low, rng.LastClose, rng.Candles,
	)
	return err
}

func (r *SQLiteRecorder) RecordDecision(evt *DecisionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := evt.Features
	_, err := r.db.Exec(`INSERT INTO decisions
		(timestamp, date, price, range_high, breakout, predicted_rr, qualified,
		 orb_range, candle_range, momentum, atr20, range_ratio, action, cause)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.Date, evt.Price, evt.RangeHigh,
		boolInt(evt.Breakout), evt.PredictedRR, boolInt(evt.Qualified),
		f.RangeWidth, f.CandleRange, f.Momentum, f.ATR20, f.RangeRatio,
		evt.Action, evt.Cause,
	)
	return err
}

func (r *SQLiteRecorder) RecordTransition(evt *TransitionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO transitions
		(timestamp, execution_id, date, from_state, to_state, note)
		VALUES (?,?,?,?,?,?)`,
		time.Now().Unix(), evt.ExecutionID, evt.Date, evt.From, evt.To, evt.Note,
	)
	return err
}

func (r *SQLiteRecorder) RecordExecution(evt *ExecutionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO executions
		(timestamp, execution_id, date, state, quantity, fill_price, stop, take_profit,
		 predicted_rr, actual_rr, degraded, abort_reason)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.ExecutionID, evt.Date, evt.State,
		evt.Quantity, evt.FillPrice, evt.Stop, evt.TakeProfit,
		evt.PredictedRR, evt.ActualRR, boolInt(evt.Degraded), evt.AbortReason,
	)
	return err
}

func (r *SQLiteRecorder) RecordDayMark(evt *DayMarkEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO day_marks (timestamp, date, cause) VALUES (?,?,?)`,
		time.Now().Unix(), evt.Date, evt.Cause,
	)
	return err
}

func (r *SQLiteRecorder) RecordAccount(snap *model.AccountSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO account_snapshots
		(timestamp, wallet_balance, available_balance, total_margin, unrealized_pnl, margin_usage_pct)
		VALUES (?,?,?,?,?,?)`,
		time.Now().Unix(), snap.WalletBalance, snap.AvailableBalance,
		snap.TotalMargin, snap.UnrealizedPnL, snap.MarginUsagePct,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
