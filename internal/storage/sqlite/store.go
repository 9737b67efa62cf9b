// Package sqlite implements the Store on a SQLite database using the
// pure-Go modernc driver. Decimals are stored as TEXT, timestamps as unix
// nanoseconds. The bot rows carry an optimistic version counter; the
// conditional UPDATE inside ApplyExecution is what makes live execution
// at-most-once per due period.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"dcapilot/internal/domain"
	"dcapilot/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS bots (
	id                  TEXT PRIMARY KEY,
	status              TEXT NOT NULL,
	config              TEXT NOT NULL,
	last_run            INTEGER,
	next_execution_time INTEGER,
	version             INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	bot_id          TEXT NOT NULL,
	mode            TEXT NOT NULL,
	start_time      INTEGER NOT NULL,
	end_time        INTEGER,
	initial_balance TEXT NOT NULL,
	final_balance   TEXT NOT NULL DEFAULT '0',
	status          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	side       TEXT NOT NULL,
	price      TEXT NOT NULL,
	quantity   TEXT NOT NULL,
	value      TEXT NOT NULL,
	fee        TEXT NOT NULL,
	timestamp  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_session ON trades(session_id, timestamp);

CREATE TABLE IF NOT EXISTS metrics (
	session_id     TEXT PRIMARY KEY,
	total_invested TEXT NOT NULL,
	total_value    TEXT NOT NULL,
	roi_percent    TEXT NOT NULL,
	total_trades   INTEGER NOT NULL,
	win_rate       TEXT
);
`

// Store is a SQLite-backed implementation of storage.Store.
type Store struct {
	db *sql.DB
	l  *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// New opens (or creates) the database at path and ensures the schema.
func New(path string, l *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite database at %s", path)
	}

	// the driver is not safe for concurrent writes over multiple conns.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ensure schema")
	}

	return &Store{db: db, l: l}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func scanTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// CreateBot inserts a new bot.
func (s *Store) CreateBot(ctx context.Context, bot *domain.Bot) error {
	cfg, err := json.Marshal(bot.Config)
	if err != nil {
		return errors.Wrap(err, "failed to encode bot config")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bots (id, status, config, last_run, next_execution_time, version)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		bot.ID, string(bot.Status), string(cfg),
		nullableTime(bot.LastRun), nullableTime(bot.NextExecutionTime), bot.Version)
	return errors.Wrapf(err, "failed to insert bot %s", bot.ID)
}

func (s *Store) scanBot(row interface{ Scan(...any) error }) (*domain.Bot, error) {
	var (
		bot      domain.Bot
		status   string
		cfg      string
		lastRun  sql.NullInt64
		nextExec sql.NullInt64
	)
	if err := row.Scan(&bot.ID, &status, &cfg, &lastRun, &nextExec, &bot.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBotNotFound
		}
		return nil, errors.Wrap(err, "failed to scan bot row")
	}

	if err := json.Unmarshal([]byte(cfg), &bot.Config); err != nil {
		return nil, errors.Wrapf(err, "failed to decode config of bot %s", bot.ID)
	}

	bot.Status = domain.BotStatus(status)
	bot.LastRun = scanTime(lastRun)
	bot.NextExecutionTime = scanTime(nextExec)
	return &bot, nil
}

// GetBot retrieves a bot by id.
func (s *Store) GetBot(ctx context.Context, id string) (*domain.Bot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, config, last_run, next_execution_time, version FROM bots WHERE id = ?`, id)
	return s.scanBot(row)
}

// UpdateBot persists user-driven bot changes and bumps the version.
func (s *Store) UpdateBot(ctx context.Context, bot *domain.Bot) error {
	cfg, err := json.Marshal(bot.Config)
	if err != nil {
		return errors.Wrap(err, "failed to encode bot config")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE bots SET status = ?, config = ?, last_run = ?, next_execution_time = ?, version = version + 1
		 WHERE id = ?`,
		string(bot.Status), string(cfg),
		nullableTime(bot.LastRun), nullableTime(bot.NextExecutionTime), bot.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to update bot %s", bot.ID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return domain.ErrBotNotFound
	}
	bot.Version++
	return nil
}

// ListBots returns all bots.
func (s *Store) ListBots(ctx context.Context) ([]*domain.Bot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, config, last_run, next_execution_time, version FROM bots`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query bots")
	}
	defer rows.Close()

	var bots []*domain.Bot
	for rows.Next() {
		bot, err := s.scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	return bots, rows.Err()
}

// ListDueBots returns Active bots with an elapsed next execution time.
func (s *Store) ListDueBots(ctx context.Context, now time.Time) ([]*domain.Bot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, config, last_run, next_execution_time, version FROM bots
		 WHERE status = ? AND next_execution_time IS NOT NULL AND next_execution_time <= ?`,
		string(domain.BotActive), now.UnixNano())
	if err != nil {
		return nil, errors.Wrap(err, "failed to query due bots")
	}
	defer rows.Close()

	var due []*domain.Bot
	for rows.Next() {
		bot, err := s.scanBot(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, bot)
	}
	return due, rows.Err()
}

// CreateSession inserts a new session.
func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, bot_id, mode, start_time, end_time, initial_balance, final_balance, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.BotID, string(session.Mode),
		session.StartTime.UnixNano(), nullableTime(session.EndTime),
		session.InitialBalance.String(), session.FinalBalance.String(), string(session.Status))
	return errors.Wrapf(err, "failed to insert session %s", session.ID)
}

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	var (
		session        domain.Session
		mode, status   string
		startTime      int64
		endTime        sql.NullInt64
		initial, final string
	)
	if err := row.Scan(&session.ID, &session.BotID, &mode, &startTime, &endTime, &initial, &final, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "failed to scan session row")
	}

	var err error
	if session.InitialBalance, err = parseDecimal(initial); err != nil {
		return nil, errors.Wrap(err, "failed to parse initial balance")
	}
	if session.FinalBalance, err = parseDecimal(final); err != nil {
		return nil, errors.Wrap(err, "failed to parse final balance")
	}

	session.Mode = domain.SessionMode(mode)
	session.Status = domain.SessionStatus(status)
	session.StartTime = time.Unix(0, startTime).UTC()
	session.EndTime = scanTime(endTime)
	return &session, nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, bot_id, mode, start_time, end_time, initial_balance, final_balance, status
		 FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// RunningSession returns the bot's running session in the given mode.
func (s *Store) RunningSession(ctx context.Context, botID string, mode domain.SessionMode) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, bot_id, mode, start_time, end_time, initial_balance, final_balance, status
		 FROM sessions WHERE bot_id = ? AND mode = ? AND status = ? LIMIT 1`,
		botID, string(mode), string(domain.SessionRunning))
	return scanSession(row)
}

// UpdateSession persists session changes.
func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET end_time = ?, final_balance = ?, status = ? WHERE id = ?`,
		nullableTime(session.EndTime), session.FinalBalance.String(), string(session.Status), session.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to update session %s", session.ID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// ListTrades returns the session's trades ordered by timestamp.
func (s *Store) ListTrades(ctx context.Context, sessionID string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, symbol, side, price, quantity, value, fee, timestamp
		 FROM trades WHERE session_id = ? ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query trades of session %s", sessionID)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			trade                  domain.Trade
			side                   string
			price, qty, value, fee string
			ts                     int64
		)
		if err := rows.Scan(&trade.ID, &trade.SessionID, &trade.Symbol, &side, &price, &qty, &value, &fee, &ts); err != nil {
			return nil, errors.Wrap(err, "failed to scan trade row")
		}
		if trade.Price, err = parseDecimal(price); err != nil {
			return nil, errors.Wrap(err, "failed to parse trade price")
		}
		if trade.Quantity, err = parseDecimal(qty); err != nil {
			return nil, errors.Wrap(err, "failed to parse trade quantity")
		}
		if trade.Value, err = parseDecimal(value); err != nil {
			return nil, errors.Wrap(err, "failed to parse trade value")
		}
		if trade.Fee, err = parseDecimal(fee); err != nil {
			return nil, errors.Wrap(err, "failed to parse trade fee")
		}
		trade.Side = domain.Side(side)
		trade.Timestamp = time.Unix(0, ts).UTC()
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// GetMetric returns the latest session metric, nil when absent.
func (s *Store) GetMetric(ctx context.Context, sessionID string) (*domain.PerformanceMetric, error) {
	var (
		metric                    domain.PerformanceMetric
		invested, totalValue, roi string
		winRate                   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, total_invested, total_value, roi_percent, total_trades, win_rate
		 FROM metrics WHERE session_id = ?`, sessionID).
		Scan(&metric.SessionID, &invested, &totalValue, &roi, &metric.TotalTrades, &winRate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query metric of session %s", sessionID)
	}

	if metric.TotalInvested, err = parseDecimal(invested); err != nil {
		return nil, errors.Wrap(err, "failed to parse total invested")
	}
	if metric.TotalValue, err = parseDecimal(totalValue); err != nil {
		return nil, errors.Wrap(err, "failed to parse total value")
	}
	if metric.ROIPercent, err = parseDecimal(roi); err != nil {
		return nil, errors.Wrap(err, "failed to parse roi")
	}
	if winRate.Valid {
		wr, err := parseDecimal(winRate.String)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse win rate")
		}
		metric.WinRate = &wr
	}
	return &metric, nil
}

// ApplyExecution applies one execution in a single transaction. The
// conditional bot UPDATE carries the version predicate; zero affected rows
// means another execution won the race and nothing is committed.
func (s *Store) ApplyExecution(ctx context.Context, update storage.ExecutionUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	cfg, err := json.Marshal(update.Bot.Config)
	if err != nil {
		return errors.Wrap(err, "failed to encode bot config")
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE bots SET status = ?, config = ?, last_run = ?, next_execution_time = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		string(update.Bot.Status), string(cfg),
		nullableTime(update.Bot.LastRun), nullableTime(update.Bot.NextExecutionTime),
		update.Bot.ID, update.ExpectedVersion)
	if err != nil {
		return errors.Wrapf(err, "failed to update bot %s", update.Bot.ID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM bots WHERE id = ?`, update.Bot.ID).Scan(&exists); err != nil {
			return errors.Wrap(err, "failed to check bot existence")
		}
		if exists == 0 {
			return domain.ErrBotNotFound
		}
		return domain.ErrConflict
	}

	trade := update.Trade
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trades (id, session_id, symbol, side, price, quantity, value, fee, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.SessionID, trade.Symbol, string(trade.Side),
		trade.Price.String(), trade.Quantity.String(), trade.Value.String(), trade.Fee.String(),
		trade.Timestamp.UnixNano()); err != nil {
		return errors.Wrapf(err, "failed to insert trade %s", trade.ID)
	}

	metric := update.Metric
	var winRate any
	if metric.WinRate != nil {
		winRate = metric.WinRate.String()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO metrics (session_id, total_invested, total_value, roi_percent, total_trades, win_rate)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			total_invested = excluded.total_invested,
			total_value = excluded.total_value,
			roi_percent = excluded.roi_percent,
			total_trades = excluded.total_trades,
			win_rate = excluded.win_rate`,
		metric.SessionID, metric.TotalInvested.String(), metric.TotalValue.String(),
		metric.ROIPercent.String(), metric.TotalTrades, winRate); err != nil {
		return errors.Wrapf(err, "failed to upsert metric of session %s", metric.SessionID)
	}

	session := update.Session
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET end_time = ?, final_balance = ?, status = ? WHERE id = ?`,
		nullableTime(session.EndTime), session.FinalBalance.String(), string(session.Status), session.ID); err != nil {
		return errors.Wrapf(err, "failed to update session %s", session.ID)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit execution")
	}

	update.Bot.Version = update.ExpectedVersion + 1
	return nil
}
