package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tradewatch/internal/record"
	logx "tradewatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) InsertIfAbsent(ctx context.Context, r record.TradingRecord) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}
	buy, err := json.Marshal(r.Buy)
	if err != nil {
		return false, err
	}
	tp, err := json.Marshal(r.TP)
	if err != nil {
		return false, err
	}

	// The UNIQUE constraint on message_id makes the insert atomic for
	// concurrent callers: at most one of them changes a row.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO trading_plans(message_id, issued_at, symbol, buy, tp, sl)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(message_id) DO NOTHING`,
		r.MessageID, r.IssuedAt.UnixMilli(), r.Symbol, string(buy), string(tp), r.SL,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sqliteStore) Query(ctx context.Context, f QueryFilter) ([]record.TradingRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	skip := f.Skip
	if skip < 0 {
		skip = 0
	}

	var (
		rows *sql.Rows
		err  error
	)
	if f.Symbol != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT message_id, issued_at, symbol, buy, tp, sl
			 FROM trading_plans WHERE symbol = ?
			 ORDER BY id DESC LIMIT ? OFFSET ?`,
			f.Symbol, limit, skip)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT message_id, issued_at, symbol, buy, tp, sl
			 FROM trading_plans
			 ORDER BY id DESC LIMIT ? OFFSET ?`,
			limit, skip)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]record.TradingRecord, 0, limit)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PreviousFor(ctx context.Context, symbol string, beforeMessageID int64) (record.TradingRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT message_id, issued_at, symbol, buy, tp, sl
		 FROM trading_plans
		 WHERE symbol = ?
		   AND id < (SELECT id FROM trading_plans WHERE message_id = ?)
		 ORDER BY id DESC LIMIT 1`,
		symbol, beforeMessageID)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.TradingRecord{}, false, nil
	}
	if err != nil {
		return record.TradingRecord{}, false, err
	}
	return r, true, nil
}

func (s *sqliteStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM trading_plans WHERE issued_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (record.TradingRecord, error) {
	var (
		r        record.TradingRecord
		issuedMS int64
		buy, tp  string
	)
	if err := row.Scan(&r.MessageID, &issuedMS, &r.Symbol, &buy, &tp, &r.SL); err != nil {
		return record.TradingRecord{}, err
	}
	r.IssuedAt = time.UnixMilli(issuedMS).UTC()
	if err := json.Unmarshal([]byte(buy), &r.Buy); err != nil {
		return record.TradingRecord{}, fmt.Errorf("decode buy levels: %w", err)
	}
	if err := json.Unmarshal([]byte(tp), &r.TP); err != nil {
		return record.TradingRecord{}, fmt.Errorf("decode tp levels: %w", err)
	}
	return r, nil
}
