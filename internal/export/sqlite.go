package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/oicur0t/tracex/pkg/models"
)

const sqliteSchema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS loads (
    load_id     TEXT PRIMARY KEY,
    source      TEXT NOT NULL,
    started_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
    load_id     TEXT NOT NULL,
    session     INTEGER NOT NULL,
    number      INTEGER NOT NULL,
    ts          TEXT NOT NULL DEFAULT '',
    thread_id   INTEGER NOT NULL DEFAULT 0,
    thread_name TEXT NOT NULL DEFAULT '',
    level       TEXT NOT NULL DEFAULT '',
    logger      TEXT NOT NULL DEFAULT '',
    method      TEXT NOT NULL DEFAULT '',
    depth       INTEGER NOT NULL DEFAULT 0,
    message     TEXT NOT NULL DEFAULT '',
    entry       INTEGER NOT NULL DEFAULT 0,
    exit        INTEGER NOT NULL DEFAULT 0,
    synthesized INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS records_load_session_number ON records (load_id, session, number);
CREATE INDEX IF NOT EXISTS records_thread ON records (thread_id, ts);
`

// SQLiteSink writes records into a local SQLite database.
type SQLiteSink struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteSink opens (creating if needed) the database at path.
func NewSQLiteSink(path string, logger *zap.Logger) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; WAL lets readers in meanwhile.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger.Info("Opened SQLite sink", zap.String("path", path))
	return &SQLiteSink{db: db, logger: logger}, nil
}

// WriteBatch inserts a batch of records in one transaction.
func (s *SQLiteSink) WriteBatch(ctx context.Context, batch models.RecordBatch) error {
	if len(batch.Records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO loads (load_id, source, started_at) VALUES (?, ?, ?)",
		batch.LoadID, batch.Source, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert load: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records
        (load_id, session, number, ts, thread_id, thread_name, level, logger, method, depth, message, entry, exit, synthesized)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, rec := range batch.Records {
		doc := NewDocument(rec, batch.Source, batch.LoadID, time.Time{})
		if _, err := stmt.ExecContext(ctx,
			doc.LoadID, doc.Session, doc.Number, doc.Time.Format(time.RFC3339Nano),
			doc.ThreadID, doc.ThreadName, doc.Level, doc.Logger, doc.Method, doc.Depth, doc.Message,
			doc.Entry, doc.Exit, doc.Synthesized,
		); err != nil {
			return fmt.Errorf("insert record %d: %w", rec.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("Batch inserted",
		zap.String("load_id", batch.LoadID),
		zap.Int("inserted", len(batch.Records)))
	return nil
}

// Count returns the number of records stored for a load.
func (s *SQLiteSink) Count(ctx context.Context, loadID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE load_id = ?", loadID).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteSink) Close(context.Context) error {
	return s.db.Close()
}
