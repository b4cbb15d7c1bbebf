package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteLedger persists processed records in a SQLite database.
type SQLiteLedger struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS processed_messages (
	account      TEXT NOT NULL,
	folder       TEXT NOT NULL,
	uid          TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	processed_at TIMESTAMP NOT NULL,
	PRIMARY KEY (account, folder, uid)
)`

// OpenSQLite opens (or creates) the ledger database at path.
func OpenSQLite(path string) (*SQLiteLedger, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	// modernc sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent rule executions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) IsProcessed(ctx context.Context, key Key) (bool, error) {
	var exists bool
	err := l.db.QueryRowxContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM processed_messages WHERE account = ? AND folder = ? AND uid = ?)",
		key.Account, key.Folder, key.UID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query ledger: %w", err)
	}
	return exists, nil
}

func (l *SQLiteLedger) Record(ctx context.Context, key Key, outcome string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO processed_messages (account, folder, uid, outcome, processed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(account, folder, uid) DO UPDATE SET
			outcome = excluded.outcome,
			processed_at = excluded.processed_at`,
		key.Account, key.Folder, key.UID, outcome, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record processed message: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Forget(ctx context.Context, key Key) error {
	res, err := l.db.ExecContext(ctx,
		"DELETE FROM processed_messages WHERE account = ? AND folder = ? AND uid = ?",
		key.Account, key.Folder, key.UID,
	)
	if err != nil {
		return fmt.Errorf("failed to forget processed message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
