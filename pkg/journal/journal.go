package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"AutoFlip/pkg/logging"
	"AutoFlip/pkg/types"
)

// ========================================
// Journal - SQLite 焦点/触发器历史
// ========================================

// Entry kinds
const (
	KindFocus      = "focus"
	KindActivity   = "activity"
	KindActivate   = "activate"
	KindDeactivate = "deactivate"
)

// MemoryPath opens a private in-memory journal
const MemoryPath = ":memory:"

const schemaSQL = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA temp_store = MEMORY;

CREATE TABLE IF NOT EXISTS history (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    subject TEXT NOT NULL,
    from_value TEXT,
    to_value TEXT,
    timestamp INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_time ON history(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_history_kind ON history(kind, timestamp DESC);
`

// Journal stores focus transitions and trigger activation changes
type Journal struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time

	stmtInsert *sql.Stmt
}

// Open opens (creating if needed) the journal at path. MemoryPath keeps it in memory.
func Open(path string) (*Journal, error) {
	dsn := MemoryPath
	if path != MemoryPath && path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// SQLite 单写入; 内存库也必须只用一个连接
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	j := &Journal{db: db, dbPath: path, now: time.Now}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	j.stmtInsert, err = db.Prepare(`
		INSERT INTO history (id, kind, subject, from_value, to_value, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert history: %w", err)
	}
	return j, nil
}

func (j *Journal) Close() error {
	if j.stmtInsert != nil {
		j.stmtInsert.Close()
	}
	return j.db.Close()
}

// Append writes one entry, filling in ID and Timestamp when empty
func (j *Journal) Append(e types.HistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp == 0 {
		e.Timestamp = j.now().UnixMilli()
	}
	_, err := j.stmtInsert.Exec(e.ID, e.Kind, e.Subject, nullString(e.From), nullString(e.To), e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert history %s: %w", e.Kind, err)
	}
	return nil
}

func (j *Journal) record(e types.HistoryEntry) {
	if err := j.Append(e); err != nil {
		logging.LogWarn("journal").Err(err).Msg("Failed to record history")
	}
}

// RecordFocus records a foreground app change
func (j *Journal) RecordFocus(from, to string) {
	j.record(types.HistoryEntry{Kind: KindFocus, Subject: to, From: from, To: to})
}

// RecordActivity records a foreground activity change within appID
func (j *Journal) RecordActivity(appID, from, to string) {
	j.record(types.HistoryEntry{Kind: KindActivity, Subject: appID, From: from, To: to})
}

// RecordActivation records a trigger activation change; shaped as a registry observer
func (j *Journal) RecordActivation(tag, appID string, active bool) {
	kind := KindDeactivate
	if active {
		kind = KindActivate
	}
	j.record(types.HistoryEntry{Kind: kind, Subject: tag, To: appID})
}

// Recent returns up to limit entries, newest first. kind filters when non-empty.
func (j *Journal) Recent(kind string, limit int) ([]types.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, kind, subject, from_value, to_value, timestamp FROM history`
	args := []interface{}{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY timestamp DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []types.HistoryEntry
	for rows.Next() {
		var e types.HistoryEntry
		var from, to sql.NullString
		if err := rows.Scan(&e.ID, &e.Kind, &e.Subject, &from, &to, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.From = from.String
		e.To = to.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of stored entries
func (j *Journal) Count() (int, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM history`).Scan(&n)
	return n, err
}

// Cleanup deletes entries older than maxAge
func (j *Journal) Cleanup(maxAge time.Duration) (int, error) {
	cutoff := j.now().Add(-maxAge).UnixMilli()
	result, err := j.db.Exec(`DELETE FROM history WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
