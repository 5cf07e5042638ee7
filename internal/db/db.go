package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Event type constants: process events
const (
	EventProcessStarted = "process.started"
	EventProcessStopped = "process.stopped"
	EventCircuitOpened  = "circuit.opened"
	EventCircuitClosed  = "circuit.closed"
)

// Event type constants: request events
const (
	EventReplyStarted   = "reply.started"
	EventReplyCompleted = "reply.completed"
	EventReplyFailed    = "reply.failed"
	EventSessionStarted = "session.started"
	EventSessionEnded   = "session.ended"
	EventImageGenerated = "image.generated"
	EventImageFailed    = "image.failed"
	EventImageDeleted   = "image.deleted"
)

// Inbox statuses.
const (
	InboxQueued = "queued"
	InboxDone   = "done"
	InboxFailed = "failed"
)

// OpenDB opens (or creates) a SQLite database at the given path, ensuring
// that the parent directory exists.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	return db, nil
}

// InitSchema creates all tables: events, inbox, images. Existing rows are kept.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			timestamp INTEGER NOT NULL DEFAULT (unixepoch()),
			parent_id INTEGER,
			event_type TEXT NOT NULL,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_parent_id ON events(parent_id);

		CREATE TABLE IF NOT EXISTS inbox (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			update_id INTEGER NOT NULL UNIQUE,
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			message_date INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'queued',
			error TEXT,
			created_at INTEGER NOT NULL DEFAULT (unixepoch()),
			updated_at INTEGER NOT NULL DEFAULT (unixepoch())
		);
		CREATE INDEX IF NOT EXISTS idx_inbox_status_id ON inbox(status, id);

		CREATE TABLE IF NOT EXISTS images (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			prompt TEXT NOT NULL,
			filename TEXT NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (unixepoch())
		);
	`)
	return err
}

// DeriveOffset returns the next Telegram polling offset derived from the inbox table.
// Returns 0 if inbox is empty.
func DeriveOffset(database *sql.DB) (int64, error) {
	var offset int64
	err := database.QueryRow(`SELECT COALESCE(MAX(update_id) + 1, 0) FROM inbox`).Scan(&offset)
	return offset, err
}

// InboxEntry is one received update as recorded in the inbox.
type InboxEntry struct {
	UpdateID    int64
	ChatID      int64
	UserID      int64
	Text        string
	MessageDate int64
}

// RecordInbox stores a received update as queued. Redelivered updates are ignored.
func RecordInbox(database *sql.DB, e InboxEntry) error {
	_, err := database.Exec(
		`INSERT OR IGNORE INTO inbox (update_id, chat_id, user_id, text, message_date) VALUES (?, ?, ?, ?, ?)`,
		e.UpdateID, e.ChatID, e.UserID, e.Text, e.MessageDate,
	)
	if err != nil {
		return fmt.Errorf("insert inbox update %d: %w", e.UpdateID, err)
	}
	return nil
}

// MarkInbox sets the terminal status of an update. errText is stored only when non-empty.
func MarkInbox(database *sql.DB, updateID int64, status, errText string) error {
	var errVal any
	if errText != "" {
		errVal = errText
	}
	_, err := database.Exec(
		`UPDATE inbox SET status = ?, error = ?, updated_at = unixepoch() WHERE update_id = ?`,
		status, errVal, updateID,
	)
	if err != nil {
		return fmt.Errorf("mark inbox update %d: %w", updateID, err)
	}
	return nil
}

// LogEvent inserts an event into the events table and returns its auto-generated id.
// parentID may be nil for root events. payload is serialized to JSON; nil payload stores NULL.
func LogEvent(db *sql.DB, parentID *int64, eventType string, payload map[string]any) (int64, error) {
	var payloadJSON any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal event payload: %w", err)
		}
		payloadJSON = string(data)
	}

	res, err := db.Exec(
		`INSERT INTO events (parent_id, event_type, payload) VALUES (?, ?, ?)`,
		parentID, eventType, payloadJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event %s: %w", eventType, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get event id: %w", err)
	}
	return id, nil
}
