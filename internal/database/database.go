package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Device is a logical SMS channel bound to one carrier-assigned number.
// Webhook is the routing key the carrier webhook and internal API key on;
// it is unique and immutable after creation.
type Device struct {
	ID          string            `json:"id"`
	Webhook     string            `json:"device_webhook"`
	Name        string            `json:"device_name"`
	Description string            `json:"device_description"`
	Number      string            `json:"device_number"` // carrier-assigned E.164 address
	AccountSID  string            `json:"account_sid"`   // carrier account credential reference
	Status      string            `json:"status"`        // "active" or "disabled"
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Message is one entry in the conversation log. Received entries mutate only
// their processed/reply fields after creation; sent entries are immutable.
type Message struct {
	ID             string     `json:"id"`
	Direction      string     `json:"type"` // "received" or "sent"
	DeviceWebhook  string     `json:"device_webhook"`
	ContactAccount string     `json:"contact_account"`
	Body           string     `json:"message_content"`
	ExternalID     string     `json:"external_id,omitempty"` // carrier message id
	Status         string     `json:"status,omitempty"`      // sent entries: "sent" or "error"
	ErrorDetail    string     `json:"error,omitempty"`       // gateway message for failed sends
	RawData        string     `json:"raw_data,omitempty"`    // opaque audit blob (JSON)
	Processed      bool       `json:"processed"`
	ReplySent      bool       `json:"reply_sent,omitempty"`
	ReplySID       string     `json:"reply_sid,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

const (
	DirectionReceived = "received"
	DirectionSent     = "sent"

	StatusActive   = "active"
	StatusDisabled = "disabled"
)

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id          TEXT PRIMARY KEY,
	webhook     TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	number      TEXT NOT NULL DEFAULT '',
	account_sid TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'active',
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	direction       TEXT NOT NULL,
	device_webhook  TEXT NOT NULL,
	contact_account TEXT NOT NULL,
	body            TEXT NOT NULL DEFAULT '',
	external_id     TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT '',
	error_detail    TEXT NOT NULL DEFAULT '',
	raw_data        TEXT NOT NULL DEFAULT '',
	processed       BOOLEAN NOT NULL DEFAULT 0,
	reply_sent      BOOLEAN NOT NULL DEFAULT 0,
	reply_sid       TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	processed_at    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(device_webhook, contact_account);
CREATE INDEX IF NOT EXISTS idx_messages_created_at   ON messages(created_at);
CREATE INDEX IF NOT EXISTS idx_messages_unprocessed  ON messages(direction, processed);
`

// Open creates or opens the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close shuts down the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
