package database

import (
	"time"

	"github.com/google/uuid"
)

const messageColumns = `id, direction, device_webhook, contact_account, body, external_id, status, error_detail, raw_data, processed, reply_sent, reply_sid, created_at, processed_at`

// RecordReceived appends an inbound message to the conversation log and
// returns the assigned event id. Device existence is the caller's concern;
// the log never validates it. Processed is initialized to false.
func (db *DB) RecordReceived(m *Message) (string, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.Direction = DirectionReceived
	m.Processed = false
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.Exec(
		`INSERT INTO messages (id, direction, device_webhook, contact_account, body, external_id, status, raw_data, processed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		m.ID, m.Direction, m.DeviceWebhook, m.ContactAccount, m.Body,
		m.ExternalID, m.Status, m.RawData, m.CreatedAt,
	)
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

// RecordSent appends an outbound message to the conversation log. The entry
// is written unconditionally; the caller chooses status "sent" or "error",
// and a failed carrier send is never rolled back. errDetail carries the
// gateway's message for failed sends and is empty otherwise.
func (db *DB) RecordSent(webhook, contact, body, externalID, status, errDetail string) (string, error) {
	id := uuid.New().String()
	_, err := db.conn.Exec(
		`INSERT INTO messages (id, direction, device_webhook, contact_account, body, external_id, status, error_detail, processed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		id, DirectionSent, webhook, contact, body, externalID, status, errDetail, time.Now().UTC(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Conversation returns the message history between a device and a contact,
// newest first, capped at limit.
func (db *DB) Conversation(webhook, contact string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}
	return db.queryMessages(
		`SELECT `+messageColumns+` FROM messages
		 WHERE device_webhook = ? AND contact_account = ?
		 ORDER BY created_at DESC LIMIT ?`,
		webhook, contact, limit,
	)
}

// MarkProcessed flips an inbound event's processed flag and stamps
// processed_at. It is idempotent: a second call reports false because
// nothing matched, and a malformed id likewise reports false, never an error.
func (db *DB) MarkProcessed(id string) (bool, error) {
	res, err := db.conn.Exec(
		`UPDATE messages SET processed = 1, processed_at = ? WHERE id = ? AND processed = 0`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RecordReplyOutcome stores the auto-reply result against an inbound event.
// A missing event (e.g. raced delete) reports false rather than failing.
func (db *DB) RecordReplyOutcome(id, replySID string) (bool, error) {
	res, err := db.conn.Exec(
		`UPDATE messages SET reply_sent = 1, reply_sid = ? WHERE id = ?`,
		replySID, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Unprocessed returns inbound events that never reached the processed state,
// oldest first so out-of-band replay preserves FIFO order. webhook filters by
// device when non-empty.
func (db *DB) Unprocessed(webhook string) ([]*Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages WHERE direction = ? AND processed = 0`
	args := []interface{}{DirectionReceived}
	if webhook != "" {
		q += ` AND device_webhook = ?`
		args = append(args, webhook)
	}
	q += ` ORDER BY created_at ASC`

	return db.queryMessages(q, args...)
}

func (db *DB) queryMessages(query string, args ...interface{}) ([]*Message, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(
			&m.ID, &m.Direction, &m.DeviceWebhook, &m.ContactAccount, &m.Body,
			&m.ExternalID, &m.Status, &m.ErrorDetail, &m.RawData, &m.Processed,
			&m.ReplySent, &m.ReplySID, &m.CreatedAt, &m.ProcessedAt,
		); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
