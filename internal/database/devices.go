package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateWebhook is returned when a device is created with a webhook
// that already belongs to another device.
var ErrDuplicateWebhook = errors.New("device webhook already exists")

const deviceColumns = `id, webhook, name, description, number, account_sid, status, metadata, created_at, updated_at`

// CreateDevice inserts a new device and returns its webhook (routing key).
// When d.Webhook is empty a fresh UUID is assigned; when it is supplied and
// already taken, ErrDuplicateWebhook is returned.
func (db *DB) CreateDevice(d *Device) (string, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Webhook == "" {
		d.Webhook = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = StatusActive
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	meta, err := json.Marshal(d.Metadata)
	if err != nil {
		return "", err
	}
	if d.Metadata == nil {
		meta = []byte("{}")
	}

	_, err = db.conn.Exec(
		`INSERT INTO devices (id, webhook, name, description, number, account_sid, status, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Webhook, d.Name, d.Description, d.Number, d.AccountSID, d.Status, string(meta),
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", ErrDuplicateWebhook
		}
		return "", err
	}
	return d.Webhook, nil
}

// DeviceByWebhook looks up a device by its routing key. Returns (nil, nil)
// when no device exists for the key.
func (db *DB) DeviceByWebhook(webhook string) (*Device, error) {
	return scanDevice(db.conn.QueryRow(
		`SELECT `+deviceColumns+` FROM devices WHERE webhook = ?`, webhook,
	))
}

// DeviceByID looks up a device by its internal id. A malformed or unknown id
// is simply not found, never an error.
func (db *DB) DeviceByID(id string) (*Device, error) {
	return scanDevice(db.conn.QueryRow(
		`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id,
	))
}

// UpdateDevice applies the non-nil fields to the device with the given
// webhook and reports whether a record was modified. The webhook itself is
// immutable and cannot be changed here.
func (db *DB) UpdateDevice(webhook string, fields DeviceUpdate) (bool, error) {
	set := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	if fields.Name != nil {
		set = append(set, "name = ?")
		args = append(args, *fields.Name)
	}
	if fields.Description != nil {
		set = append(set, "description = ?")
		args = append(args, *fields.Description)
	}
	if fields.Number != nil {
		set = append(set, "number = ?")
		args = append(args, *fields.Number)
	}
	if fields.Status != nil {
		set = append(set, "status = ?")
		args = append(args, *fields.Status)
	}
	if fields.Metadata != nil {
		meta, err := json.Marshal(fields.Metadata)
		if err != nil {
			return false, err
		}
		set = append(set, "metadata = ?")
		args = append(args, string(meta))
	}

	args = append(args, webhook)
	res, err := db.conn.Exec(`UPDATE devices SET `+strings.Join(set, ", ")+` WHERE webhook = ?`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeviceUpdate holds the mutable device fields; nil means "leave unchanged".
type DeviceUpdate struct {
	Name        *string
	Description *string
	Number      *string
	Status      *string
	Metadata    map[string]string
}

// DeleteDevice removes a device by webhook and reports whether a record was
// deleted. Conversation log entries referencing the device are kept.
func (db *DB) DeleteDevice(webhook string) (bool, error) {
	res, err := db.conn.Exec(`DELETE FROM devices WHERE webhook = ?`, webhook)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListDevices returns devices ordered by creation time with pagination.
func (db *DB) ListDevices(limit, offset int) ([]*Device, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.Query(
		`SELECT `+deviceColumns+` FROM devices ORDER BY created_at LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func scanDevice(row interface{ Scan(...interface{}) error }) (*Device, error) {
	d := &Device{}
	var meta string
	err := row.Scan(
		&d.ID, &d.Webhook, &d.Name, &d.Description, &d.Number,
		&d.AccountSID, &d.Status, &meta, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
			d.Metadata = nil
		}
	}
	return d, nil
}
