package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Device is a registered battery device. Config holds the JSON-encoded
// per-device settings; the registry does not interpret it.
type Device struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Config    []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateDevice inserts a device registration
func CreateDevice(id, name string, config []byte) error {
	_, err := DB.Exec(
		"INSERT INTO devices (id, name, config) VALUES (?, ?, ?)",
		id, name, string(config),
	)
	if err != nil {
		return fmt.Errorf("failed to create device %s: %w", id, err)
	}
	return nil
}

// UpdateDeviceConfig replaces a device's stored configuration
func UpdateDeviceConfig(id, name string, config []byte) error {
	result, err := DB.Exec(
		"UPDATE devices SET name = ?, config = ? WHERE id = ?",
		name, string(config), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update device %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("device %s not found", id)
	}
	return nil
}

// DeleteDevice removes a device registration along with its history and
// model blobs
func DeleteDevice(id string) error {
	tx, err := DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM devices WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete device %s: %w", id, err)
	}
	if _, err := tx.Exec("DELETE FROM history_blobs WHERE device_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM model_state WHERE device_id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// GetDevice fetches a single device registration
func GetDevice(id string) (*Device, error) {
	var d Device
	var config string
	var created sql.NullString
	err := DB.QueryRow(
		"SELECT id, name, config, created_at FROM devices WHERE id = ?", id,
	).Scan(&d.ID, &d.Name, &config, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.Config = []byte(config)
	d.CreatedAt = ParseNullTime(created)
	return &d, nil
}

// ListDevices returns all device registrations ordered by creation time
func ListDevices() ([]Device, error) {
	rows, err := DB.Query("SELECT id, name, config, created_at FROM devices ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		var config string
		var created sql.NullString
		if err := rows.Scan(&d.ID, &d.Name, &config, &created); err != nil {
			return nil, err
		}
		d.Config = []byte(config)
		d.CreatedAt = ParseNullTime(created)
		devices = append(devices, d)
	}
	return devices, rows.Err()
}
