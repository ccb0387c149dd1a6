package db

import (
	"database/sql"
	"fmt"
)

// History and model blobs are opaque JSON documents keyed by device id.
// The in-memory layers marshal and interpret them; this file only moves
// bytes in and out of SQLite.

// SaveHistoryBlob upserts a device's history document
func SaveHistoryBlob(deviceID string, blob []byte) error {
	_, err := DB.Exec(`
		INSERT INTO history_blobs (device_id, data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(device_id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		deviceID, string(blob),
	)
	if err != nil {
		return fmt.Errorf("failed to save history for %s: %w", deviceID, err)
	}
	return nil
}

// LoadHistoryBlob fetches a device's history document, nil if none exists
func LoadHistoryBlob(deviceID string) ([]byte, error) {
	var data string
	err := DB.QueryRow("SELECT data FROM history_blobs WHERE device_id = ?", deviceID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// DeleteHistoryBlob removes a device's history document
func DeleteHistoryBlob(deviceID string) error {
	_, err := DB.Exec("DELETE FROM history_blobs WHERE device_id = ?", deviceID)
	return err
}

// ListHistoryBlobs returns the device ids that have a persisted history
func ListHistoryBlobs() ([]string, error) {
	rows, err := DB.Query("SELECT device_id FROM history_blobs ORDER BY device_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveModelState upserts a device's trained-model document
func SaveModelState(deviceID string, blob []byte) error {
	_, err := DB.Exec(`
		INSERT INTO model_state (device_id, data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(device_id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		deviceID, string(blob),
	)
	if err != nil {
		return fmt.Errorf("failed to save model state for %s: %w", deviceID, err)
	}
	return nil
}

// LoadModelState fetches a device's trained-model document, nil if none exists
func LoadModelState(deviceID string) ([]byte, error) {
	var data string
	err := DB.QueryRow("SELECT data FROM model_state WHERE device_id = ?", deviceID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// DeleteModelState removes a device's trained-model document
func DeleteModelState(deviceID string) error {
	_, err := DB.Exec("DELETE FROM model_state WHERE device_id = ?", deviceID)
	return err
}
