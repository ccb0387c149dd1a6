package notify

import (
	"database/sql"
	"fmt"
	"time"
)

const timeFormat = "2006-01-02 15:04:05"

// ── Endpoint CRUD ───────────────────────────────────────────────────────

// CreateEndpoint inserts a new notification destination.
func CreateEndpoint(db *sql.DB, ep *Endpoint) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO notification_endpoints (name, url, enabled)
		VALUES (?, ?, ?)`,
		ep.Name, ep.URL, boolInt(ep.Enabled))
	if err != nil {
		return 0, fmt.Errorf("create notification endpoint: %w", err)
	}
	return res.LastInsertId()
}

// GetEndpoint retrieves a notification endpoint by ID.
func GetEndpoint(db *sql.DB, id int64) (*Endpoint, error) {
	row := db.QueryRow(`
		SELECT id, name, url, enabled, created_at
		FROM notification_endpoints WHERE id = ?`, id)

	ep, err := scanEndpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

// ListEndpoints returns all notification endpoints.
func ListEndpoints(db *sql.DB) ([]Endpoint, error) {
	return listEndpoints(db, `
		SELECT id, name, url, enabled, created_at
		FROM notification_endpoints ORDER BY name`)
}

// ListEnabledEndpoints returns only enabled notification endpoints.
func ListEnabledEndpoints(db *sql.DB) ([]Endpoint, error) {
	return listEndpoints(db, `
		SELECT id, name, url, enabled, created_at
		FROM notification_endpoints WHERE enabled = 1 ORDER BY name`)
}

func listEndpoints(db *sql.DB, query string) ([]Endpoint, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list notification endpoints: %w", err)
	}
	defer rows.Close()

	var out []Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// UpdateEndpoint updates a notification endpoint's configuration.
func UpdateEndpoint(db *sql.DB, ep *Endpoint) error {
	res, err := db.Exec(`
		UPDATE notification_endpoints SET name = ?, url = ?, enabled = ?
		WHERE id = ?`,
		ep.Name, ep.URL, boolInt(ep.Enabled), ep.ID)
	if err != nil {
		return fmt.Errorf("update notification endpoint: %w", err)
	}
	return expectOneRow(res, "update notification endpoint")
}

// DeleteEndpoint removes a notification endpoint.
func DeleteEndpoint(db *sql.DB, id int64) error {
	res, err := db.Exec(`DELETE FROM notification_endpoints WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete notification endpoint: %w", err)
	}
	return expectOneRow(res, "delete notification endpoint")
}

// ── Helpers ─────────────────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEndpoint(row scanner) (Endpoint, error) {
	var ep Endpoint
	var enabled int
	var created sql.NullString
	if err := row.Scan(&ep.ID, &ep.Name, &ep.URL, &enabled, &created); err != nil {
		return Endpoint{}, err
	}
	ep.Enabled = enabled == 1
	if created.Valid {
		ep.CreatedAt, _ = time.Parse(timeFormat, created.String)
	}
	return ep, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: no such row", op)
	}
	return nil
}
