package db

import (
	"database/sql"
	"time"
)

// ─── Time Helpers ────────────────────────────────────────────────────────────

const timeFormat = "2006-01-02 15:04:05"

// ParseNullTime parses a nullable time string from SQLite
func ParseNullTime(ns sql.NullString) time.Time {
	if !ns.Valid || ns.String == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, ns.String)
	return t
}

// TimeString converts a time to string, using current time if zero
func TimeString(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format(timeFormat)
}

// ─── Type Conversion Helpers ─────────────────────────────────────────────────

// BoolToInt converts a bool to int for SQLite storage
func BoolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// IntToBool converts an int to bool from SQLite storage
func IntToBool(i int) bool {
	return i == 1
}

// ─── Query Helpers ───────────────────────────────────────────────────────────

// ExistsQuery checks if a record exists
func ExistsQuery(query string, args ...interface{}) (bool, error) {
	var exists int
	err := DB.QueryRow(query, args...).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
