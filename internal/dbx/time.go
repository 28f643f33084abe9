package dbx

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is how timestamps are stored in SQLite TEXT columns. The
// fractional part is fixed-width so strings sort chronologically in UTC,
// which the pull queries rely on for updated_at ordering. RFC3339Nano would
// trim trailing zeros and break that ordering for whole-second values.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t for storage in a TEXT column.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime reads a timestamp written by FormatTime.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// ParseNullTime reads an optional timestamp column into a *time.Time.
func ParseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := ParseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FormatNullTime renders an optional timestamp for storage.
func FormatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}
