package domain

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Timestamp is a time column that never fails to scan. Values the driver
// hands back as text are parsed against the layouts SQLite, Postgres and
// MySQL commonly produce; anything unparseable scans as the zero time so a
// single bad row cannot abort a whole listing.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t (normalised to UTC).
func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t.UTC()} }

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Scan implements sql.Scanner.
func (ts *Timestamp) Scan(value any) error {
	ts.Time = time.Time{}
	switch v := value.(type) {
	case nil:
	case time.Time:
		ts.Time = v.UTC()
	case string:
		ts.Time = parseTimestamp(v)
	case []byte:
		ts.Time = parseTimestamp(string(v))
	case int64:
		if v > 0 {
			ts.Time = time.Unix(v, 0).UTC()
		}
	}
	return nil
}

// Value implements driver.Valuer.
func (ts Timestamp) Value() (driver.Value, error) {
	if ts.IsZero() {
		return nil, nil
	}
	return ts.Time.UTC(), nil
}

// GormDBDataType picks the column type per dialect.
func (Timestamp) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "timestamptz"
	case "mysql":
		return "datetime(3)"
	default:
		return "datetime"
	}
}

// MarshalJSON renders the zero value as null.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.Time)
}

// UnmarshalJSON accepts null or an RFC 3339 string.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		ts.Time = time.Time{}
		return nil
	}
	return json.Unmarshal(b, &ts.Time)
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
