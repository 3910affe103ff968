package schemas

import "time"

// Field names every synced record carries regardless of object type.
const (
	FieldID        = "id"
	FieldUpdatedAt = "updatedAt"
	// FieldRowRef anchors a record read from the workbook to its sheet row
	// so not-yet-created rows (empty id) can be written back in place. It
	// is engine-internal and never synced.
	FieldRowRef = "_row"
)

// Record is a loosely-typed CRM record: field name to value. Composite CRM
// values (name, emails, links...) appear as nested maps on the remote side
// and as flattened scalars on the Excel side.
type Record map[string]interface{}

// ID returns the record identifier, or "" when the record has not been
// created remotely yet.
func (r Record) ID() string {
	return stringValue(r[FieldID])
}

func (r Record) SetID(id string) {
	r[FieldID] = id
}

// UpdatedAt parses the record's last-modification timestamp. The zero time
// is returned when the field is absent or unparsable.
func (r Record) UpdatedAt() time.Time {
	return ParseTimestamp(stringValue(r[FieldUpdatedAt]))
}

func (r Record) SetUpdatedAt(t time.Time) {
	r[FieldUpdatedAt] = t.UTC().Format(time.RFC3339)
}

// UpdatedAtString returns the raw updatedAt value as stored.
func (r Record) UpdatedAtString() string {
	return stringValue(r[FieldUpdatedAt])
}

// RowRef returns the workbook row this record was read from, or 0.
func (r Record) RowRef() int {
	row, _ := r[FieldRowRef].(int)
	return row
}

// Clone returns a shallow copy. Records are never shared across sides, so a
// per-field copy is enough.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ParseTimestamp accepts the timestamp formats the CRM and the workbook
// produce (RFC3339 with or without sub-second precision). Returns the zero
// time on failure.
func ParseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

// ObjectType describes one synced CRM object: the REST object name, the
// worksheet it maps to and the ordered field list to sync. "id" and
// "updatedAt" are always synced and are not part of Fields.
type ObjectType struct {
	Name      string   `mapstructure:"name"`
	SheetName string   `mapstructure:"sheetName"`
	Fields    []string `mapstructure:"fields"`
}

// Columns returns the full ordered column list for the object's worksheet.
func (o ObjectType) Columns() []string {
	cols := []string{FieldID, FieldUpdatedAt}
	return append(cols, o.Fields...)
}
