package entity

import (
	"time"

	"github.com/opsdesk/opsdesk/internal/storage/store"
)

// Record is one persisted entity of any type. The id is assigned by the
// store at creation and never changes; the sequence number is assigned once
// at creation; UpdatedAt is rewritten on every update.
type Record struct {
	ID             string         `json:"id"`
	SequenceNumber string         `json:"sequence_number"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Fields         map[string]any `json:"fields"`
}

// FromDocument materializes a stored document into a Record, lifting the
// system fields out of the field map and parsing timestamps.
func FromDocument(doc store.Document) *Record {
	rec := &Record{
		Fields: make(map[string]any, len(doc)),
	}
	for k, v := range doc {
		switch k {
		case store.FieldID:
			rec.ID, _ = v.(string)
		case store.FieldSequenceNumber:
			rec.SequenceNumber, _ = v.(string)
		case store.FieldCreatedAt:
			rec.CreatedAt = store.DecodeTime(v)
		case store.FieldUpdatedAt:
			rec.UpdatedAt = store.DecodeTime(v)
		default:
			rec.Fields[k] = v
		}
	}
	return rec
}

// Field returns a declared field value, or nil when absent.
func (r *Record) Field(name string) any {
	return r.Fields[name]
}

// StringField returns a declared field coerced to string ("" when absent or
// not a string).
func (r *Record) StringField(name string) string {
	s, _ := r.Fields[name].(string)
	return s
}
