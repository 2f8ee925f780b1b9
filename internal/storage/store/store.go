// Package store defines the contract for the remote document store the rest
// of the application is built on. Implementations live in sibling packages;
// callers treat the store as an opaque key-value/document collaborator.
package store

import (
	"context"
	"time"
)

// System field names present on persisted documents.
const (
	FieldID             = "id"
	FieldSequenceNumber = "sequenceNumber"
	FieldCreatedAt      = "createdAt"
	FieldUpdatedAt      = "updatedAt"
	FieldLastNumber     = "lastNumber"
)

// Document is one stored record. Timestamps are persisted as ISO-8601
// strings; DecodeTime materializes them back to time.Time on read.
type Document = map[string]any

// Store is the remote document store client.
type Store interface {
	// Collection returns a handle to a named collection. Handles are created
	// lazily and may go stale across a reconnect; callers re-acquire after a
	// connectivity reset.
	Collection(name string) (Collection, error)

	// Increment atomically adds delta to a numeric field of the identified
	// document, creating the document (with the field starting at zero) when
	// absent, and returns the resulting value.
	Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error)

	// SetConnectivity turns the network connection on or off. Enabling an
	// already-enabled connection is a no-op.
	SetConnectivity(ctx context.Context, enabled bool) error

	// WaitForPendingWrites blocks until every locally buffered write has been
	// acknowledged as durable by the store.
	WaitForPendingWrites(ctx context.Context) error
}

// Collection exposes document CRUD and equality queries for one collection.
type Collection interface {
	// Get returns the document with the given id, or a NOT_FOUND error.
	Get(ctx context.Context, id string) (Document, error)

	// List returns every document in the collection, ordered by id.
	List(ctx context.Context) ([]Document, error)

	// QueryByField returns documents whose field equals value, ordered by id.
	QueryByField(ctx context.Context, field string, value any) ([]Document, error)

	// Add stores a new document under a store-assigned id and returns it.
	Add(ctx context.Context, doc Document) (string, error)

	// Set stores doc under id, replacing any existing document.
	Set(ctx context.Context, id string, doc Document) error

	// Update merges partial into the existing document; NOT_FOUND if absent.
	Update(ctx context.Context, id string, partial Document) error

	// Delete removes the document. Deleting an absent id is a NOT_FOUND error.
	Delete(ctx context.Context, id string) error
}

// EncodeTime converts a timestamp to its persisted ISO-8601 form.
func EncodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// DecodeTime parses a persisted timestamp. Returns the zero time when the
// value is absent or not a recognizable timestamp.
func DecodeTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
