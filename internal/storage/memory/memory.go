// Package memory provides an in-process store.Store implementation.
//
// It is used by tests and by the server's "memory" backend for local
// development. Writes are synchronous, so WaitForPendingWrites only checks
// connectivity. Documents are deep-copied on the way in and out.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/opsdesk/opsdesk/internal/pkg/apperr"
	"github.com/opsdesk/opsdesk/internal/storage/store"
)

type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]store.Document
	online      bool
}

func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]store.Document),
		online:      true,
	}
}

func (s *Store) Collection(name string) (store.Collection, error) {
	if name == "" {
		return nil, apperr.Validation("collection name is empty")
	}
	return &collection{store: s, name: name}, nil
}

func (s *Store) SetConnectivity(_ context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = enabled
	return nil
}

func (s *Store) WaitForPendingWrites(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.online {
		return apperr.Unavailable("store is offline")
	}
	return nil
}

func (s *Store) Increment(_ context.Context, collectionName, id, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.online {
		return 0, apperr.Unavailable("store is offline")
	}

	docs := s.collections[collectionName]
	if docs == nil {
		docs = make(map[string]store.Document)
		s.collections[collectionName] = docs
	}

	doc := docs[id]
	if doc == nil {
		doc = store.Document{store.FieldID: id}
		docs[id] = doc
	}

	current := toInt64(doc[field])
	next := current + delta
	doc[field] = next
	return next, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

type collection struct {
	store *Store
	name  string
}

func (c *collection) guard() (map[string]store.Document, error) {
	if !c.store.online {
		return nil, apperr.Unavailable("store is offline")
	}
	docs := c.store.collections[c.name]
	if docs == nil {
		docs = make(map[string]store.Document)
		c.store.collections[c.name] = docs
	}
	return docs, nil
}

func (c *collection) Get(_ context.Context, id string) (store.Document, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	docs, err := c.guard()
	if err != nil {
		return nil, err
	}
	doc, ok := docs[id]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("document %s/%s not found", c.name, id))
	}
	return copyDoc(doc), nil
}

func (c *collection) List(_ context.Context) ([]store.Document, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	docs, err := c.guard()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]store.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyDoc(docs[id]))
	}
	return out, nil
}

func (c *collection) QueryByField(_ context.Context, field string, value any) ([]store.Document, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	docs, err := c.guard()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for id, doc := range docs {
		if fmt.Sprint(doc[field]) == fmt.Sprint(value) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]store.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyDoc(docs[id]))
	}
	return out, nil
}

func (c *collection) Add(_ context.Context, doc store.Document) (string, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	docs, err := c.guard()
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	stored := copyDoc(doc)
	stored[store.FieldID] = id
	docs[id] = stored
	return id, nil
}

func (c *collection) Set(_ context.Context, id string, doc store.Document) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	docs, err := c.guard()
	if err != nil {
		return err
	}

	stored := copyDoc(doc)
	stored[store.FieldID] = id
	docs[id] = stored
	return nil
}

func (c *collection) Update(_ context.Context, id string, partial store.Document) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	docs, err := c.guard()
	if err != nil {
		return err
	}

	doc, ok := docs[id]
	if !ok {
		return apperr.NotFound(fmt.Sprintf("document %s/%s not found", c.name, id))
	}
	for k, v := range copyDoc(partial) {
		if k == store.FieldID {
			continue
		}
		doc[k] = v
	}
	return nil
}

func (c *collection) Delete(_ context.Context, id string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	docs, err := c.guard()
	if err != nil {
		return err
	}
	if _, ok := docs[id]; !ok {
		return apperr.NotFound(fmt.Sprintf("document %s/%s not found", c.name, id))
	}
	delete(docs, id)
	return nil
}

func copyDoc(doc store.Document) store.Document {
	out := make(store.Document, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case store.Document:
			out[k] = copyDoc(val)
		case []map[string]any:
			rows := make([]map[string]any, len(val))
			for i, row := range val {
				rows[i] = copyDoc(row)
			}
			out[k] = rows
		case []any:
			items := make([]any, len(val))
			for i, item := range val {
				if row, ok := item.(map[string]any); ok {
					items[i] = copyDoc(row)
				} else {
					items[i] = item
				}
			}
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}
