// Package postgres implements the store contract over a single JSONB
// documents table, keyed by (collection, id).
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/opsdesk/opsdesk/config"
	"github.com/opsdesk/opsdesk/internal/pkg/apperr"
	"github.com/opsdesk/opsdesk/internal/storage/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	doc        JSONB NOT NULL DEFAULT '{}'::jsonb,
	PRIMARY KEY (collection, id)
)`

type Client struct {
	db *sql.DB

	mu     sync.Mutex
	online bool
}

func NewClient(cfg *config.DatabaseConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("ensure documents table: %w", err)
	}

	return &Client{db: db, online: true}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Collection(name string) (store.Collection, error) {
	if name == "" {
		return nil, apperr.Validation("collection name is empty")
	}
	return &collection{client: c, name: name}, nil
}

// SetConnectivity toggles the logical connection. Disabling drops pooled
// connections so a subsequent enable starts from a fresh link.
func (c *Client) SetConnectivity(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	wasOnline := c.online
	c.online = enabled
	c.mu.Unlock()

	if !enabled && wasOnline {
		c.db.SetMaxIdleConns(0)
		c.db.SetMaxIdleConns(5)
		return nil
	}
	if enabled && !wasOnline {
		if err := c.db.PingContext(ctx); err != nil {
			return classify(err)
		}
	}
	return nil
}

// WaitForPendingWrites verifies the link is up. Writes through database/sql
// are acknowledged synchronously, so there is no local buffer to drain.
func (c *Client) WaitForPendingWrites(ctx context.Context) error {
	if err := c.guard(); err != nil {
		return err
	}
	if err := c.db.PingContext(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) Increment(ctx context.Context, collectionName, id, field string, delta int64) (int64, error) {
	if err := c.guard(); err != nil {
		return 0, err
	}

	query := `
		INSERT INTO documents (collection, id, doc)
		VALUES ($1, $2, jsonb_build_object($3::text, $4::bigint, 'id', $2::text))
		ON CONFLICT (collection, id) DO UPDATE
		SET doc = jsonb_set(documents.doc, ARRAY[$3::text],
			to_jsonb(COALESCE((documents.doc->>$3)::bigint, 0) + $4))
		RETURNING (doc->>$3)::bigint`

	var value int64
	if err := c.db.QueryRowContext(ctx, query, collectionName, id, field, delta).Scan(&value); err != nil {
		return 0, classify(err)
	}
	return value, nil
}

func (c *Client) guard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.online {
		return apperr.Unavailable("store connectivity is disabled")
	}
	return nil
}

type collection struct {
	client *Client
	name   string
}

func (c *collection) Get(ctx context.Context, id string) (store.Document, error) {
	if err := c.client.guard(); err != nil {
		return nil, err
	}

	query := `SELECT doc FROM documents WHERE collection = $1 AND id = $2`
	var raw []byte
	err := c.client.db.QueryRowContext(ctx, query, c.name, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("document %s/%s not found", c.name, id))
	}
	if err != nil {
		return nil, classify(err)
	}
	return decode(raw, id)
}

func (c *collection) List(ctx context.Context) ([]store.Document, error) {
	if err := c.client.guard(); err != nil {
		return nil, err
	}

	query := `SELECT id, doc FROM documents WHERE collection = $1 ORDER BY id`
	rows, err := c.client.db.QueryContext(ctx, query, c.name)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return scanDocs(rows)
}

func (c *collection) QueryByField(ctx context.Context, field string, value any) ([]store.Document, error) {
	if err := c.client.guard(); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("query value for %q is not serializable", field))
	}

	query := `SELECT id, doc FROM documents WHERE collection = $1 AND doc->$2 = $3::jsonb ORDER BY id`
	rows, err := c.client.db.QueryContext(ctx, query, c.name, field, string(encoded))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return scanDocs(rows)
}

func (c *collection) Add(ctx context.Context, doc store.Document) (string, error) {
	id := uuid.NewString()
	if err := c.Set(ctx, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (c *collection) Set(ctx context.Context, id string, doc store.Document) error {
	if err := c.client.guard(); err != nil {
		return err
	}

	stored := make(store.Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}
	stored[store.FieldID] = id

	raw, err := json.Marshal(stored)
	if err != nil {
		return apperr.Validation("document is not serializable")
	}

	query := `
		INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET doc = $3`
	if _, err := c.client.db.ExecContext(ctx, query, c.name, id, raw); err != nil {
		return classify(err)
	}
	return nil
}

func (c *collection) Update(ctx context.Context, id string, partial store.Document) error {
	if err := c.client.guard(); err != nil {
		return err
	}

	merged := make(store.Document, len(partial))
	for k, v := range partial {
		if k == store.FieldID {
			continue
		}
		merged[k] = v
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return apperr.Validation("document is not serializable")
	}

	query := `UPDATE documents SET doc = doc || $3 WHERE collection = $1 AND id = $2`
	result, err := c.client.db.ExecContext(ctx, query, c.name, id, raw)
	if err != nil {
		return classify(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if affected == 0 {
		return apperr.NotFound(fmt.Sprintf("document %s/%s not found", c.name, id))
	}
	return nil
}

func (c *collection) Delete(ctx context.Context, id string) error {
	if err := c.client.guard(); err != nil {
		return err
	}

	query := `DELETE FROM documents WHERE collection = $1 AND id = $2`
	result, err := c.client.db.ExecContext(ctx, query, c.name, id)
	if err != nil {
		return classify(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if affected == 0 {
		return apperr.NotFound(fmt.Sprintf("document %s/%s not found", c.name, id))
	}
	return nil
}

func scanDocs(rows *sql.Rows) ([]store.Document, error) {
	var docs []store.Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, classify(err)
		}
		doc, err := decode(raw, id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return docs, nil
}

func decode(raw []byte, id string) (store.Document, error) {
	doc := make(store.Document)
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperr.Internal("decode stored document", err)
	}
	doc[store.FieldID] = id
	return doc, nil
}

// classify maps driver failures onto the transient/permanent taxonomy so the
// resilient layer can decide whether a reconnect is worth attempting.
func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return apperr.Unavailable("store unreachable")
	}
	return apperr.Internal("store operation failed", err)
}
