package auth

import (
	"context"
	"errors"
	"time"

	"github.com/opsdesk/opsdesk/internal/pkg/apperr"
	"github.com/opsdesk/opsdesk/internal/storage/store"
)

const usersCollection = "users"

// Repository persists users in the document store. It talks to the store
// directly rather than through the resilient layer: authentication has to
// work before the authentication gate can pass.
type Repository struct {
	store store.Store
}

func NewRepository(s store.Store) *Repository {
	return &Repository{store: s}
}

func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	col, err := r.store.Collection(usersCollection)
	if err != nil {
		return err
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	doc := store.Document{
		"email":              user.Email,
		"passwordHash":       user.PasswordHash,
		"name":               user.Name,
		"status":             user.Status,
		store.FieldCreatedAt: store.EncodeTime(user.CreatedAt),
	}
	id, err := col.Add(ctx, doc)
	if err != nil {
		return err
	}
	user.ID = id
	return nil
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (*User, error) {
	col, err := r.store.Collection(usersCollection)
	if err != nil {
		return nil, err
	}

	doc, err := col.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeUser(doc), nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	col, err := r.store.Collection(usersCollection)
	if err != nil {
		return nil, err
	}

	docs, err := col.QueryByField(ctx, "email", email)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return decodeUser(docs[0]), nil
}

func decodeUser(doc store.Document) *User {
	return &User{
		ID:           asString(doc[store.FieldID]),
		Email:        asString(doc["email"]),
		PasswordHash: asString(doc["passwordHash"]),
		Name:         asString(doc["name"]),
		Status:       asString(doc["status"]),
		CreatedAt:    store.DecodeTime(doc[store.FieldCreatedAt]),
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
