// Package entity provides the generic service facade every entity type is
// managed through: sequence stamping, timestamp bookkeeping, merge-semantics
// updates, and per-type hook points for domain rules.
package entity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsdesk/opsdesk/internal/core/sequence"
	"github.com/opsdesk/opsdesk/internal/storage/store"
)

// Repository is the resilient CRUD surface the service delegates to.
type Repository interface {
	FindAll(ctx context.Context) ([]store.Document, error)
	FindByID(ctx context.Context, id string) (store.Document, error)
	FindByField(ctx context.Context, field string, value any) ([]store.Document, error)
	Create(ctx context.Context, doc store.Document) (store.Document, error)
	Update(ctx context.Context, id string, partial store.Document) error
	Delete(ctx context.Context, id string) error
}

// Sequencer issues record numbers per entity type.
type Sequencer interface {
	Next(ctx context.Context, typeName string) (string, error)
}

// Hooks are the per-type extension points. All are optional.
type Hooks struct {
	// BeforeCreate runs domain validation (uniqueness checks and the like)
	// against the incoming fields before anything is persisted.
	BeforeCreate func(ctx context.Context, fields map[string]any) error

	// BeforeUpdate validates a partial update against the current record,
	// e.g. a status-transition allow-list.
	BeforeUpdate func(ctx context.Context, current *Record, partial map[string]any) error

	// Derive computes denormalized fields (totals, counts) from the full
	// field set and returns them as a patch. Runs on create and on update.
	Derive func(fields map[string]any) map[string]any
}

// Service composes a resilient repository with the sequence generator.
type Service struct {
	repo     Repository
	seq      Sequencer
	typeName string
	hooks    Hooks
	logger   *zap.Logger
}

func NewService(repo Repository, seq Sequencer, typeName string, hooks Hooks, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		seq:      seq,
		typeName: typeName,
		hooks:    hooks,
		logger:   logger.With(zap.String("entity_type", typeName)),
	}
}

// TypeName returns the entity type this service manages.
func (s *Service) TypeName() string {
	return s.typeName
}

// Create validates, stamps sequence number and timestamps, and persists a
// new record. The sequence-counter type itself gets an opaque unique token
// instead of a generated number, to avoid sequencing the sequencer.
func (s *Service) Create(ctx context.Context, fields map[string]any) (*Record, error) {
	if s.hooks.BeforeCreate != nil {
		if err := s.hooks.BeforeCreate(ctx, fields); err != nil {
			return nil, err
		}
	}

	doc := make(store.Document, len(fields)+3)
	for k, v := range fields {
		doc[k] = v
	}
	if s.hooks.Derive != nil {
		for k, v := range s.hooks.Derive(doc) {
			doc[k] = v
		}
	}

	var seqNumber string
	if s.typeName == sequence.CountersCollection {
		seqNumber = uuid.NewString()
	} else {
		number, err := s.seq.Next(ctx, s.typeName)
		if err != nil {
			return nil, err
		}
		seqNumber = number
	}

	now := time.Now()
	doc[store.FieldSequenceNumber] = seqNumber
	doc[store.FieldCreatedAt] = store.EncodeTime(now)
	doc[store.FieldUpdatedAt] = store.EncodeTime(now)

	created, err := s.repo.Create(ctx, doc)
	if err != nil {
		return nil, err
	}
	record := FromDocument(created)
	s.logger.Info("record created",
		zap.String("id", record.ID),
		zap.String("sequence_number", seqNumber))
	return record, nil
}

// Get returns the identified record.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc), nil
}

// List returns every record of this type.
func (s *Service) List(ctx context.Context) ([]*Record, error) {
	docs, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]*Record, len(docs))
	for i, doc := range docs {
		records[i] = FromDocument(doc)
	}
	return records, nil
}

// FindByField returns the records whose field equals value.
func (s *Service) FindByField(ctx context.Context, field string, value any) ([]*Record, error) {
	docs, err := s.repo.FindByField(ctx, field, value)
	if err != nil {
		return nil, err
	}
	records := make([]*Record, len(docs))
	for i, doc := range docs {
		records[i] = FromDocument(doc)
	}
	return records, nil
}

// Update merges the supplied fields into the record (absent fields are left
// untouched), refreshes UpdatedAt, then re-reads and returns the full
// record. Fails with NOT_FOUND if the record is absent, including when it
// vanished between the write and the re-read.
func (s *Service) Update(ctx context.Context, id string, partial map[string]any) (*Record, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.hooks.BeforeUpdate != nil {
		if err := s.hooks.BeforeUpdate(ctx, current, partial); err != nil {
			return nil, err
		}
	}

	patch := make(store.Document, len(partial)+1)
	for k, v := range partial {
		switch k {
		case store.FieldID, store.FieldSequenceNumber, store.FieldCreatedAt:
			// immutable once assigned
		default:
			patch[k] = v
		}
	}

	if s.hooks.Derive != nil {
		merged := make(map[string]any, len(current.Fields)+len(patch))
		for k, v := range current.Fields {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		for k, v := range s.hooks.Derive(merged) {
			patch[k] = v
		}
	}

	patch[store.FieldUpdatedAt] = store.EncodeTime(time.Now())

	if err := s.repo.Update(ctx, id, patch); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes the record. A second delete of the same id fails with
// NOT_FOUND.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("record deleted", zap.String("id", id))
	return nil
}
