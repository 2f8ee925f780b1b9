package supplier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/opsdesk/internal/core/sequence"
	"github.com/opsdesk/opsdesk/internal/pkg/apperr"
	"github.com/opsdesk/opsdesk/internal/storage/memory"
	"github.com/opsdesk/opsdesk/internal/storage/resilient"
)

type alwaysReady struct{}

func (alwaysReady) Ready() bool          { return true }
func (alwaysReady) OnChange(func(bool)) {}

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := memory.NewStore()
	repo := resilient.New(s, alwaysReady{}, TypeName, resilient.Options{
		MaxAttempts:   2,
		BaseDelay:     time.Millisecond,
		AuthAttempts:  1,
		AuthPollDelay: time.Millisecond,
	}, nil)
	return NewService(repo, sequence.NewGenerator(s, nil), nil)
}

func TestCreateSupplier(t *testing.T) {
	svc := newTestService(t)

	rec, err := svc.Create(context.Background(), map[string]any{
		FieldCommercialName: "Acme",
		FieldRUT:            "123456789",
		FieldPhone:          "555-0100",
	})
	require.NoError(t, err)
	assert.Equal(t, "00001", rec.SequenceNumber)
	assert.Equal(t, "Acme", rec.StringField(FieldCommercialName))
	assert.Equal(t, "123456789", rec.StringField(FieldRUT))
}

func TestCreateRequiresCommercialName(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Create(context.Background(), map[string]any{
		FieldRUT: "123456789",
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateRequiresRUT(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Create(context.Background(), map[string]any{
		FieldCommercialName: "Acme",
		FieldRUT:            "   ",
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateRejectsDuplicateRUT(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, map[string]any{
		FieldCommercialName: "Acme",
		FieldRUT:            "123456789",
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, map[string]any{
		FieldCommercialName: "Other",
		FieldRUT:            "123456789",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	records, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
