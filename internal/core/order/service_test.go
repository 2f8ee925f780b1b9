package order

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

func someItems() []any {
	return []any{
		map[string]any{ItemProductID: "p1", ItemQuantity: 2, ItemUnitPrice: 10.5},
		map[string]any{ItemProductID: "p2", ItemQuantity: 1, ItemUnitPrice: 4.0},
	}
}

func TestCreateDefaultsStatusToPending(t *testing.T) {
	svc := newTestService(t)

	rec, err := svc.Create(context.Background(), map[string]any{
		FieldCustomerID: "c1",
		FieldItems:      someItems(),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.StringField(FieldStatus))
}

func TestCreateRejectsUnknownStatus(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Create(context.Background(), map[string]any{
		FieldStatus: "shipped",
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateDerivesTotals(t *testing.T) {
	svc := newTestService(t)

	rec, err := svc.Create(context.Background(), map[string]any{
		FieldCustomerID: "c1",
		FieldItems:      someItems(),
	})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, rec.Field(FieldItemCount), 0.001)
	assert.InDelta(t, 25.0, rec.Field(FieldTotal), 0.001)
}

func TestDeriveTotalsKeepsFractionalQuantities(t *testing.T) {
	svc := newTestService(t)

	rec, err := svc.Create(context.Background(), map[string]any{
		FieldItems: []any{
			map[string]any{ItemProductID: "p1", ItemQuantity: 1.5, ItemUnitPrice: 2.0},
			map[string]any{ItemProductID: "p2", ItemQuantity: 0.25, ItemUnitPrice: 8.0},
		},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.75, rec.Field(FieldItemCount), 0.001)
	assert.InDelta(t, 5.0, rec.Field(FieldTotal), 0.001)
}

func TestUpdateRecomputesTotals(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, map[string]any{FieldItems: someItems()})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, rec.ID, map[string]any{
		FieldItems: []any{
			map[string]any{ItemProductID: "p1", ItemQuantity: 1, ItemUnitPrice: 2.0},
		},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, updated.Field(FieldItemCount), 0.001)
	assert.InDelta(t, 2.0, updated.Field(FieldTotal), 0.001)
}

func TestStatusTransitionAllowList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, map[string]any{FieldItems: someItems()})
	require.NoError(t, err)

	// pending -> delivered skips confirmation.
	_, err = svc.Update(ctx, rec.ID, map[string]any{FieldStatus: StatusDelivered})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	updated, err := svc.Update(ctx, rec.ID, map[string]any{FieldStatus: StatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.StringField(FieldStatus))

	updated, err = svc.Update(ctx, rec.ID, map[string]any{FieldStatus: StatusDelivered})
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, updated.StringField(FieldStatus))

	// Delivered orders are terminal.
	_, err = svc.Update(ctx, rec.ID, map[string]any{FieldStatus: StatusCancelled})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUpdateWithoutStatusChangeIsAllowed(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, map[string]any{FieldItems: someItems()})
	require.NoError(t, err)

	_, err = svc.Update(ctx, rec.ID, map[string]any{FieldDeliveryDate: "2026-09-01"})
	assert.NoError(t, err)

	// Re-sending the current status is a no-op, not a transition.
	_, err = svc.Update(ctx, rec.ID, map[string]any{FieldStatus: StatusPending})
	assert.NoError(t, err)
}

func TestItemsCoercion(t *testing.T) {
	rows := Items([]any{map[string]any{"quantity": 1}, "garbage"})
	require.Len(t, rows, 1)

	direct := Items([]map[string]any{{"quantity": 2}})
	require.Len(t, direct, 1)

	assert.Nil(t, Items(nil))
	assert.Nil(t, Items("not a list"))
}
