package form

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/opsdesk/internal/core/entity"
	"github.com/opsdesk/opsdesk/internal/pkg/apperr"
)

func itemConfig() *ArrayConfig {
	return &ArrayConfig{
		Fields: []Field{
			{Name: "productId", Kind: KindText, Required: true},
			{Name: "quantity", Kind: KindNumber, Required: true},
		},
		Columns: []Column{
			{Field: "productId", Title: "Product"},
			{Field: "quantity", Title: "Qty"},
		},
		Labels: ArrayLabels{DeleteConfirm: "delete this item?"},
	}
}

func initialRows() []map[string]any {
	return []map[string]any{
		{"productId": "p1", "quantity": 2.0},
		{"productId": "p2", "quantity": 1.0},
	}
}

func TestNewEditorStartsIdleWithInitialRows(t *testing.T) {
	ed := NewArrayEditor(itemConfig(), initialRows(), nil, nil, nil)
	assert.Equal(t, ModeIdle, ed.Mode())
	assert.Equal(t, initialRows(), ed.Rows())
}

func TestRowsAreCopies(t *testing.T) {
	initial := initialRows()
	ed := NewArrayEditor(itemConfig(), initial, nil, nil, nil)

	initial[0]["productId"] = "mutated"
	assert.Equal(t, "p1", ed.Rows()[0]["productId"])

	rows := ed.Rows()
	rows[0]["productId"] = "mutated again"
	assert.Equal(t, "p1", ed.Rows()[0]["productId"])
}

func TestAddRow(t *testing.T) {
	ed := NewArrayEditor(itemConfig(), nil, nil, nil, nil)

	ed.BeginAdd()
	assert.Equal(t, ModeAdding, ed.Mode())

	ed.ApplyRowChange(Change{Field: "productId", Value: "p3"})
	ed.ApplyRowChange(Change{Field: "quantity", Value: 5.0})
	require.NoError(t, ed.SubmitRow())

	assert.Equal(t, ModeIdle, ed.Mode())
	rows := ed.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "p3", rows[0]["productId"])
	assert.Equal(t, 5.0, rows[0]["quantity"])
}

func TestSubmitRowValidatesRowFields(t *testing.T) {
	ed := NewArrayEditor(itemConfig(), nil, nil, nil, nil)

	ed.BeginAdd()
	ed.ApplyRowChange(Change{Field: "quantity", Value: 5.0})

	err := ed.SubmitRow()
	assert.ErrorIs(t, err, apperr.ErrValidation)
	// The failed row form stays open for correction.
	assert.Equal(t, ModeAdding, ed.Mode())
	assert.Empty(t, ed.Rows())
}

func TestAddThenDeleteRestoresOriginalContents(t *testing.T) {
	ed := NewArrayEditor(itemConfig(), initialRows(), nil, nil, nil)

	ed.BeginAdd()
	ed.ApplyRowChange(Change{Field: "productId", Value: "p3"})
	ed.ApplyRowChange(Change{Field: "quantity", Value: 1.0})
	require.NoError(t, ed.SubmitRow())
	require.Len(t, ed.Rows(), 3)

	require.NoError(t, ed.Delete(2))
	assert.Equal(t, initialRows(), ed.Rows())
}

func TestEditReplacesRowInPlace(t *testing.T) {
	ed := NewArrayEditor(itemConfig(), initialRows(), nil, nil, nil)

	require.NoError(t, ed.BeginEdit(1))
	assert.Equal(t, ModeEditing, ed.Mode())
	assert.Equal(t, "p2", ed.RowForm()["productId"])

	ed.ApplyRowChange(Change{Field: "quantity", Value: 9.0})
	require.NoError(t, ed.SubmitRow())

	rows := ed.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, 9.0, rows[1]["quantity"])
	assert.Equal(t, "p1", rows[0]["productId"])
}

func TestBeginEditOutOfRange(t *testing.T) {
	ed := NewArrayEditor(itemConfig(), initialRows(), nil, nil, nil)
	assert.ErrorIs(t, ed.BeginEdit(5), apperr.ErrValidation)
	assert.ErrorIs(t, ed.BeginEdit(-1), apperr.ErrValidation)
}

func TestModesAreMutuallyExclusive(t *testing.T) {
	ed := NewArrayEditor(itemConfig(), initialRows(), nil, nil, nil)

	require.NoError(t, ed.BeginEdit(0))
	ed.ApplyRowChange(Change{Field: "quantity", Value: 9.0})

	// Starting an add abandons the edit in progress.
	ed.BeginAdd()
	assert.Equal(t, ModeAdding, ed.Mode())
	assert.Empty(t, ed.RowForm())

	require.NoError(t, ed.BeginEdit(0))
	assert.Equal(t, ModeEditing, ed.Mode())
	// The abandoned edit never landed.
	assert.Equal(t, 2.0, ed.Rows()[0]["quantity"])
}

func TestCancelDiscardsRowForm(t *testing.T) {
	ed := NewArrayEditor(itemConfig(), initialRows(), nil, nil, nil)

	require.NoError(t, ed.BeginEdit(0))
	ed.ApplyRowChange(Change{Field: "quantity", Value: 9.0})
	ed.Cancel()

	assert.Equal(t, ModeIdle, ed.Mode())
	assert.Nil(t, ed.RowForm())
	assert.Equal(t, 2.0, ed.Rows()[0]["quantity"])
}

func TestAutoReopenKeepsFormOpenAfterAdd(t *testing.T) {
	ed := NewArrayEditor(itemConfig(), nil, nil, nil, nil)
	ed.SetAutoReopen(true)

	ed.BeginAdd()
	ed.ApplyRowChange(Change{Field: "productId", Value: "p1"})
	ed.ApplyRowChange(Change{Field: "quantity", Value: 1.0})
	require.NoError(t, ed.SubmitRow())

	// Still adding, with a fresh empty form.
	assert.Equal(t, ModeAdding, ed.Mode())
	assert.Empty(t, ed.RowForm())

	ed.ApplyRowChange(Change{Field: "productId", Value: "p2"})
	ed.ApplyRowChange(Change{Field: "quantity", Value: 2.0})
	require.NoError(t, ed.SubmitRow())

	assert.Len(t, ed.Rows(), 2)
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	var asked string
	declined := func(message string) bool {
		asked = message
		return false
	}
	ed := NewArrayEditor(itemConfig(), initialRows(), declined, nil, nil)

	require.NoError(t, ed.Delete(0))
	assert.Equal(t, "delete this item?", asked)
	assert.Len(t, ed.Rows(), 2)

	accepted := func(string) bool { return true }
	ed = NewArrayEditor(itemConfig(), initialRows(), accepted, nil, nil)
	require.NoError(t, ed.Delete(0))
	rows := ed.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "p2", rows[0]["productId"])
}

func TestDeleteEditedRowCancelsEdit(t *testing.T) {
	accepted := func(string) bool { return true }
	ed := NewArrayEditor(itemConfig(), initialRows(), accepted, nil, nil)

	require.NoError(t, ed.BeginEdit(1))
	ed.ApplyRowChange(Change{Field: "quantity", Value: 9.0})

	require.NoError(t, ed.Delete(1))
	assert.Equal(t, ModeIdle, ed.Mode())
	assert.Nil(t, ed.RowForm())

	err := ed.SubmitRow()
	assert.ErrorIs(t, err, apperr.ErrValidation)
	rows := ed.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "p1", rows[0]["productId"])
}

func TestDeleteBeforeEditedRowKeepsEditTarget(t *testing.T) {
	accepted := func(string) bool { return true }
	ed := NewArrayEditor(itemConfig(), []map[string]any{
		{"productId": "p1", "quantity": 1.0},
		{"productId": "p2", "quantity": 2.0},
		{"productId": "p3", "quantity": 3.0},
	}, accepted, nil, nil)

	require.NoError(t, ed.BeginEdit(2))
	ed.ApplyRowChange(Change{Field: "quantity", Value: 9.0})

	// Removing an earlier row shifts the remaining rows down; the edit must
	// follow its row.
	require.NoError(t, ed.Delete(0))
	require.NoError(t, ed.SubmitRow())

	rows := ed.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "p2", rows[0]["productId"])
	assert.Equal(t, 2.0, rows[0]["quantity"])
	assert.Equal(t, "p3", rows[1]["productId"])
	assert.Equal(t, 9.0, rows[1]["quantity"])
}

func TestDeleteAfterEditedRowLeavesEditAlone(t *testing.T) {
	accepted := func(string) bool { return true }
	ed := NewArrayEditor(itemConfig(), []map[string]any{
		{"productId": "p1", "quantity": 1.0},
		{"productId": "p2", "quantity": 2.0},
		{"productId": "p3", "quantity": 3.0},
	}, accepted, nil, nil)

	require.NoError(t, ed.BeginEdit(0))
	ed.ApplyRowChange(Change{Field: "quantity", Value: 9.0})

	require.NoError(t, ed.Delete(2))
	assert.Equal(t, ModeEditing, ed.Mode())
	require.NoError(t, ed.SubmitRow())

	rows := ed.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, 9.0, rows[0]["quantity"])
	assert.Equal(t, "p2", rows[1]["productId"])
}

func TestDeleteOutOfRange(t *testing.T) {
	ed := NewArrayEditor(itemConfig(), initialRows(), nil, nil, nil)
	assert.ErrorIs(t, ed.Delete(7), apperr.ErrValidation)
}

func TestRowOptionsFromRelatedSource(t *testing.T) {
	lister := &fakeLister{typeName: "products", records: []*entity.Record{
		namedRecord("p1", "Flour"),
	}}
	cfg := &ArrayConfig{
		Fields: []Field{
			{Name: "productId", Kind: KindSelect, Select: &SelectConfig{
				Source: &RelatedSource{Lister: lister},
			}},
		},
	}
	ed := NewArrayEditor(cfg, nil, nil, nil, nil)
	ed.Load(context.Background())

	options := ed.RowOptions("productId")
	assert.Equal(t, []Option{{Value: "p1", Label: "Flour"}}, options)
}

func TestRenderRowColumnPriority(t *testing.T) {
	lister := &fakeLister{typeName: "products", records: []*entity.Record{
		namedRecord("p1", "Flour"),
	}}
	cfg := &ArrayConfig{
		Fields: []Field{{Name: "productId", Kind: KindText}},
		Columns: []Column{
			{Field: "quantity", Render: func(row map[string]any) string {
				return "x" + coerceString(row["quantity"])
			}},
			{Field: "productId", Source: &RelatedSource{Lister: lister}},
			{Field: "note"},
		},
	}
	ed := NewArrayEditor(cfg, []map[string]any{
		{"productId": "p1", "quantity": 3, "note": "urgent"},
	}, nil, nil, nil)
	ed.Load(context.Background())

	cells := ed.RenderRow(0)
	require.Len(t, cells, 3)
	assert.Equal(t, "x3", cells[0])
	assert.Equal(t, "Flour", cells[1])
	assert.Equal(t, "urgent", cells[2])
}

func TestRenderRowUnknownRelatedValueFallsBack(t *testing.T) {
	lister := &fakeLister{typeName: "products", records: []*entity.Record{
		namedRecord("p1", "Flour"),
	}}
	cfg := &ArrayConfig{
		Fields:  []Field{{Name: "productId", Kind: KindText}},
		Columns: []Column{{Field: "productId", Source: &RelatedSource{Lister: lister}}},
	}
	ed := NewArrayEditor(cfg, []map[string]any{{"productId": "p9"}}, nil, nil, nil)
	ed.Load(context.Background())

	assert.Equal(t, []string{"p9"}, ed.RenderRow(0))
}
