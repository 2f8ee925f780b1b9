package form

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/opsdesk/opsdesk/internal/pkg/apperr"
	"github.com/opsdesk/opsdesk/internal/pkg/worker"
)

// ArrayMode is the array editor's state. Adding and editing are mutually
// exclusive; entering one cancels the other.
type ArrayMode string

const (
	ModeIdle    ArrayMode = "idle"
	ModeAdding  ArrayMode = "adding"
	ModeEditing ArrayMode = "editing"
)

// ConfirmFunc asks the user to confirm a destructive action.
type ConfirmFunc func(message string) bool

// ArrayEditor is the nested CRUD engine for one array-of-records value:
// order line items, unit conversions, and the like. Each row is described by
// the config's field list.
type ArrayEditor struct {
	cfg     *ArrayConfig
	confirm ConfirmFunc
	pool    *worker.Pool
	logger  *zap.Logger

	mu         sync.Mutex
	mode       ArrayMode
	editIndex  int
	rowForm    State
	rows       []map[string]any
	autoReopen bool
	related    *relatedData
}

// NewArrayEditor creates an editor over the initial rows. The confirm
// callback gates row deletion, the only destructive action gated by default.
func NewArrayEditor(cfg *ArrayConfig, initial []map[string]any, confirm ConfirmFunc, pool *worker.Pool, logger *zap.Logger) *ArrayEditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	rows := make([]map[string]any, len(initial))
	for i, row := range initial {
		rows[i] = cloneRow(row)
	}
	return &ArrayEditor{
		cfg:     cfg,
		confirm: confirm,
		pool:    pool,
		logger:  logger,
		mode:    ModeIdle,
		rows:    rows,
	}
}

// Load fetches related data for the row fields and display columns. It runs
// once per editor mount; all rows share the result.
func (a *ArrayEditor) Load(ctx context.Context) {
	sources := relatedSources(a.cfg.Fields)
	for i := range a.cfg.Columns {
		if src := a.cfg.Columns[i].Source; src != nil {
			sources = appendSource(sources, src)
		}
	}
	related := loadRelated(ctx, a.pool, a.logger, sources)

	a.mu.Lock()
	a.related = related
	a.mu.Unlock()
}

func appendSource(sources []*RelatedSource, src *RelatedSource) []*RelatedSource {
	for _, existing := range sources {
		if existing.name() == src.name() {
			return sources
		}
	}
	return append(sources, src)
}

// Mode returns the editor's current state.
func (a *ArrayEditor) Mode() ArrayMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// Rows returns a copy of the current array contents.
func (a *ArrayEditor) Rows() []map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]map[string]any, len(a.rows))
	for i, row := range a.rows {
		out[i] = cloneRow(row)
	}
	return out
}

// SetAutoReopen toggles rapid multi-entry: after an add the row form resets
// and stays open instead of returning to idle.
func (a *ArrayEditor) SetAutoReopen(enabled bool) {
	a.mu.Lock()
	a.autoReopen = enabled
	a.mu.Unlock()
}

// BeginAdd opens an empty row form, cancelling any edit in progress.
func (a *ArrayEditor) BeginAdd() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mode = ModeAdding
	a.editIndex = -1
	a.rowForm = make(State)
}

// BeginEdit opens the row form pre-populated with the indexed row,
// cancelling any add in progress.
func (a *ArrayEditor) BeginEdit(index int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if index < 0 || index >= len(a.rows) {
		return apperr.Validation(fmt.Sprintf("row %d does not exist", index))
	}
	a.mode = ModeEditing
	a.editIndex = index
	a.rowForm = State(cloneRow(a.rows[index]))
	return nil
}

// Cancel discards the open row form without mutating the array.
func (a *ArrayEditor) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mode = ModeIdle
	a.rowForm = nil
}

// RowForm returns a copy of the open row form's state.
func (a *ArrayEditor) RowForm() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rowForm == nil {
		return nil
	}
	return a.rowForm.Clone()
}

// ApplyRowChange writes a field edit into the open row form and merges any
// change-rule patch, exactly like the top-level form.
func (a *ArrayEditor) ApplyRowChange(change Change) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rowForm == nil {
		return nil
	}

	field := a.rowField(change.Field)
	if field == nil || field.ReadOnly {
		return a.rowForm.Clone()
	}

	next := a.rowForm.Clone()
	next[change.Field] = change.Value
	if field.OnChange != nil {
		for k, v := range field.OnChange(change, next.Clone()) {
			next[k] = v
		}
	}
	a.rowForm = next
	return next.Clone()
}

// SubmitRow validates the open row form and applies it: appending when
// adding, replacing in place when editing. With autoReopen set, an add
// resets the form for the next row instead of closing it.
func (a *ArrayEditor) SubmitRow() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rowForm == nil {
		return apperr.Validation("no row is being edited")
	}

	visible := make([]*Field, 0, len(a.cfg.Fields))
	payload := make(map[string]any)
	for i := range a.cfg.Fields {
		field := &a.cfg.Fields[i]
		if !field.visible(a.rowForm) {
			continue
		}
		visible = append(visible, field)
		if value, present := a.rowForm[field.Name]; present {
			payload[field.Name] = canonicalize(value)
		}
	}
	if err := validate(visible, payload); err != nil {
		return err
	}

	switch a.mode {
	case ModeAdding:
		a.rows = append(a.rows, payload)
		if a.autoReopen {
			a.rowForm = make(State)
			return nil
		}
	case ModeEditing:
		if a.editIndex < 0 || a.editIndex >= len(a.rows) {
			a.mode = ModeIdle
			a.rowForm = nil
			return apperr.Validation("the edited row no longer exists")
		}
		a.rows[a.editIndex] = payload
	default:
		return apperr.Validation("no row is being edited")
	}

	a.mode = ModeIdle
	a.rowForm = nil
	return nil
}

// Delete removes the indexed row after the confirmation callback accepts.
// A declined confirmation leaves the array untouched. Deleting the row under
// edit cancels the edit; deleting an earlier row shifts the edit target with
// the remaining rows.
func (a *ArrayEditor) Delete(index int) error {
	a.mu.Lock()
	if index < 0 || index >= len(a.rows) {
		a.mu.Unlock()
		return apperr.Validation(fmt.Sprintf("row %d does not exist", index))
	}
	message := a.cfg.Labels.DeleteConfirm
	a.mu.Unlock()

	if a.confirm != nil && !a.confirm(message) {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if index >= len(a.rows) {
		return nil
	}
	a.rows = append(a.rows[:index], a.rows[index+1:]...)
	if a.mode == ModeEditing {
		switch {
		case index == a.editIndex:
			a.mode = ModeIdle
			a.rowForm = nil
			a.editIndex = -1
		case index < a.editIndex:
			a.editIndex--
		}
	}
	return nil
}

// RowOptions resolves the option list for a row-level selection field.
func (a *ArrayEditor) RowOptions(fieldName string) []Option {
	a.mu.Lock()
	defer a.mu.Unlock()

	field := a.rowField(fieldName)
	if field == nil || field.Kind != KindSelect || field.Select == nil {
		return nil
	}
	if len(field.Select.Options) > 0 {
		return field.Select.Options
	}
	source := field.Select.Source
	if source == nil {
		return nil
	}
	records := a.related.recordsFor(source)
	options := make([]Option, 0, len(records))
	for _, rec := range records {
		options = append(options, Option{Value: source.valueOf(rec), Label: source.labelOf(rec)})
	}
	return options
}

// RenderRow resolves the read-only display cells for one row. Each column
// resolves via its custom renderer, then a related lookup, then plain
// string coercion.
func (a *ArrayEditor) RenderRow(index int) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if index < 0 || index >= len(a.rows) {
		return nil
	}

	row := a.rows[index]
	cells := make([]string, len(a.cfg.Columns))
	for i := range a.cfg.Columns {
		col := &a.cfg.Columns[i]
		switch {
		case col.Render != nil:
			cells[i] = col.Render(cloneRow(row))
		case col.Source != nil:
			cells[i] = a.lookupLabel(col.Source, row[col.Field])
		default:
			cells[i] = coerceString(row[col.Field])
		}
	}
	return cells
}

func (a *ArrayEditor) lookupLabel(source *RelatedSource, value any) string {
	for _, rec := range a.related.recordsFor(source) {
		if source.valueOf(rec) == value {
			return source.labelOf(rec)
		}
	}
	return coerceString(value)
}

func (a *ArrayEditor) rowField(name string) *Field {
	for i := range a.cfg.Fields {
		if a.cfg.Fields[i].Name == name {
			return &a.cfg.Fields[i]
		}
	}
	return nil
}

func cloneRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func coerceString(value any) string {
	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}
