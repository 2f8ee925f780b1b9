package form

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opsdesk/opsdesk/internal/core/entity"
	"github.com/opsdesk/opsdesk/internal/pkg/apperr"
	"github.com/opsdesk/opsdesk/internal/pkg/worker"
	"github.com/opsdesk/opsdesk/internal/storage/store"
)

// Status is the whole-form lifecycle state.
type Status string

const (
	StatusLoading    Status = "loading"
	StatusReady      Status = "ready"
	StatusSubmitting Status = "submitting"
	StatusSucceeded  Status = "succeeded"
)

// RecordService is the slice of an entity service the engine persists
// through.
type RecordService interface {
	Get(ctx context.Context, id string) (*entity.Record, error)
	Create(ctx context.Context, fields map[string]any) (*entity.Record, error)
	Update(ctx context.Context, id string, partial map[string]any) (*entity.Record, error)
}

// Notifier surfaces user-facing outcome messages.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// Config wires one engine instance. Service, sources, notifier, and pool are
// injected explicitly; the engine holds no ambient singletons.
type Config struct {
	Sections []Section
	Service  RecordService

	// RecordID selects edit mode; empty means a new record.
	RecordID string

	// Transform is an optional whole-record hook applied to the payload
	// just before submission.
	Transform func(map[string]any) map[string]any

	// ReturnPath is reported in the submit result on success; routing is
	// the caller's concern.
	ReturnPath string

	Notifier Notifier
	Pool     *worker.Pool
	Logger   *zap.Logger
}

// SubmitResult is returned on a successful submission.
type SubmitResult struct {
	Record     *entity.Record
	ReturnPath string
}

// RenderedField is one visible field with its resolved options.
type RenderedField struct {
	Field   *Field
	Value   any
	Options []Option
	Warning string
}

// RenderedSection is one visible section.
type RenderedSection struct {
	Title  string
	Fields []RenderedField
}

// Engine renders and persists one entity instance from its field
// descriptors. A single engine instance serializes its own submissions;
// independent engines are fully concurrent.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	status  Status
	state   State
	related *relatedData
	closed  bool
}

// NewEngine creates an engine for the given configuration.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:    cfg,
		logger: logger,
		status: StatusLoading,
		state:  make(State),
	}
}

// Load fetches the record under edit (if any) and every related source's
// option list, then moves the form to ready. Source failures degrade to
// per-field warnings; a record fetch failure is fatal to loading.
func (e *Engine) Load(ctx context.Context) error {
	var initial State
	if e.cfg.RecordID != "" {
		record, err := e.cfg.Service.Get(ctx, e.cfg.RecordID)
		if err != nil {
			return err
		}
		initial = materialize(e.fields(), record)
	} else {
		initial = make(State)
	}

	related := loadRelated(ctx, e.cfg.Pool, e.logger, relatedSources(e.fields()))

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		// Unmounted while loading; discard the results.
		return nil
	}
	e.state = initial
	e.related = related
	e.status = StatusReady
	return nil
}

// Status returns the current form status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// State returns a copy of the current form state, hidden fields included.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// ApplyChange writes a field edit into form state and merges any patch the
// field's change rule derives from it, as one atomic update. Changes to
// read-only fields are ignored, as are changes while the form is still
// loading or a submission is in flight.
func (e *Engine) ApplyChange(change Change) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == StatusLoading || e.status == StatusSubmitting {
		return e.state.Clone()
	}

	field := e.fieldByName(change.Field)
	if field == nil || field.ReadOnly {
		return e.state.Clone()
	}

	next := e.state.Clone()
	next[change.Field] = change.Value
	if field.OnChange != nil {
		for k, v := range field.OnChange(change, next.Clone()) {
			next[k] = v
		}
	}
	e.state = next
	return next.Clone()
}

// Render resolves the visible sections and fields against current state.
// Visibility predicates are re-evaluated on every call.
func (e *Engine) Render() []RenderedSection {
	e.mu.Lock()
	defer e.mu.Unlock()

	var sections []RenderedSection
	for i := range e.cfg.Sections {
		section := &e.cfg.Sections[i]
		if !section.visible(e.state) {
			continue
		}
		rendered := RenderedSection{Title: section.Title}
		for j := range section.Fields {
			field := &section.Fields[j]
			if !field.visible(e.state) {
				continue
			}
			rendered.Fields = append(rendered.Fields, RenderedField{
				Field:   field,
				Value:   e.state[field.Name],
				Options: e.optionsFor(field),
				Warning: e.warningFor(field),
			})
		}
		sections = append(sections, rendered)
	}
	return sections
}

// Submit validates the visible fields and persists them through the
// service: update when editing an existing record, create otherwise. On
// success the form is done and the configured return path is reported; on
// failure the form stays populated and ready for correction.
func (e *Engine) Submit(ctx context.Context) (*SubmitResult, error) {
	e.mu.Lock()
	switch e.status {
	case StatusSubmitting:
		e.mu.Unlock()
		return nil, apperr.Validation("a submission is already in progress")
	case StatusLoading:
		e.mu.Unlock()
		return nil, apperr.Validation("the form is still loading")
	}
	e.status = StatusSubmitting
	payload, visibleFields := e.payloadLocked()
	e.mu.Unlock()

	if err := validate(visibleFields, payload); err != nil {
		e.fail(err)
		return nil, err
	}

	if e.cfg.Transform != nil {
		payload = e.cfg.Transform(payload)
	}
	stripNil(payload)

	var record *entity.Record
	var err error
	if e.cfg.RecordID != "" {
		record, err = e.cfg.Service.Update(ctx, e.cfg.RecordID, payload)
	} else {
		record, err = e.cfg.Service.Create(ctx, payload)
	}
	if err != nil {
		e.fail(err)
		return nil, err
	}

	e.mu.Lock()
	e.status = StatusSucceeded
	e.mu.Unlock()

	if e.cfg.Notifier != nil {
		e.cfg.Notifier.Success("saved successfully")
	}
	return &SubmitResult{Record: record, ReturnPath: e.cfg.ReturnPath}, nil
}

// Close marks the engine unmounted. Results of in-flight loads arriving
// afterwards are discarded instead of applied.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// fail returns the form to ready with its state intact and raises a
// user-facing error notification.
func (e *Engine) fail(err error) {
	e.mu.Lock()
	e.status = StatusReady
	e.mu.Unlock()

	e.logger.Warn("form submission failed", zap.Error(err))
	if e.cfg.Notifier != nil {
		e.cfg.Notifier.Error(userMessage(err))
	}
}

// payloadLocked builds the submission payload from the visible fields only,
// canonicalizing date values. Hidden fields are excluded but keep their
// state. Caller holds e.mu.
func (e *Engine) payloadLocked() (map[string]any, []*Field) {
	payload := make(map[string]any)
	var visible []*Field
	for i := range e.cfg.Sections {
		section := &e.cfg.Sections[i]
		if !section.visible(e.state) {
			continue
		}
		for j := range section.Fields {
			field := &section.Fields[j]
			if !field.visible(e.state) {
				continue
			}
			visible = append(visible, field)
			value, present := e.state[field.Name]
			if !present {
				continue
			}
			payload[field.Name] = canonicalize(value)
		}
	}
	return payload, visible
}

func (e *Engine) fields() []Field {
	var fields []Field
	for _, section := range e.cfg.Sections {
		fields = append(fields, section.Fields...)
	}
	return fields
}

func (e *Engine) fieldByName(name string) *Field {
	for i := range e.cfg.Sections {
		for j := range e.cfg.Sections[i].Fields {
			if e.cfg.Sections[i].Fields[j].Name == name {
				return &e.cfg.Sections[i].Fields[j]
			}
		}
	}
	return nil
}

func (e *Engine) optionsFor(field *Field) []Option {
	if field.Kind != KindSelect || field.Select == nil {
		return nil
	}
	if len(field.Select.Options) > 0 {
		return field.Select.Options
	}
	source := field.Select.Source
	if source == nil {
		return nil
	}
	records := e.related.recordsFor(source)
	options := make([]Option, 0, len(records))
	for _, rec := range records {
		options = append(options, Option{Value: source.valueOf(rec), Label: source.labelOf(rec)})
	}
	return options
}

func (e *Engine) warningFor(field *Field) string {
	if field.Select == nil || field.Select.Source == nil {
		return ""
	}
	return e.related.warningFor(field.Select.Source)
}

// canonicalize converts date values to their persisted ISO-8601 form,
// recursing into array rows.
func canonicalize(value any) any {
	switch v := value.(type) {
	case time.Time:
		return store.EncodeTime(v)
	case []map[string]any:
		rows := make([]map[string]any, len(v))
		for i, row := range v {
			converted := make(map[string]any, len(row))
			for k, val := range row {
				converted[k] = canonicalize(val)
			}
			rows[i] = converted
		}
		return rows
	case map[string]any:
		converted := make(map[string]any, len(v))
		for k, val := range v {
			converted[k] = canonicalize(val)
		}
		return converted
	}
	return value
}

// materialize builds the initial edit state from a loaded record, parsing
// persisted timestamps back into native values for date fields.
func materialize(fields []Field, record *entity.Record) State {
	dateFields := make(map[string]bool)
	for i := range fields {
		if fields[i].Kind == KindDate {
			dateFields[fields[i].Name] = true
		}
	}

	state := make(State, len(record.Fields))
	for k, v := range record.Fields {
		if dateFields[k] {
			if t := store.DecodeTime(v); !t.IsZero() {
				state[k] = t
				continue
			}
		}
		state[k] = v
	}
	return state
}

func stripNil(payload map[string]any) {
	for k, v := range payload {
		if v == nil {
			delete(payload, k)
		}
	}
}

// userMessage reduces any failure to a short human-readable message.
func userMessage(err error) string {
	if appErr, ok := apperr.AsError(err); ok {
		return appErr.Message
	}
	return fmt.Sprintf("the operation could not be completed: %v", err)
}
