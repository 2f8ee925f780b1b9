// Package form implements the metadata-driven entity management engine: a
// declarative field model, a headless form engine that renders and persists
// any entity type from that model, and a nested editor for array-valued
// fields. Pages supply descriptors and services; no entity-specific code
// lives here.
package form

import (
	"context"

	"github.com/opsdesk/opsdesk/internal/core/entity"
)

// Kind tags a field's editing behavior. Kind-specific configuration lives in
// the matching config struct on Field; render switches over Kind exhaustively.
type Kind string

const (
	KindText     Kind = "text"
	KindNumber   Kind = "number"
	KindDate     Kind = "date"
	KindBoolean  Kind = "boolean"
	KindSelect   Kind = "select"
	KindTextArea Kind = "textarea"
	KindCustom   Kind = "custom"
	KindArray    Kind = "array"
)

// State is the current value of every field in a form, keyed by field name.
// Hidden fields keep their last value; visibility only affects rendering and
// submission.
type State map[string]any

// Clone returns a shallow copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Change is one user edit to a single field.
type Change struct {
	Field string
	Value any
}

// Patch is a partial state update produced by a change rule and merged
// atomically with the triggering change.
type Patch map[string]any

// ChangeRule derives sibling-field updates from a change: picking an item
// can set an id, a discriminator, and a display value in one step. Rules
// must be pure; related data is loaded up front, never from a rule.
type ChangeRule func(change Change, state State) Patch

// Predicate decides visibility from the current form state.
type Predicate func(state State) bool

// Lister is the slice of an entity service a related source needs.
type Lister interface {
	TypeName() string
	List(ctx context.Context) ([]*entity.Record, error)
}

// RelatedSource declares a read-only dependency on another entity service
// whose records populate a selection field's options. Value and label are
// extracted through explicit accessors rather than string-keyed lookups.
type RelatedSource struct {
	// Name keys the loaded record list; defaults to the lister's type name.
	Name string

	Lister Lister

	// ValueOf extracts the option value; defaults to the record id.
	ValueOf func(*entity.Record) any

	// LabelOf extracts the option label; defaults to the "name" field.
	LabelOf func(*entity.Record) string
}

func (s *RelatedSource) name() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Lister.TypeName()
}

func (s *RelatedSource) valueOf(rec *entity.Record) any {
	if s.ValueOf != nil {
		return s.ValueOf(rec)
	}
	return rec.ID
}

func (s *RelatedSource) labelOf(rec *entity.Record) string {
	if s.LabelOf != nil {
		return s.LabelOf(rec)
	}
	return rec.StringField("name")
}

// Option is one selectable choice.
type Option struct {
	Value any    `json:"value"`
	Label string `json:"label"`
}

// SelectConfig configures a selection field: a static option list or a
// related source, never both.
type SelectConfig struct {
	Options []Option
	Source  *RelatedSource
}

// CustomConfig names an externally registered component for fields the
// engine does not render itself.
type CustomConfig struct {
	Component string
}

// Column describes one read-only display column of an array field.
// Rendering resolves, in priority order: the custom renderer, the related
// lookup (id to display label), plain string coercion.
type Column struct {
	Field  string
	Title  string
	Render func(row map[string]any) string
	Source *RelatedSource
}

// ArrayLabels are the user-facing texts of the array editor.
type ArrayLabels struct {
	Empty         string
	Add           string
	Edit          string
	DeleteConfirm string
}

// ArrayConfig configures an array-of-records field: each row is itself
// described by a field list.
type ArrayConfig struct {
	Fields  []Field
	Columns []Column
	Labels  ArrayLabels
}

// Field declares one editable attribute of an entity or of an array row.
type Field struct {
	Name        string
	Label       string
	Kind        Kind
	Required    bool
	ReadOnly    bool
	Placeholder string

	// Kind-specific configuration.
	Select *SelectConfig // KindSelect
	Custom *CustomConfig // KindCustom
	Array  *ArrayConfig  // KindArray

	// VisibleWhen excludes the field from rendering and submission when it
	// returns false. The field's value stays in state.
	VisibleWhen Predicate

	// OnChange derives sibling-field updates when this field changes.
	OnChange ChangeRule
}

func (f *Field) visible(state State) bool {
	if f.VisibleWhen == nil {
		return true
	}
	return f.VisibleWhen(state)
}

// Section groups fields under a title with its own visibility predicate.
type Section struct {
	Title       string
	Fields      []Field
	VisibleWhen Predicate
}

func (s *Section) visible(state State) bool {
	if s.VisibleWhen == nil {
		return true
	}
	return s.VisibleWhen(state)
}

// relatedSources collects every related source referenced by the fields,
// deduplicated by name. Array row fields contribute their own sources.
func relatedSources(fields []Field) []*RelatedSource {
	var sources []*RelatedSource
	seen := make(map[string]bool)
	var collect func(fields []Field)
	collect = func(fields []Field) {
		for i := range fields {
			f := &fields[i]
			if f.Select != nil && f.Select.Source != nil {
				if name := f.Select.Source.name(); !seen[name] {
					seen[name] = true
					sources = append(sources, f.Select.Source)
				}
			}
			if f.Array != nil {
				collect(f.Array.Fields)
				for j := range f.Array.Columns {
					col := &f.Array.Columns[j]
					if col.Source != nil {
						if name := col.Source.name(); !seen[name] {
							seen[name] = true
							sources = append(sources, col.Source)
						}
					}
				}
			}
		}
	}
	collect(fields)
	return sources
}
