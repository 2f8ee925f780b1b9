// Package sequence issues the human-readable record numbers stamped onto
// every entity at creation.
package sequence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/opsdesk/opsdesk/internal/storage/store"
)

// CountersCollection holds one counter document per entity type.
const CountersCollection = "sequence_counters"

// NumberWidth is the zero-padded width of issued numbers.
const NumberWidth = 5

// Generator issues monotonically increasing, zero-padded record numbers per
// entity type. Counters advance through the store's atomic increment, so
// concurrent creators of the same type can never be issued the same number.
type Generator struct {
	store  store.Store
	logger *zap.Logger
}

func NewGenerator(s store.Store, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{store: s, logger: logger}
}

// Next returns the next number for typeName, formatted with fixed-width zero
// padding ("00001" for the first issue). Counter documents are created on
// first use and never deleted.
func (g *Generator) Next(ctx context.Context, typeName string) (string, error) {
	value, err := g.store.Increment(ctx, CountersCollection, typeName, store.FieldLastNumber, 1)
	if err != nil {
		return "", err
	}
	g.logger.Debug("issued sequence number",
		zap.String("type", typeName), zap.Int64("number", value))
	return Format(value), nil
}

// Format renders a counter value in its padded string form.
func Format(value int64) string {
	return fmt.Sprintf("%0*d", NumberWidth, value)
}
