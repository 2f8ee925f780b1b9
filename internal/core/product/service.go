// Package product manages the product catalog. Products serve as a related
// source for order line items.
package product

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/opsdesk/opsdesk/internal/core/entity"
	"github.com/opsdesk/opsdesk/internal/pkg/apperr"
)

const TypeName = "products"

// Field names.
const (
	FieldName     = "name"
	FieldCategory = "category"
	FieldPrice    = "price"
	FieldUnit     = "unit"
)

type Service struct {
	*entity.Service
}

func NewService(repo entity.Repository, seq entity.Sequencer, logger *zap.Logger) *Service {
	s := &Service{}
	s.Service = entity.NewService(repo, seq, TypeName, entity.Hooks{
		BeforeCreate: validateNew,
	}, logger)
	return s
}

func validateNew(_ context.Context, fields map[string]any) error {
	name, _ := fields[FieldName].(string)
	if strings.TrimSpace(name) == "" {
		return apperr.Validation("product name is required")
	}
	return nil
}
