// Package supplier manages supplier records. Suppliers are identified to
// humans by their RUT, which must be unique across the collection.
package supplier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/opsdesk/opsdesk/internal/core/entity"
	"github.com/opsdesk/opsdesk/internal/pkg/apperr"
)

const TypeName = "suppliers"

// Field names.
const (
	FieldCommercialName = "commercialName"
	FieldRUT            = "rut"
	FieldAddress        = "address"
	FieldPhone          = "phone"
	FieldEmail          = "email"
)

type Service struct {
	*entity.Service
}

func NewService(repo entity.Repository, seq entity.Sequencer, logger *zap.Logger) *Service {
	s := &Service{}
	s.Service = entity.NewService(repo, seq, TypeName, entity.Hooks{
		BeforeCreate: s.validateNew,
	}, logger)
	return s
}

func (s *Service) validateNew(ctx context.Context, fields map[string]any) error {
	name, _ := fields[FieldCommercialName].(string)
	if strings.TrimSpace(name) == "" {
		return apperr.Validation("commercial name is required")
	}

	rut, _ := fields[FieldRUT].(string)
	rut = strings.TrimSpace(rut)
	if rut == "" {
		return apperr.Validation("rut is required")
	}

	existing, err := s.FindByField(ctx, FieldRUT, rut)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return apperr.Validation(fmt.Sprintf("a supplier with rut %s already exists", rut))
	}
	return nil
}
