// Package order manages customer orders. Orders embed their line items as an
// owned array; item count and total are denormalized onto the order, and
// status changes are guarded by a fixed transition allow-list.
package order

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/opsdesk/opsdesk/internal/core/entity"
	"github.com/opsdesk/opsdesk/internal/pkg/apperr"
)

const TypeName = "customer_orders"

// Field names.
const (
	FieldCustomerID   = "customerId"
	FieldStatus       = "status"
	FieldItems        = "items"
	FieldItemCount    = "itemCount"
	FieldTotal        = "total"
	FieldDeliveryDate = "deliveryDate"
)

// Line item field names.
const (
	ItemProductID = "productId"
	ItemQuantity  = "quantity"
	ItemUnitPrice = "unitPrice"
)

// Order statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

// transitions is the allow-list of status changes per current status.
var transitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusDelivered, StatusCancelled},
	StatusDelivered: {},
	StatusCancelled: {},
}

type Service struct {
	*entity.Service
}

func NewService(repo entity.Repository, seq entity.Sequencer, logger *zap.Logger) *Service {
	s := &Service{}
	s.Service = entity.NewService(repo, seq, TypeName, entity.Hooks{
		BeforeCreate: s.validateNew,
		BeforeUpdate: s.validateTransition,
		Derive:       deriveTotals,
	}, logger)
	return s
}

func (s *Service) validateNew(_ context.Context, fields map[string]any) error {
	status, _ := fields[FieldStatus].(string)
	if status == "" {
		fields[FieldStatus] = StatusPending
		return nil
	}
	if _, known := transitions[status]; !known {
		return apperr.Validation(fmt.Sprintf("unknown order status %q", status))
	}
	return nil
}

func (s *Service) validateTransition(_ context.Context, current *entity.Record, partial map[string]any) error {
	next, present := partial[FieldStatus]
	if !present {
		return nil
	}
	nextStatus, _ := next.(string)
	currentStatus := current.StringField(FieldStatus)
	if nextStatus == currentStatus {
		return nil
	}
	for _, allowed := range transitions[currentStatus] {
		if nextStatus == allowed {
			return nil
		}
	}
	return apperr.Validation(fmt.Sprintf("cannot change order status from %q to %q", currentStatus, nextStatus))
}

// deriveTotals recomputes the denormalized item count and total from the
// embedded line items. Quantities may be fractional (weighed goods), so the
// count stays a float.
func deriveTotals(fields map[string]any) map[string]any {
	items := Items(fields[FieldItems])
	var count float64
	var total float64
	for _, item := range items {
		qty := asFloat(item[ItemQuantity])
		count += qty
		total += qty * asFloat(item[ItemUnitPrice])
	}
	return map[string]any{
		FieldItemCount: count,
		FieldTotal:     total,
	}
}

// Items coerces a stored items value into its row form. JSON decoding hands
// back []any; in-process callers supply []map[string]any directly.
func Items(v any) []map[string]any {
	switch rows := v.(type) {
	case []map[string]any:
		return rows
	case []any:
		out := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			if m, ok := row.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
