// Package store implements the generic row access layer the sync core is
// written against: named tables, whitelisted columns, filter predicates.
package store

import (
	"context"

	"github.com/akarpov87/taskhive/internal/syncmodel"
)

// FilterOp is the comparison applied by a Filter.
type FilterOp int

const (
	OpEq FilterOp = iota
	OpGte
	OpIn
)

// Filter constrains a Select to rows matching column <op> value.
type Filter struct {
	Column string
	Op     FilterOp
	Value  any
}

func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

func Gte(column string, value any) Filter {
	return Filter{Column: column, Op: OpGte, Value: value}
}

func In(column string, values []string) Filter {
	return Filter{Column: column, Op: OpIn, Value: values}
}

// RowStore is the storage contract consumed by the permission evaluator,
// the change extractor and the push reconciler.
//
// Implementations must report absent rows as common.ErrNotFound and
// duplicate-key or foreign-key failures as common.ErrConstraintViolation,
// so the reconciler can treat them as ordinary per-item rejections.
type RowStore interface {
	Get(ctx context.Context, table syncmodel.Table, id string) (syncmodel.Record, error)
	Select(ctx context.Context, table syncmodel.Table, filters ...Filter) ([]syncmodel.Record, error)
	Insert(ctx context.Context, table syncmodel.Table, rec syncmodel.Record) error
	Update(ctx context.Context, table syncmodel.Table, id string, rec syncmodel.Record) error
	Delete(ctx context.Context, table syncmodel.Table, id string) error
}
