package repository

import (
	"context"

	"github.com/werkbank/fakturo/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic gorm-backed store shared by the read/list paths.
// Guarded lifecycle writes do not go through it; those use raw conditional
// SQL inside service transactions.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Count(ctx context.Context, query *T) (int64, error)
}
