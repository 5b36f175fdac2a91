package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateCode is returned by Insert when the short code already exists.
// The database uniqueness constraint is the single source of truth for code
// uniqueness; callers translate this into their own taxonomy.
var ErrDuplicateCode = errors.New("storage: duplicate short code")

// LinkStore is the durable mapping from short code to link record.
//
// Absent rows are reported as (nil, nil), not as errors. Insert and
// SoftDelete are atomic with the owner's links_created counter.
type LinkStore interface {
	FindByCode(ctx context.Context, code string) (*Link, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Insert(ctx context.Context, link *Link) error
	Update(ctx context.Context, link *Link) error
	SoftDelete(ctx context.Context, code string) error
	UpdateLastAccessed(ctx context.Context, code string, at time.Time) error
	AddClicks(ctx context.Context, code string, n int64) error
	FindByOwner(ctx context.Context, owner uuid.UUID, page, size int, sortBy, order string) ([]*Link, error)
	CountByOwner(ctx context.Context, owner uuid.UUID) (int64, error)
}

type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
}
