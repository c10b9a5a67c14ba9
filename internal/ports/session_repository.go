package ports

import (
	"context"

	"github.com/neoxalle/nx/internal/domain"
)

// SessionRepository stores finished session records. List returns newest
// first; limit <= 0 means no limit.
type SessionRepository interface {
	Append(ctx context.Context, record domain.SessionRecord) error
	Get(ctx context.Context, id string) (domain.SessionRecord, error)
	List(ctx context.Context, limit int) ([]domain.SessionRecord, error)
	Clear(ctx context.Context) error
}
