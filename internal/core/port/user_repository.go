package port

import (
	"context"
	"time"

	"github.com/uzswlu/campus-iam/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetActiveByEmail returns the non-blocked, non-deleted user holding
	// the email, or repository.ErrNotFound.
	GetActiveByEmail(ctx context.Context, email string) (*domain.User, error)
	// UsernameTaken reports whether any user (regardless of status) holds
	// the username.
	UsernameTaken(ctx context.Context, username string) (bool, error)
	// UpdateContact refreshes email/phone/verification flags. The
	// repository skips fields colliding with another resolvable user's
	// unique columns and reports the skipped ones.
	UpdateContact(ctx context.Context, update domain.User) (skipped []string, err error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	Count(ctx context.Context) (int, error)
}
