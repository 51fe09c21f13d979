package port

import (
	"context"

	"github.com/uzswlu/campus-iam/internal/core/domain"
)

// MergeRepository exposes merge lineage persistence. ExecuteMerge applies
// the whole merge as one transaction.
type MergeRepository interface {
	// GetByPair returns the lineage row for (main, merged) or
	// repository.ErrNotFound.
	GetByPair(ctx context.Context, mainUserID, mergedUserID string) (*domain.MergeRecord, error)
	// GetByMerged returns the lineage row where the user is the merged
	// side; a blocked user has exactly one.
	GetByMerged(ctx context.Context, mergedUserID string) (*domain.MergeRecord, error)
	// ExecuteMerge atomically records lineage, moves linked identities,
	// transfers role grants, and blocks the losing user. It locks the
	// losing user row and fails with repository.ErrConflict when the user
	// was blocked concurrently, and with the same error when the lineage
	// pair already exists.
	ExecuteMerge(ctx context.Context, mainUserID, mergedUserID string) (*domain.MergeOutcome, error)
}
