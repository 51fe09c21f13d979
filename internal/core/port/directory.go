package port

import (
	"context"

	"github.com/uzswlu/campus-iam/internal/core/domain"
)

// DirectoryRepository exposes the local mirror of external directory
// records.
type DirectoryRepository interface {
	// GetByExternalID looks a record up by its canonical external id or,
	// failing that, its human-readable id.
	GetByExternalID(ctx context.Context, kind, externalID string) (*domain.DirectoryRecord, error)
	Upsert(ctx context.Context, record domain.DirectoryRecord) (*domain.DirectoryRecord, error)
}

// DirectoryPage is one fetched page of raw directory records.
type DirectoryPage struct {
	Records    []map[string]any
	Page       int
	PageCount  int
	TotalItems int
}

// HasNext reports whether more pages follow.
func (p DirectoryPage) HasNext() bool {
	return p.Page < p.PageCount
}

// DirectoryClient fetches pages of raw attribute records from the
// external directory. Failures surface as errors for the reconciler's
// retry policy.
type DirectoryClient interface {
	FetchPage(ctx context.Context, kind string, page, pageSize int) (*DirectoryPage, error)
}
