package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uzswlu/campus-iam/internal/core/domain"
	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/extract"
	"github.com/uzswlu/campus-iam/internal/repository"
)

var (
	// ErrNotDirectoryProvider indicates the provider has no directory feed.
	ErrNotDirectoryProvider = errors.New("provider is not backed by a directory feed")
	// ErrSyncAlreadyRunning indicates another reconciliation holds the
	// provider's run lock.
	ErrSyncAlreadyRunning = errors.New("a reconciliation run is already in progress")
)

// SyncReport summarizes one reconciliation run.
type SyncReport struct {
	Provider    string
	Processed   int
	Created     int
	Updated     int
	Failed      int
	Pages       int
	StartedAt   time.Time
	CompletedAt time.Time
	// Partial is set when the run stopped early: page fetches kept
	// failing or the context was cancelled between pages.
	Partial bool
	// Errors collects per-record failure descriptions after retries were
	// exhausted. The run continues past them.
	Errors []string
}

// ReconcilerOptions tunes paging, pacing, and retry behavior.
type ReconcilerOptions struct {
	PageSize           int
	PageDelay          time.Duration
	FetchRetries       int
	RecordRetries      int
	RecordRetryBackoff time.Duration
	RunLockTTL         time.Duration
}

// ReconcilerService walks the external directory feed and reconciles every
// record against local accounts: known identities are refreshed, unknown
// ones get placeholder accounts provisioned.
type ReconcilerService struct {
	providers  port.ProviderRepository
	identities port.IdentityRepository
	users      port.UserRepository
	profiles   port.ProfileRepository
	directory  port.DirectoryRepository
	client     port.DirectoryClient
	audits     port.AuditRepository
	publisher  port.EventPublisher
	merges     *MergeService
	resolver   *ResolverService
	locks      port.LockStore
	logger     *zap.Logger
	opts       ReconcilerOptions
}

// NewReconcilerService constructs the batch reconciler.
func NewReconcilerService(
	providers port.ProviderRepository,
	identities port.IdentityRepository,
	users port.UserRepository,
	profiles port.ProfileRepository,
	directory port.DirectoryRepository,
	client port.DirectoryClient,
	audits port.AuditRepository,
	publisher port.EventPublisher,
	merges *MergeService,
	resolver *ResolverService,
	locks port.LockStore,
	opts ReconcilerOptions,
	logger *zap.Logger,
) *ReconcilerService {
	if opts.PageSize <= 0 {
		opts.PageSize = 200
	}
	if opts.FetchRetries <= 0 {
		opts.FetchRetries = 5
	}
	if opts.RecordRetries <= 0 {
		opts.RecordRetries = 3
	}
	if opts.RecordRetryBackoff <= 0 {
		opts.RecordRetryBackoff = 200 * time.Millisecond
	}
	if opts.RunLockTTL <= 0 {
		opts.RunLockTTL = 2 * time.Hour
	}

	return &ReconcilerService{
		providers:  providers,
		identities: identities,
		users:      users,
		profiles:   profiles,
		directory:  directory,
		client:     client,
		audits:     audits,
		publisher:  publisher,
		merges:     merges,
		resolver:   resolver,
		locks:      locks,
		logger:     logger,
		opts:       opts,
	}
}

// SyncProvider runs one full reconciliation pass for the provider's
// directory feed. At most one run per provider executes at a time.
func (s *ReconcilerService) SyncProvider(ctx context.Context, providerName string) (*SyncReport, error) {
	provider, err := s.providers.GetByName(ctx, providerName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}

	if provider.DirectoryKind == "" {
		return nil, ErrNotDirectoryProvider
	}

	lockName := "sync:" + provider.Name
	acquired, err := s.locks.Acquire(ctx, lockName, s.opts.RunLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !acquired {
		return nil, ErrSyncAlreadyRunning
	}
	defer func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), lockName); err != nil {
			s.logger.Warn("failed to release sync lock",
				zap.String("lock", lockName),
				zap.Error(err),
			)
		}
	}()

	report := &SyncReport{
		Provider:  provider.Name,
		StartedAt: time.Now().UTC(),
	}

	s.logger.Info("directory reconciliation started",
		zap.String("provider", provider.Name),
		zap.String("kind", provider.DirectoryKind),
		zap.Int("page_size", s.opts.PageSize),
	)

	for page := 1; ; page++ {
		fetched, err := s.fetchPage(ctx, provider.DirectoryKind, page)
		if err != nil {
			s.logger.Error("aborting run: page fetch kept failing",
				zap.String("provider", provider.Name),
				zap.Int("page", page),
				zap.Error(err),
			)
			report.Partial = true
			break
		}

		report.Pages++
		for _, raw := range fetched.Records {
			report.Processed++
			created, err := s.processWithRetry(ctx, provider, raw)
			switch {
			case err != nil:
				report.Failed++
				report.Errors = append(report.Errors, err.Error())
				s.logger.Warn("record reconciliation failed",
					zap.String("provider", provider.Name),
					zap.Error(err),
				)
			case created:
				report.Created++
			default:
				report.Updated++
			}
		}

		if !fetched.HasNext() {
			break
		}

		// Pacing between pages; cancellation is only honored here so a
		// page is never processed halfway.
		if stopped := s.pause(ctx); stopped {
			report.Partial = true
			break
		}
	}

	report.CompletedAt = time.Now().UTC()
	s.publishCompleted(ctx, report)

	s.logger.Info("directory reconciliation finished",
		zap.String("provider", provider.Name),
		zap.Int("processed", report.Processed),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
		zap.Bool("partial", report.Partial),
		zap.Duration("took", report.CompletedAt.Sub(report.StartedAt)),
	)

	return report, nil
}

// fetchPage retries transient feed failures with exponential backoff.
func (s *ReconcilerService) fetchPage(ctx context.Context, kind string, page int) (*port.DirectoryPage, error) {
	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt < s.opts.FetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		fetched, err := s.client.FetchPage(ctx, kind, page, s.opts.PageSize)
		if err == nil {
			return fetched, nil
		}
		lastErr = err

		s.logger.Warn("directory page fetch failed",
			zap.String("kind", kind),
			zap.Int("page", page),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return nil, lastErr
}

func (s *ReconcilerService) processWithRetry(ctx context.Context, provider *domain.Provider, raw map[string]any) (bool, error) {
	var lastErr error

	for attempt := 0; attempt < s.opts.RecordRetries; attempt++ {
		if attempt > 0 {
			// Linear backoff: each retry waits one step longer.
			select {
			case <-time.After(time.Duration(attempt) * s.opts.RecordRetryBackoff):
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}

		created, err := s.processRecord(ctx, provider, raw)
		if err == nil {
			return created, nil
		}
		lastErr = err
	}

	return false, lastErr
}

// processRecord reconciles one raw feed record. Returns true when a new
// account was provisioned.
func (s *ReconcilerService) processRecord(ctx context.Context, provider *domain.Provider, raw map[string]any) (bool, error) {
	ext, err := extract.ForProvider(provider.Name).Extract(raw)
	if err != nil {
		return false, fmt.Errorf("extract record: %w", err)
	}

	record, err := s.upsertDirectoryRecord(ctx, provider.DirectoryKind, ext, raw)
	if err != nil {
		return false, err
	}

	// Identities may have been created under either the external id or
	// the human-readable number; match against both.
	matches, err := s.identities.ListBySubjects(ctx, provider.ID, record.SubjectCandidates())
	if err != nil {
		return false, fmt.Errorf("match identities: %w", err)
	}

	if len(matches) == 0 {
		result, err := s.resolver.Resolve(ctx, provider.Name, raw, "sync")
		if err != nil {
			return false, fmt.Errorf("provision from feed: %w", err)
		}
		return result.Outcome == OutcomeProvisioned, nil
	}

	// A record can have rows under both the external id and the
	// human-readable number; every one of them gets repointed and
	// refreshed, not just the first hit.
	var owner *domain.User
	for _, identity := range matches {
		resolved, err := s.merges.ResolveCurrentOwner(ctx, identity.UserID)
		if err != nil {
			return false, err
		}
		if owner == nil {
			owner = resolved
		}

		if resolved.ID != identity.UserID {
			if err := s.identities.Reassign(ctx, identity.ID, resolved.ID); err != nil {
				return false, fmt.Errorf("repoint identity: %w", err)
			}
		}

		if err := s.identities.Refresh(ctx, identity.ID, raw, &record.ID); err != nil {
			return false, fmt.Errorf("refresh identity: %w", err)
		}
	}

	s.resolver.refreshContact(ctx, owner, ext)
	s.resolver.upsertProfile(ctx, owner.ID, ext)
	s.appendSyncAudit(ctx, owner.ID, provider.Name, ext.SubjectID)

	return false, nil
}

func (s *ReconcilerService) upsertDirectoryRecord(ctx context.Context, kind string, ext extract.Identity, raw map[string]any) (*domain.DirectoryRecord, error) {
	externalID := ext.DirectoryID
	if externalID == "" {
		externalID = ext.SubjectID
	}

	record := domain.DirectoryRecord{
		ID:         uuid.NewString(),
		Kind:       kind,
		ExternalID: externalID,
		HumanID:    ext.SubjectID,
		FullName:   ext.FullName,
		Department: ext.Department,
		Attributes: raw,
		SyncedAt:   time.Now().UTC(),
	}

	if ext.BirthDate != "" {
		if parsed, err := time.Parse("2006-01-02", ext.BirthDate); err == nil {
			record.BirthDate = &parsed
		}
	}

	stored, err := s.directory.Upsert(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("upsert directory record: %w", err)
	}

	return stored, nil
}

func (s *ReconcilerService) appendSyncAudit(ctx context.Context, userID, providerName, subjectID string) {
	if s.audits == nil {
		return
	}

	event := domain.AuditEvent{
		ID:          uuid.NewString(),
		UserID:      userID,
		Action:      domain.AuditActionSyncUpdate,
		Description: fmt.Sprintf("refreshed from %s directory record %s", providerName, subjectID),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.audits.Append(ctx, event); err != nil {
		s.logger.Warn("failed to append sync audit event",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// pause waits out the page delay; returns true when the context was
// cancelled while waiting.
func (s *ReconcilerService) pause(ctx context.Context) bool {
	if s.opts.PageDelay <= 0 {
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}

	select {
	case <-time.After(s.opts.PageDelay):
		return false
	case <-ctx.Done():
		return true
	}
}

func (s *ReconcilerService) publishCompleted(ctx context.Context, report *SyncReport) {
	if s.publisher == nil {
		return
	}

	event := domain.DirectorySyncCompletedEvent{
		Provider:    report.Provider,
		Processed:   report.Processed,
		Created:     report.Created,
		Updated:     report.Updated,
		Failed:      report.Failed,
		StartedAt:   report.StartedAt,
		CompletedAt: report.CompletedAt,
		Partial:     report.Partial,
	}

	if err := s.publisher.PublishDirectorySyncCompleted(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("failed to publish sync completed event",
			zap.String("provider", report.Provider),
			zap.Error(err),
		)
	}
}
