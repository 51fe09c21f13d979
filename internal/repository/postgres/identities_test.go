package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/uzswlu/campus-iam/internal/core/domain"
	"github.com/uzswlu/campus-iam/internal/repository"
)

func TestIdentityRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	now := time.Now().UTC()
	identity := domain.LinkedIdentity{
		ID:         "identity-1",
		UserID:     "user-1",
		ProviderID: "prov-google",
		SubjectID:  "goog-123",
		Attributes: map[string]any{"email": "a@example.com"},
		CreatedAt:  now,
		LastSeenAt: now,
	}

	mock.ExpectExec(`INSERT INTO iam\.linked_identities`).
		WithArgs(
			identity.ID,
			identity.UserID,
			identity.ProviderID,
			identity.SubjectID,
			pgxmock.AnyArg(),
			(*string)(nil),
			identity.CreatedAt,
			identity.LastSeenAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), identity); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_CreateConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	now := time.Now().UTC()
	identity := domain.LinkedIdentity{
		ID:         "identity-1",
		UserID:     "user-1",
		ProviderID: "prov-google",
		SubjectID:  "goog-123",
		CreatedAt:  now,
		LastSeenAt: now,
	}

	mock.ExpectExec(`INSERT INTO iam\.linked_identities`).
		WithArgs(
			identity.ID,
			identity.UserID,
			identity.ProviderID,
			identity.SubjectID,
			pgxmock.AnyArg(),
			(*string)(nil),
			identity.CreatedAt,
			identity.LastSeenAt,
		).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	if err := repo.Create(context.Background(), identity); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_GetBySubject(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	now := time.Now().UTC()
	recordID := "dir-rec-9"

	rows := pgxmock.NewRows([]string{
		"id", "user_id", "provider_id", "subject_id", "attributes", "directory_record_id", "created_at", "last_seen_at",
	}).AddRow(
		"identity-1", "user-1", "prov-hemis", "EMP-77", []byte(`{"firstname":"Aziz"}`), recordID, now, now,
	)

	mock.ExpectQuery(`SELECT .*FROM iam\.linked_identities`).
		WithArgs("prov-hemis", "EMP-77").
		WillReturnRows(rows)

	identity, err := repo.GetBySubject(context.Background(), "prov-hemis", "EMP-77")
	if err != nil {
		t.Fatalf("GetBySubject returned error: %v", err)
	}
	if identity.UserID != "user-1" {
		t.Fatalf("expected user-1, got %s", identity.UserID)
	}
	if identity.Attributes["firstname"] != "Aziz" {
		t.Fatalf("expected attribute snapshot to survive, got %+v", identity.Attributes)
	}
	if identity.DirectoryRecordID == nil || *identity.DirectoryRecordID != recordID {
		t.Fatalf("expected directory record pointer populated")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_GetBySubjectNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	rows := pgxmock.NewRows([]string{
		"id", "user_id", "provider_id", "subject_id", "attributes", "directory_record_id", "created_at", "last_seen_at",
	})

	mock.ExpectQuery(`SELECT .*FROM iam\.linked_identities`).
		WithArgs("prov-hemis", "missing").
		WillReturnRows(rows)

	if _, err := repo.GetBySubject(context.Background(), "prov-hemis", "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_Reassign(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	mock.ExpectExec(`UPDATE iam\.linked_identities`).
		WithArgs("user-2", "identity-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.Reassign(context.Background(), "identity-1", "user-2"); err != nil {
		t.Fatalf("Reassign returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_ReassignNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	mock.ExpectExec(`UPDATE iam\.linked_identities`).
		WithArgs("user-2", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.Reassign(context.Background(), "missing", "user-2"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
