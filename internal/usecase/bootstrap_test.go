package usecase

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/uzswlu/campus-iam/internal/core/domain"
)

func TestEnsureFounderFirstUser(t *testing.T) {
	users := newStubUserRepo()
	first := users.add(domain.User{Username: "rector"})
	roles := newStubRoleRepo(domain.Role{ID: "role-super", Name: "super-admin"})
	locks := newStubLockStore()

	svc := NewBootstrapService(users, roles, locks, "super-admin", zaptest.NewLogger(t))

	granted, err := svc.EnsureFounder(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("EnsureFounder returned error: %v", err)
	}
	if !granted {
		t.Fatal("expected founder grant for the only user")
	}

	held, _ := roles.ListByUser(context.Background(), first.ID)
	if len(held) != 1 || held[0].Name != "super-admin" {
		t.Fatalf("unexpected grants: %+v", held)
	}
}

func TestEnsureFounderSkipsSubsequentUsers(t *testing.T) {
	users := newStubUserRepo()
	users.add(domain.User{Username: "rector"})
	second := users.add(domain.User{Username: "teacher"})
	roles := newStubRoleRepo(domain.Role{ID: "role-super", Name: "super-admin"})
	locks := newStubLockStore()

	svc := NewBootstrapService(users, roles, locks, "super-admin", zaptest.NewLogger(t))

	granted, err := svc.EnsureFounder(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("EnsureFounder returned error: %v", err)
	}
	if granted {
		t.Fatal("must not grant founder role when other accounts exist")
	}
}

func TestEnsureFounderLockHeld(t *testing.T) {
	users := newStubUserRepo()
	first := users.add(domain.User{Username: "rector"})
	roles := newStubRoleRepo(domain.Role{ID: "role-super", Name: "super-admin"})
	locks := newStubLockStore()
	locks.denied[bootstrapLockName] = true

	svc := NewBootstrapService(users, roles, locks, "super-admin", zaptest.NewLogger(t))

	granted, err := svc.EnsureFounder(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("EnsureFounder returned error: %v", err)
	}
	if granted {
		t.Fatal("must not grant when another instance holds the lock")
	}
}
