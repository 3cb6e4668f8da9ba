package migrations_test

import (
	"context"
	"testing"

	"github.com/campushub/activity-registration-api/internal/adapters/postgres/testutil"
	"github.com/campushub/activity-registration-api/migrations"
)

func TestApply_IsIdempotent(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()

	// NewTestPool already applied the migrations once.
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count < 3 {
		t.Fatalf("expected at least 3 migrations, got %d", count)
	}

	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}

	var count2 int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count2); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count2 != count {
		t.Fatalf("expected migration count unchanged, got %d vs %d", count2, count)
	}
}
