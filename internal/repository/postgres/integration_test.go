//go:build integration

package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/scriptbox/internal/apperror"
	"github.com/sakif/scriptbox/internal/model"
	"github.com/sakif/scriptbox/internal/repository"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping integration test")
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	db, err := Open(Config{DSN: dsn}, logger)
	if err != nil {
		t.Fatalf("opening postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestExecutionRepository_Lifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	identity := "it-" + xid.New().String()
	out := "3\n"

	old := &model.Execution{Identity: identity, Status: "ok", Success: true, OutputResult: &out,
		ExecutedAt: time.Now().Add(-48 * time.Hour)}
	recent := &model.Execution{Identity: identity, Status: "ok", Success: true, OutputResult: &out}
	for _, e := range []*model.Execution{old, recent} {
		if err := db.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := db.GetByID(ctx, recent.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.OutputResult == nil || *got.OutputResult != out {
		t.Errorf("OutputResult = %v, want %q", got.OutputResult, out)
	}

	list, err := db.ListByIdentity(ctx, identity, repository.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListByIdentity() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != recent.ID {
		t.Fatalf("ListByIdentity() = %+v, want recent entry first", list)
	}

	if _, err := db.DeleteBefore(ctx, time.Now().Add(-24*time.Hour)); err != nil {
		t.Fatalf("DeleteBefore() error = %v", err)
	}
	if _, err := db.GetByID(ctx, old.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("old entry still present: err = %v", err)
	}
}
