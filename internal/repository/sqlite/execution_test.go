package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/scriptbox/internal/apperror"
	"github.com/sakif/scriptbox/internal/model"
	"github.com/sakif/scriptbox/internal/repository"
)

// newTestDB opens a fresh in-memory database that is closed when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func createTestExecution(t *testing.T, db *DB, identity string, at time.Time) *model.Execution {
	t.Helper()
	e := &model.Execution{
		Identity:       identity,
		InputArgs:      "1,2",
		OutputResult:   strPtr("3\n"),
		Success:        true,
		ElapsedSeconds: 0.01,
		Status:         "ok",
		ExecutedAt:     at,
	}
	if err := db.Create(context.Background(), e); err != nil {
		t.Fatalf("failed to create test execution: %v", err)
	}
	return e
}

func TestCreate(t *testing.T) {
	db := newTestDB(t)

	e := &model.Execution{Identity: "alice", Status: "ok", Success: true}
	if err := db.Create(context.Background(), e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if e.ID == "" {
		t.Error("Create() did not set ID")
	}
	if e.ExecutedAt.IsZero() {
		t.Error("Create() did not set ExecutedAt")
	}
}

func TestGetByID_RoundTripsNullableColumns(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ok := createTestExecution(t, db, "alice", time.Now())
	failed := &model.Execution{
		Identity:       "alice",
		InputArgs:      "",
		ErrorMessage:   strPtr("undefined: open"),
		ElapsedSeconds: 0.002,
		Status:         "runtime_fault",
	}
	if err := db.Create(ctx, failed); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := db.GetByID(ctx, ok.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.OutputResult == nil || *got.OutputResult != "3\n" {
		t.Errorf("OutputResult = %v, want %q", got.OutputResult, "3\n")
	}
	if got.ErrorMessage != nil {
		t.Errorf("ErrorMessage = %q, want nil", *got.ErrorMessage)
	}
	if !got.Success {
		t.Error("Success = false, want true")
	}
	if got.InputArgs != "1,2" {
		t.Errorf("InputArgs = %q, want %q", got.InputArgs, "1,2")
	}

	got, err = db.GetByID(ctx, failed.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.OutputResult != nil {
		t.Errorf("OutputResult = %q, want nil", *got.OutputResult)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "undefined: open" {
		t.Errorf("ErrorMessage = %v, want %q", got.ErrorMessage, "undefined: open")
	}
	if got.Status != "runtime_fault" {
		t.Errorf("Status = %q, want runtime_fault", got.Status)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByID(context.Background(), "nonexistent-id")
	if err == nil {
		t.Fatal("GetByID() should have returned an error for nonexistent ID")
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestListByIdentity_NewestFirstAndScoped(t *testing.T) {
	db := newTestDB(t)
	base := time.Now().Add(-time.Hour)

	oldest := createTestExecution(t, db, "alice", base)
	middle := createTestExecution(t, db, "alice", base.Add(time.Minute))
	newest := createTestExecution(t, db, "alice", base.Add(2*time.Minute))
	createTestExecution(t, db, "bob", base.Add(3*time.Minute))

	got, err := db.ListByIdentity(context.Background(), "alice", repository.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListByIdentity() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListByIdentity() returned %d entries, want 3", len(got))
	}
	want := []string{newest.ID, middle.ID, oldest.ID}
	for i, e := range got {
		if e.ID != want[i] {
			t.Errorf("entry %d ID = %s, want %s", i, e.ID, want[i])
		}
		if e.Identity != "alice" {
			t.Errorf("entry %d Identity = %q, want alice", i, e.Identity)
		}
	}
}

func TestListByIdentity_Pagination(t *testing.T) {
	db := newTestDB(t)
	base := time.Now().Add(-time.Hour)
	for i := range 5 {
		createTestExecution(t, db, "alice", base.Add(time.Duration(i)*time.Second))
	}

	tests := []struct {
		name string
		opts repository.ListOptions
		want int
	}{
		{"first page", repository.ListOptions{Limit: 2}, 2},
		{"second page", repository.ListOptions{Limit: 2, Offset: 2}, 2},
		{"last page", repository.ListOptions{Limit: 2, Offset: 4}, 1},
		{"zero limit uses default", repository.ListOptions{}, 5},
		{"negative offset", repository.ListOptions{Limit: 3, Offset: -1}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ListByIdentity(context.Background(), "alice", tt.opts)
			if err != nil {
				t.Fatalf("ListByIdentity() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d entries, want %d", len(got), tt.want)
			}
		})
	}
}

func TestListByIdentity_Empty(t *testing.T) {
	db := newTestDB(t)

	got, err := db.ListByIdentity(context.Background(), "nobody", repository.ListOptions{})
	if err != nil {
		t.Fatalf("ListByIdentity() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ListByIdentity() = %v, want empty non-nil slice", got)
	}
}

func TestDeleteBefore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	old1 := createTestExecution(t, db, "alice", now.Add(-48*time.Hour))
	createTestExecution(t, db, "bob", now.Add(-30*time.Hour))
	recent := createTestExecution(t, db, "alice", now.Add(-time.Hour))

	n, err := db.DeleteBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore() error = %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteBefore() removed %d rows, want 2", n)
	}

	if _, err := db.GetByID(ctx, old1.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("old entry still present: err = %v", err)
	}
	if _, err := db.GetByID(ctx, recent.ID); err != nil {
		t.Errorf("recent entry was removed: %v", err)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
