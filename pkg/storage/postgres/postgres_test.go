package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/storage"
)

func init() {
	// Point testcontainers at a podman socket when no DOCKER_HOST is set.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			if sock := strings.TrimSpace(string(out)); sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a migrated Store.
// Tests are skipped when no container runtime is available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}
	_, dockerErr := exec.LookPath("docker")
	_, podmanErr := exec.LookPath("podman")
	if dockerErr != nil && podmanErr != nil {
		t.Skip("no container runtime found, skipping integration tests")
	}

	ctx := context.Background()
	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("datasci_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func makeTestRun(id string, created time.Time, status api.RunStatus) *api.Run {
	return &api.Run{
		ID:         id,
		Task:       "mean of column a",
		Model:      "test-model",
		SessionID:  "s1",
		Status:     status,
		Answer:     "4.5",
		Iterations: 2,
		Turns: []api.Turn{
			{Kind: api.TurnInstruction, Role: "user", Content: "mean of column a"},
			{Kind: api.TurnObservation, Iteration: 1, Role: "user", Content: "Execution status: success",
				Observation: &api.Observation{SessionID: "s1", Status: api.StatusSuccess, Stdout: "4.5\n", Artifacts: []string{}}},
		},
		CreatedAt:   created,
		CompletedAt: created.Add(3 * time.Second),
	}
}

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_add_index.sql":   {Data: []byte("SELECT 1")},
		"migrations/002_add_column.sql":  {Data: []byte("SELECT 1")},
		"migrations/001_create_runs.sql": {Data: []byte("SELECT 1")},
		"migrations/README.md":           {Data: []byte("docs")},
		"migrations/bad_name.sql":        {Data: []byte("SELECT 1")},
	}

	got, err := pendingMigrations(fsys)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{1, 2, 10}
	if len(got) != len(want) {
		t.Fatalf("got %d migrations, want %d: %+v", len(got), len(want), got)
	}
	for i, v := range want {
		if got[i].version != v {
			t.Errorf("migration %d version = %d, want %d", i, got[i].version, v)
		}
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	got, err := pendingMigrations(migrationFiles)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 || got[0].name != "001_create_runs.sql" {
		t.Errorf("embedded migrations = %+v", got)
	}
}

func TestPostgres_SaveAndGet(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	run := makeTestRun(fmt.Sprintf("run_pg_%d", time.Now().UnixNano()), time.Now().UTC().Truncate(time.Microsecond), api.RunStatusCompleted)
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Task != run.Task || got.Status != api.RunStatusCompleted || got.Iterations != 2 {
		t.Errorf("got %+v", got)
	}
	if got.Error != "" {
		t.Errorf("Error = %q, want empty", got.Error)
	}
	if !got.CompletedAt.Equal(run.CompletedAt) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, run.CompletedAt)
	}
	if len(got.Turns) != 2 || got.Turns[1].Observation == nil || got.Turns[1].Observation.Stdout != "4.5\n" {
		t.Errorf("Turns = %+v", got.Turns)
	}
}

func TestPostgres_NotFoundAndConflict(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if _, err := store.GetRun(ctx, "run_missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	run := makeTestRun(fmt.Sprintf("run_dup_%d", time.Now().UnixNano()), time.Now(), api.RunStatusFailed)
	run.Error = "model unavailable"
	store.SaveRun(ctx, run)
	if err := store.SaveRun(ctx, run); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if err := store.DeleteRun(ctx, run.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_ListRuns(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Second)
	prefix := fmt.Sprintf("run_list_%d_", time.Now().UnixNano())
	for i := 0; i < 4; i++ {
		status := api.RunStatusCompleted
		if i == 2 {
			status = api.RunStatusBudgetExhausted
		}
		if err := store.SaveRun(ctx, makeTestRun(fmt.Sprintf("%s%d", prefix, i), start.Add(time.Duration(i)*time.Second), status)); err != nil {
			t.Fatal(err)
		}
	}

	page, err := store.ListRuns(ctx, storage.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(page.Data) != 2 || !page.HasMore {
		t.Fatalf("first page = %d runs, has_more %v", len(page.Data), page.HasMore)
	}
	if page.Data[0].ID != prefix+"3" || page.Data[1].ID != prefix+"2" {
		t.Errorf("first page = %s, %s", page.Data[0].ID, page.Data[1].ID)
	}

	next, err := store.ListRuns(ctx, storage.ListOptions{Limit: 2, After: page.LastID})
	if err != nil {
		t.Fatal(err)
	}
	if len(next.Data) != 2 || next.Data[0].ID != prefix+"1" || next.HasMore {
		t.Errorf("second page = %+v", next)
	}

	filtered, err := store.ListRuns(ctx, storage.ListOptions{Status: api.RunStatusBudgetExhausted})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered.Data) != 1 || filtered.Data[0].ID != prefix+"2" {
		t.Errorf("filtered = %+v", filtered.Data)
	}
}

func TestPostgres_MigrateIsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	if err := store.migrate(context.Background()); err != nil {
		t.Errorf("second migrate failed: %v", err)
	}
}

func TestPostgres_HealthCheck(t *testing.T) {
	store := setupTestDB(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}
