package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/restalytics/etl-engine/pkg/database"
)

// TestDB is a disposable PostgreSQL instance with the warehouse schema
// applied, shared across the integration tests of one package.
type TestDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	sharedOnce sync.Once
	sharedDB   *TestDB
	sharedErr  error
)

// SetupTestDB starts (once per test binary) a PostgreSQL container,
// runs the migrations against it and returns the shared handle. Tests
// running with -short are skipped.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	sharedOnce.Do(func() {
		sharedDB, sharedErr = startPostgres(context.Background())
	})
	if sharedErr != nil {
		t.Fatalf("failed to set up test database: %v", sharedErr)
	}
	return sharedDB
}

func startPostgres(ctx context.Context) (*TestDB, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "etl_test",
			"POSTGRES_USER":     "etl",
			"POSTGRES_PASSWORD": "etl",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, err
	}

	connStr := fmt.Sprintf("postgres://etl:etl@%s:%s/etl_test?sslmode=disable", host, port.Port())

	migrationDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer migrationDB.Close()

	if err := database.RunMigrations(migrationDB, migrationsDir(), zap.NewNop()); err != nil {
		return nil, err
	}

	db, err := database.NewConnection(ctx, &database.Config{URL: connStr})
	if err != nil {
		return nil, err
	}

	return &TestDB{Container: container, DB: db, ConnStr: connStr}, nil
}

// TruncateAll resets every warehouse table between tests.
func (tdb *TestDB) TruncateAll(ctx context.Context, t *testing.T) {
	t.Helper()

	_, err := tdb.DB.Exec(ctx, `
		TRUNCATE fact_payments, fact_orders, dim_entity, dim_time_bucket, etl_sync_tracker
		RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

func migrationsDir() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "migrations")
}
