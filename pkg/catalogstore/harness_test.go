package catalogstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// testHarness boots a single shared Postgres container for this
// package's integration tests and migrates it once, the same
// once.Do+testcontainers pattern as the teacher's pkg/fixgres/fixgres.go.
var (
	harnessOnce sync.Once
	harnessDB   *sql.DB
	harnessErr  error
	harnessMu   sync.Mutex
	container   *postgres.PostgresContainer
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping catalogstore integration test in -short mode")
	}

	harnessOnce.Do(func() {
		ctx := context.Background()
		c, err := postgres.Run(ctx,
			"docker.io/postgres:16-alpine",
			postgres.WithDatabase("lineage"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("pass"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			harnessErr = err
			return
		}
		container = c

		host, _ := c.Host(ctx)
		port, _ := c.MappedPort(ctx, "5432/tcp")
		connString := fmt.Sprintf("postgres://postgres:pass@%s:%s/lineage?sslmode=disable", host, port.Port())

		db, err := sql.Open("pgx", connString)
		if err != nil {
			harnessErr = err
			return
		}
		if err := Migrate(db); err != nil {
			harnessErr = err
			return
		}
		harnessDB = db
	})
	if harnessErr != nil {
		t.Fatalf("booting catalog store harness: %v", harnessErr)
	}

	harnessMu.Lock()
	t.Cleanup(func() {
		_, _ = harnessDB.Exec(`TRUNCATE sources, schemas, tables, columns, jobs, job_executions, column_lineage RESTART IDENTITY CASCADE`)
		harnessMu.Unlock()
	})

	return New(harnessDB)
}

func TestMain(m *testing.M) {
	code := m.Run()
	if container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(ctx)
	}
	os.Exit(code)
}
