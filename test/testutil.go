//go:build integration

// Package test runs the shop model against real PostgreSQL, MySQL and
// SQLite databases.
package test

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	_ "modernc.org/sqlite"

	"github.com/coregx/relmap"
	"github.com/coregx/relmap/internal/testmodel"
)

// DatabaseSetup is a seeded shop database.
type DatabaseSetup struct {
	DB        *relmap.DB
	Container testcontainers.Container
	Dialect   string
}

// Close releases the database and its container.
func (ds *DatabaseSetup) Close() {
	if ds.DB != nil {
		_ = ds.DB.Close()
	}
	if ds.Container != nil {
		_ = ds.Container.Terminate(context.Background())
	}
}

// shopScripts adapts the shop schema and seed to a dialect.
func shopScripts(dialect string) []string {
	var r *strings.Replacer
	switch dialect {
	case "postgres":
		r = strings.NewReplacer("REAL", "DOUBLE PRECISION")
	case "mysql":
		r = strings.NewReplacer(`"groups"`, "`groups`", "REAL", "DOUBLE")
	default:
		r = strings.NewReplacer()
	}

	var out []string
	for _, script := range []string{testmodel.Schema, testmodel.Seed} {
		for _, stmt := range strings.Split(script, ";") {
			if strings.TrimSpace(stmt) != "" {
				out = append(out, r.Replace(stmt))
			}
		}
	}
	return out
}

func open(t *testing.T, driver, dsn string, container testcontainers.Container) *DatabaseSetup {
	t.Helper()
	db, err := relmap.Open(driver, dsn, testmodel.Registry(), relmap.WithMaxOpenConns(1))
	require.NoError(t, err)
	setup := &DatabaseSetup{DB: db, Container: container, Dialect: driver}
	t.Cleanup(setup.Close)

	require.NoError(t, createShop(context.Background(), db.SQLDB(), driver))
	return setup
}

func createShop(ctx context.Context, db *sql.DB, dialect string) error {
	for _, stmt := range shopScripts(dialect) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// SetupPostgres starts PostgreSQL through testcontainers, or connects to
// POSTGRES_TEST_DSN when set. The DSN database must be empty.
func SetupPostgres(t *testing.T) *DatabaseSetup {
	ctx := context.Background()
	if dsn := os.Getenv("POSTGRES_TEST_DSN"); dsn != "" {
		return open(t, "postgres", dsn, nil)
	}

	c, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("shop"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skip("Docker not available for PostgreSQL integration tests: " + err.Error())
	}
	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return open(t, "postgres", dsn, c)
}

// SetupMySQL starts MySQL through testcontainers, or connects to
// MYSQL_TEST_DSN when set. The DSN database must be empty.
func SetupMySQL(t *testing.T) *DatabaseSetup {
	ctx := context.Background()
	if dsn := os.Getenv("MYSQL_TEST_DSN"); dsn != "" {
		return open(t, "mysql", dsn, nil)
	}

	c, err := mysql.Run(ctx,
		"mysql:8.0",
		mysql.WithDatabase("shop"),
		mysql.WithUsername("user"),
		mysql.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("port: 3306  MySQL Community Server").
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skip("Docker not available for MySQL integration tests: " + err.Error())
	}
	dsn, err := c.ConnectionString(ctx)
	require.NoError(t, err)
	return open(t, "mysql", dsn, c)
}

// SetupSQLite opens an in-memory SQLite database.
func SetupSQLite(t *testing.T) *DatabaseSetup {
	return open(t, "sqlite", ":memory:", nil)
}

// setups runs fn against every database.
func setups(t *testing.T, fn func(t *testing.T, ds *DatabaseSetup)) {
	for name, setup := range map[string]func(*testing.T) *DatabaseSetup{
		"postgres": SetupPostgres,
		"mysql":    SetupMySQL,
		"sqlite":   SetupSQLite,
	} {
		t.Run(name, func(t *testing.T) {
			fn(t, setup(t))
		})
	}
}
