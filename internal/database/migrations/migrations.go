package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"ms-booking/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// SchemaVersion is the last migration that only changes schema; later files seed data.
const SchemaVersion uint = 1

const defaultTable = "booking_schema_migrations"

// Runner applies the SQL files in a migrations directory to the ledger database. It
// holds its own connection because closing the migrator closes the database handle.
type Runner struct {
	dsn   string
	db    *sql.DB
	dir   string
	table string
	log   *logger.Logger

	m *migrate.Migrate
}

type Option func(*Runner)

func WithDir(dir string) Option {
	return func(r *Runner) {
		if dir != "" {
			r.dir = dir
		}
	}
}

// WithTable overrides the version-tracking table, for databases shared with other services.
func WithTable(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.table = name
		}
	}
}

func NewRunner(dsn string, log *logger.Logger, opts ...Option) *Runner {
	r := &Runner{dsn: dsn, dir: "./migrations", table: defaultTable, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) open() error {
	if r.m != nil {
		return nil
	}
	if _, err := os.Stat(r.dir); err != nil {
		return fmt.Errorf("migrations directory %s: %w", r.dir, err)
	}

	db, err := sql.Open("postgres", r.dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: r.table})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("create postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+r.dir, "postgres", driver)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("create migrator: %w", err)
	}
	r.db, r.m = db, m
	return nil
}

// Up migrates to SchemaVersion, or to the newest file when withSeed is set. A dirty
// version left by a crashed run is forced clean first.
func (r *Runner) Up(withSeed bool) error {
	if err := r.open(); err != nil {
		return err
	}

	version, dirty, err := r.Version()
	if err != nil {
		return err
	}
	if dirty {
		r.log.Warn("DATABASE", fmt.Sprintf("Migration %d is dirty, forcing clean", version))
		if err := r.m.Force(int(version)); err != nil {
			return fmt.Errorf("force version %d: %w", version, err)
		}
	}

	switch {
	case withSeed:
		r.log.LogDatabase("MIGRATE", r.table, "applying schema and seed migrations")
		err = r.m.Up()
	case version < SchemaVersion:
		r.log.LogDatabase("MIGRATE", r.table, fmt.Sprintf("applying schema migrations up to %d", SchemaVersion))
		err = r.m.Migrate(SchemaVersion)
	default:
		err = migrate.ErrNoChange
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	if version, _, err = r.Version(); err != nil {
		return err
	}
	r.log.LogDatabase("MIGRATE", r.table, fmt.Sprintf("at version %d", version))
	return nil
}

// Down reverts every applied migration.
func (r *Runner) Down() error {
	if err := r.open(); err != nil {
		return err
	}
	r.log.LogDatabase("MIGRATE", r.table, "reverting all migrations")
	if err := r.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("revert migrations: %w", err)
	}
	return nil
}

// Version reports the applied version; zero means nothing has been applied.
func (r *Runner) Version() (uint, bool, error) {
	if err := r.open(); err != nil {
		return 0, false, err
	}
	version, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return version, dirty, nil
}

// Close releases the migrator and its connection.
func (r *Runner) Close() error {
	if r.m == nil {
		return nil
	}
	srcErr, dbErr := r.m.Close()
	closeErr := r.db.Close()
	if errors.Is(closeErr, sql.ErrConnDone) {
		closeErr = nil
	}
	r.m, r.db = nil, nil
	return errors.Join(srcErr, dbErr, closeErr)
}
