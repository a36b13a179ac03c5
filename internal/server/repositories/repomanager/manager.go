package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/filex"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// Backend names reported by Store.Backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

const sqlitePrefix = "sqlite:"

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
}

// Store is an opened credential store together with the handle that backs it.
type Store struct {
	Users   users.Repository
	Backend string
	db      *sql.DB
}

// Close releases the underlying database handle, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// sqlOpen is a seam for testing sql.Open.
var sqlOpen = sql.Open

// Open selects a backend by DSN:
//
//	""  or "memory"                    in-process map
//	"sqlite:<path>"                    modernc SQLite file
//	"postgres://..." / "postgresql://" PostgreSQL through pgx
//
// When migrate is true pending schema migrations are applied first.
func Open(ctx context.Context, dsn string, migrate bool) (*Store, error) {
	var (
		m       RepositoryManager
		driver  string
		source  string
		backend string
	)

	switch {
	case dsn == "" || dsn == BackendMemory:
		return &Store{Users: users.NewMemoryRepository(), Backend: BackendMemory}, nil
	case strings.HasPrefix(dsn, sqlitePrefix):
		m, driver, source, backend = NewSQLiteRepositoryManager(), "sqlite", strings.TrimPrefix(dsn, sqlitePrefix), BackendSQLite
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		m, driver, source, backend = NewPostgresRepositoryManager(), "pgx", dsn, BackendPostgres
	default:
		return nil, errors.New("unsupported database dsn")
	}

	if source == "" {
		return nil, errors.New("empty sqlite path")
	}
	if backend == BackendSQLite {
		if _, err := filex.EnsureParentDir(source); err != nil {
			return nil, err
		}
	}

	db, err := sqlOpen(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", backend, err)
	}
	if backend == BackendSQLite {
		// one writer keeps SQLITE_BUSY out of the request path
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", backend, err)
	}

	if migrate {
		if err := m.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Store{Users: m.Users(db), Backend: backend, db: db}, nil
}
