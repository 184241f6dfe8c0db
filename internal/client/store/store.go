// Package store owns the device database: it opens and migrates SQLite,
// vends repositories, runs units of work and carries queued work across
// destructive schema upgrades.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/migrations"
	"github.com/dmitrijs2005/fieldseal/internal/client/models"
	"github.com/dmitrijs2005/fieldseal/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
	"github.com/dmitrijs2005/fieldseal/internal/filex"
	"github.com/dmitrijs2005/fieldseal/internal/logging"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const (
	// SchemaVersion is the data layout this build reads and writes.
	SchemaVersion int64 = 2
	// MinInPlaceVersion is the oldest layout goose can migrate without a
	// rescue round trip.
	MinInPlaceVersion int64 = 2
)

type Options struct {
	Path      string
	RescueDir string
	Logger    logging.Logger
	Now       func() time.Time

	schemaVersion int64
}

func (o *Options) defaults() {
	if o.RescueDir == "" {
		o.RescueDir = filepath.Dir(o.Path)
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.schemaVersion == 0 {
		o.schemaVersion = SchemaVersion
	}
}

type Store struct {
	db       *sql.DB
	opts     Options
	log      logging.Logger
	deviceID string
	restored *models.RescuePayload
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// Single writer. Code inside WithTx must use the tx handle or it blocks.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Open opens the store at o.Path, migrating or rescuing as required. A
// corrupt database is wiped and recreated; the corruption is logged at error
// level. A layout that needs a rescue but cannot be exported fails Open and
// is left on disk.
func Open(ctx context.Context, o Options) (*Store, error) {
	o.defaults()
	if _, err := filex.EnsureDir(filepath.Dir(o.Path)); err != nil {
		return nil, err
	}
	db, err := openDB(o.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &Store{db: db, opts: o, log: o.Logger.With("component", "store")}

	err = s.prepare(ctx)
	if errors.Is(err, common.ErrSchemaCorruption) {
		s.log.Error(ctx, "local store is corrupt, wiping and recreating; unsynced data is lost", "path", o.Path, "error", err)
		err = s.wipe(ctx)
	}
	if err != nil {
		s.db.Close()
		return nil, err
	}
	if err := s.loadDeviceID(ctx); err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for callers that need raw SQL, such as tests.
func (s *Store) DB() *sql.DB { return s.db }

// Repos returns repositories bound to the connection pool, for reads outside
// a unit of work.
func (s *Store) Repos() *Repos { return NewRepos(s.db) }

func (s *Store) DeviceID() string { return s.deviceID }

// Restored returns the rescue payload re-imported by Open, or nil when the
// store opened without a rescue round trip.
func (s *Store) Restored() *models.RescuePayload { return s.restored }

// WithTx runs fn in a transaction. fn must use only the repositories it is
// given.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, r *Repos) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, NewRepos(tx))
	})
}

func (s *Store) prepare(ctx context.Context) error {
	if err := s.integrityCheck(ctx); err != nil {
		return err
	}

	if path := s.rescuePath(); fileExists(path) {
		s.log.Warn(ctx, "found rescue payload from an interrupted upgrade", "path", path)
		return s.rebuild(ctx)
	}

	stored, ok, err := s.storedVersion(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrSchemaCorruption, err)
	}
	if ok && (stored > s.opts.schemaVersion || stored < MinInPlaceVersion) {
		s.log.Warn(ctx, "schema requires destructive upgrade", "stored", stored, "current", s.opts.schemaVersion)
		// Not corruption: the file must stay on disk for another attempt.
		payload, err := s.ExportRescue(ctx)
		if err != nil {
			return fmt.Errorf("rescue export: %w", err)
		}
		if err := s.writeRescue(payload); err != nil {
			return err
		}
		return s.rebuild(ctx)
	}

	if err := migrations.Up(ctx, s.db); err != nil {
		return err
	}
	return s.writeVersion(ctx)
}

func (s *Store) integrityCheck(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("%w: %v", common.ErrSchemaCorruption, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: integrity check: %s", common.ErrSchemaCorruption, result)
	}
	return nil
}

func (s *Store) storedVersion(ctx context.Context) (int64, bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'metadata'`).Scan(&n)
	if err != nil || n == 0 {
		return 0, false, err
	}
	return metadata.NewSQLiteRepository(s.db).SchemaVersion(ctx)
}

func (s *Store) writeVersion(ctx context.Context) error {
	return metadata.NewSQLiteRepository(s.db).SetSchemaVersion(ctx, s.opts.schemaVersion)
}

// rebuild drops every table, migrates from scratch and re-imports the rescue
// payload from the side file.
func (s *Store) rebuild(ctx context.Context) error {
	p, err := s.readRescue()
	if err != nil {
		return err
	}
	if err := s.dropAll(ctx); err != nil {
		return err
	}
	if err := migrations.Up(ctx, s.db); err != nil {
		return err
	}
	if err := s.writeVersion(ctx); err != nil {
		return err
	}
	if err := s.ImportRescue(ctx, p); err != nil {
		return fmt.Errorf("rescue import: %w", err)
	}
	s.log.Info(ctx, "rescue payload restored",
		"queued", len(p.Queue), "failed", len(p.Failed), "jobs", len(p.Jobs), "drafts", len(p.Drafts), "conflicts", len(p.Conflicts))
	s.restored = p
	return s.removeRescue()
}

func (s *Store) dropAll(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS "`+t+`"`); err != nil {
			return fmt.Errorf("drop %s: %w", t, err)
		}
	}
	return nil
}

// wipe deletes the database file and starts empty. It is reserved for
// corruption; upgrades always go through the rescue path.
func (s *Store) wipe(ctx context.Context) error {
	s.db.Close()
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(s.opts.Path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("wipe store: %w", err)
		}
	}
	db, err := openDB(s.opts.Path)
	if err != nil {
		return fmt.Errorf("reopen store: %w", err)
	}
	s.db = db
	if err := migrations.Up(ctx, s.db); err != nil {
		return err
	}
	return s.writeVersion(ctx)
}

func (s *Store) loadDeviceID(ctx context.Context) error {
	md := metadata.NewSQLiteRepository(s.db)
	id, err := md.DeviceID(ctx)
	if err != nil {
		return err
	}
	if id == "" {
		id = uuid.NewString()
		if err := md.SetDeviceID(ctx, id); err != nil {
			return err
		}
	}
	s.deviceID = id
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
