package codec

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Store persists Export snapshots to Postgres, giving operators an
// auditable history of rotation/gateway configuration exports beyond
// whatever a single in-memory snapshot holds. This is a supplemented
// feature beyond the pure in-memory ExportCodec of spec §4.13, grounded on
// the reference pack's jmoiron/sqlx + lib/pq + golang-migrate/migrate
// stack for Postgres-backed persistence.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an already-open *sql.DB (so callers, and tests, can
// substitute a sqlmock connection) as a *sqlx.DB-backed Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// Migrate applies pending schema migrations from migrationsDir against the
// store's connection.
func (s *Store) Migrate(migrationsDir string) error {
	driver, err := postgres.WithInstance(s.db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("codec: building migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("codec: loading migrations: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("codec: applying migrations: %w", err)
	}
	return nil
}

// SaveExport inserts one export snapshot, returning its generated ID.
func (s *Store) SaveExport(ctx context.Context, export Export) (int64, error) {
	raw, err := Serialize(export)
	if err != nil {
		return 0, err
	}

	var id int64
	row := s.db.QueryRowxContext(ctx,
		`INSERT INTO crag_exports (codec_version, registry_version, payload) VALUES ($1, $2, $3) RETURNING id`,
		export.CodecVersion, export.RegistryVersion, raw,
	)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("codec: saving export: %w", err)
	}
	return id, nil
}

// LoadExport fetches and version-checks a previously saved export by ID.
func (s *Store) LoadExport(ctx context.Context, id int64) (*Export, error) {
	var raw []byte
	err := s.db.QueryRowxContext(ctx, `SELECT payload FROM crag_exports WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("codec: loading export %d: %w", id, err)
	}
	return Import(raw)
}

// LatestExportID returns the most recently saved export's ID, or 0 if the
// table is empty.
func (s *Store) LatestExportID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := s.db.QueryRowxContext(ctx, `SELECT max(id) FROM crag_exports`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("codec: querying latest export: %w", err)
	}
	if !id.Valid {
		return 0, nil
	}
	return id.Int64, nil
}
