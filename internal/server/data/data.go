// Package data provides the persistence layer for key records, audit
// entries, and the database encryption key.
package data

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/keyward/keyward/internal"
	"github.com/keyward/keyward/internal/logging"
	"github.com/keyward/keyward/internal/server/models"
	"github.com/keyward/keyward/secrets"
	"github.com/keyward/keyward/uid"
)

type NewDBOptions struct {
	// EncryptionKeyProvider decrypts the database encryption key at startup.
	// When nil, field encryption is not configured; only tests that set
	// models.SkipSymmetricKey should do that.
	EncryptionKeyProvider secrets.SymmetricKeyProvider
	// RootKeyID identifies the root key protecting the database encryption
	// key on the provider.
	RootKeyID string
}

// NewDB creates a new database connection, runs migrations, and loads the
// database encryption key.
func NewDB(connection gorm.Dialector, options NewDBOptions) (*gorm.DB, error) {
	db, err := newRawDB(connection)
	if err != nil {
		return nil, fmt.Errorf("db conn: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	if options.EncryptionKeyProvider != nil {
		if err := loadDBKey(db, options.EncryptionKeyProvider, options.RootKeyID); err != nil {
			return nil, fmt.Errorf("load DB key failed: %w", err)
		}
	}

	return db, nil
}

// newRawDB creates a new database connection without running migrations.
func newRawDB(connection gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(connection, &gorm.Config{
		Logger: logging.NewDatabaseLogger(time.Second),
	})
	if err != nil {
		return nil, err
	}

	if connection.Name() == "sqlite" {
		// avoid issues with concurrent writes by telling gorm
		// not to open multiple connections in the connection pool
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("getting db driver: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.EncryptionKey{},
		&models.APIKey{},
		&models.AuditEntry{},
	)
}

func NewSQLiteDriver(connection string) (gorm.Dialector, error) {
	if !strings.HasPrefix(connection, "file::memory") {
		if err := os.MkdirAll(path.Dir(connection), os.ModePerm); err != nil {
			return nil, err
		}
	}
	uri, err := url.Parse(connection)
	if err != nil {
		return nil, err
	}
	query := uri.Query()
	query.Add("_journal_mode", "WAL")
	uri.RawQuery = query.Encode()
	connection = uri.String()

	return sqlite.Open(connection), nil
}

func NewPostgresDriver(connection string) (gorm.Dialector, error) {
	return postgres.Open(connection), nil
}

// SelectorFunc scopes a query.
type SelectorFunc func(db *gorm.DB) *gorm.DB

func ByID(id uid.ID) SelectorFunc {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	}
}

func ByOwner(owner string) SelectorFunc {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_id = ?", owner)
	}
}

func ByProvider(provider string) SelectorFunc {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("provider = ?", provider)
	}
}

func ByActive() SelectorFunc {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("is_active = ?", true)
	}
}

func get[T models.Modelable](db *gorm.DB, selectors ...SelectorFunc) (*T, error) {
	for _, selector := range selectors {
		db = selector(db)
	}

	result := new(T)
	if err := db.Model((*T)(nil)).First(result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrNotFound
		}

		return nil, err
	}

	return result, nil
}

func list[T models.Modelable](db *gorm.DB, selectors ...SelectorFunc) ([]T, error) {
	db = db.Order("id ASC")
	for _, selector := range selectors {
		db = selector(db)
	}

	result := make([]T, 0)
	if err := db.Model((*T)(nil)).Find(&result).Error; err != nil {
		return nil, err
	}

	return result, nil
}

func add[T models.Modelable](db *gorm.DB, model *T) error {
	err := db.Create(model).Error
	return handleError(err)
}

func save[T models.Modelable](db *gorm.DB, model *T) error {
	err := db.Save(model).Error
	return handleError(err)
}

// lockForUpdate takes a row lock so that read-modify-write sequences on a
// single key are serialized across concurrent writers. SQLite has no row
// locks; it serializes through its single connection instead.
func lockForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

type UniqueConstraintError struct {
	Table  string
	Column string
}

func (e UniqueConstraintError) Error() string {
	table := strings.TrimSuffix(e.Table, "s")
	if table == "" {
		return "value already exists"
	}

	if e.Column == "" {
		return fmt.Sprintf("a %v with that value already exists", table)
	}
	return fmt.Sprintf("a %v with that %v already exists", table, e.Column)
}

func (e UniqueConstraintError) Is(other error) bool {
	// nolint:errorlint // comparing with == is correct here, the caller uses Unwrap.
	return other == internal.ErrDuplicate
}

// handleError looks for well known DB errors. If the error is recognized it
// is translated into a UniqueConstraintError so that calling code can
// inspect the error.
func handleError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgerrcode.UniqueViolation {
			return UniqueConstraintError{Table: pgErr.TableName, Column: pgErr.ColumnName}
		}
	}

	// https://sqlite.org/src/file?name=ext/rtree/rtree.c:
	// pRtree->base.zErrMsg = sqlite3_mprintf(
	//     "UNIQUE constraint failed: %s.%s", pRtree->zName, zCol
	// );
	if strings.HasPrefix(err.Error(), "UNIQUE constraint failed:") {
		fields := strings.FieldsFunc(err.Error(), func(r rune) bool {
			return unicode.IsSpace(r) || r == '.'
		})

		// fields = [UNIQUE, constraint, failed:, <table>, <column>]
		if len(fields) == 5 {
			return UniqueConstraintError{Table: fields[3], Column: fields[4]}
		}

		logging.Warnf("unhandled unique constraint error format: %q", err.Error())
		return UniqueConstraintError{}
	}

	return err
}
