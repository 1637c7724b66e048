package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/retailrag/core"
	"github.com/poiesic/retailrag/storage"
	"golang.org/x/oauth2"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	defaultBatchSize       = 200
	defaultMaxOpenConns    = 10
	defaultConnMaxLifetime = 45 * time.Minute
)

// Store is the Postgres-backed catalog store.
type Store struct {
	db        *gorm.DB
	sqlDB     *sql.DB
	dimension int
	batchSize int
	logger    *slog.Logger
	closed    atomic.Bool
}

var _ storage.CatalogStore = (*Store)(nil)

type options struct {
	database        string
	dimension       int
	tokens          oauth2.TokenSource
	batchSize       int
	maxOpenConns    int
	connMaxLifetime time.Duration
	logger          *slog.Logger
}

// Option configures a Store or Admin connection.
type Option func(*options) error

// WithDatabase connects to name instead of the database in the URI.
func WithDatabase(name string) Option {
	return func(o *options) error {
		if err := storage.ValidateIdentifier(name); err != nil {
			return err
		}
		o.database = name
		return nil
	}
}

// WithDimension sets the width of the vector columns.
func WithDimension(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return ErrInvalidDimension
		}
		o.dimension = n
		return nil
	}
}

// WithTokenSource supplies the password for every new connection. Use
// NewIAMTokenSource for IAM database auth or StaticPassword for local work.
// Without one the URI's own credentials are used.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(o *options) error {
		o.tokens = ts
		return nil
	}
}

// WithBatchSize sets how many rows go into one INSERT during a replace.
func WithBatchSize(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		o.batchSize = n
		return nil
	}
}

// WithPool bounds the connection pool. lifetime must stay below the
// credential lifetime so no pooled connection outlives its token.
func WithPool(maxOpen int, lifetime time.Duration) Option {
	return func(o *options) error {
		if maxOpen <= 0 || lifetime <= 0 {
			return fmt.Errorf("invalid pool settings: max open %d, lifetime %s", maxOpen, lifetime)
		}
		o.maxOpenConns = maxOpen
		o.connMaxLifetime = lifetime
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}

func buildOptions(opts []Option) (*options, error) {
	o := &options{
		dimension:       core.DefaultEmbeddingDimension,
		batchSize:       defaultBatchSize,
		maxOpenConns:    defaultMaxOpenConns,
		connMaxLifetime: defaultConnMaxLifetime,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// connect opens and pings a pooled gorm handle over the IAM connector.
func connect(ctx context.Context, uri string, o *options) (*gorm.DB, *sql.DB, error) {
	if uri == "" {
		return nil, nil, ErrURIRequired
	}
	connector, err := newIAMConnector(uri, o.tokens)
	if err != nil {
		return nil, nil, err
	}
	if o.database != "" {
		connector.dsn = withDatabase(connector.dsn, o.database)
	}

	sqlDB := sql.OpenDB(connector)
	sqlDB.SetMaxOpenConns(o.maxOpenConns)
	sqlDB.SetMaxIdleConns(o.maxOpenConns)
	sqlDB.SetConnMaxLifetime(o.connMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, nil, classify("connect", err)
	}

	db, err := gorm.Open(gormpg.New(gormpg.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 newGormLogger(o.logger),
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	if err != nil {
		sqlDB.Close()
		return nil, nil, classify("connect", err)
	}
	return db, sqlDB, nil
}

// Open connects to the catalog database at uri.
func Open(ctx context.Context, uri string, opts ...Option) (*Store, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	db, sqlDB, err := connect(ctx, uri, o)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:        db,
		sqlDB:     sqlDB,
		dimension: o.dimension,
		batchSize: o.batchSize,
		logger:    o.logger.With("component", "catalog-store"),
	}, nil
}

// ReplaceTable builds products and indexes in a staging table and swaps it
// in for table inside one transaction.
func (s *Store) ReplaceTable(ctx context.Context, table string, products []*core.Product, indexes ...storage.IndexSpec) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}
	if err := storage.ValidateIdentifier(table); err != nil {
		return err
	}
	staging, err := stagingName(table)
	if err != nil {
		return err
	}
	indexSQL := make([]string, len(indexes))
	for i, spec := range indexes {
		if indexSQL[i], err = createIndexSQL(staging, stagingIndexName(spec.Name), spec); err != nil {
			return err
		}
	}

	rows := make([]catalogRow, len(products))
	seen := make(map[string]struct{}, len(products))
	for i, p := range products {
		if err := core.ValidateProduct(p, s.dimension); err != nil {
			return fmt.Errorf("%w: %v", core.ErrSchema, err)
		}
		if _, dup := seen[p.UniqID]; dup {
			return fmt.Errorf("%w: duplicate uniq_id %s", core.ErrSchema, p.UniqID)
		}
		seen[p.UniqID] = struct{}{}
		rows[i] = toRow(p, i)
	}

	start := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stmts := []string{
			fmt.Sprintf("DROP TABLE IF EXISTS %s", quote(staging)),
			createTableSQL(staging, s.dimension),
		}
		for _, stmt := range stmts {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		if len(rows) > 0 {
			if err := tx.Table(staging).CreateInBatches(rows, s.batchSize).Error; err != nil {
				return err
			}
		}
		for _, stmt := range append(indexSQL, swapSQL(table, staging, indexes)...) {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return classify("replace table", err)
	}

	s.logger.Info("catalog table replaced",
		"table", table,
		"rows", len(rows),
		"indexes", len(indexes),
		"elapsed", time.Since(start))
	return nil
}

// CreateIndex drops and rebuilds one index on an existing table.
func (s *Store) CreateIndex(ctx context.Context, table string, spec storage.IndexSpec) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}
	if err := storage.ValidateIdentifier(table); err != nil {
		return err
	}
	create, err := createIndexSQL(table, spec.Name, spec)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(fmt.Sprintf("DROP INDEX IF EXISTS %s", quote(spec.Name))).Error; err != nil {
			return err
		}
		return tx.Exec(create).Error
	})
	if err != nil {
		return classify("create index", err)
	}
	s.logger.Info("index built", "table", table, "index", spec.Name, "method", spec.Method, "leaves", spec.NumLeaves)
	return nil
}

// Search returns the k rows closest to vector on column.
func (s *Store) Search(ctx context.Context, table, column string, k int, vector []float32) ([]core.Retrieved, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: k must not be negative", storage.ErrInvalidQuery)
	}
	if !storage.IsEmbeddingColumn(column) {
		return nil, fmt.Errorf("%w: %q is not an embedding column", storage.ErrInvalidQuery, column)
	}
	if err := storage.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	if k == 0 {
		return []core.Retrieved{}, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, want %d", core.ErrSchema, len(vector), s.dimension)
	}

	v := pgvector.NewVector(vector)
	var rows []searchRow
	if err := s.db.WithContext(ctx).Raw(searchSQL(table, column), v, v, k).Scan(&rows).Error; err != nil {
		return nil, classify("search", err)
	}
	hits := make([]core.Retrieved, len(rows))
	for i, r := range rows {
		hits[i] = r.retrieved()
	}
	return hits, nil
}

// ListIDs returns every uniq_id in insertion order.
func (s *Store) ListIDs(ctx context.Context, table string) ([]string, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	if err := storage.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	var ids []string
	if err := s.db.WithContext(ctx).Raw(listIDsSQL(table)).Scan(&ids).Error; err != nil {
		return nil, classify("list ids", err)
	}
	return ids, nil
}

// EnableExtensions creates the vector extension and the ANN extension for method.
func (s *Store) EnableExtensions(ctx context.Context, method storage.IndexMethod) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}
	stmts, err := extensionSQL(method)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return classify("enable extensions", err)
		}
	}
	return nil
}

// Ping checks a pooled connection.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}
	return classify("ping", s.sqlDB.PingContext(ctx))
}

// Close closes the pool. Further calls return storage.ErrStorageClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.sqlDB.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
