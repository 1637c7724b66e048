package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/retailrag/storage"
	"gorm.io/gorm"
)

// Admin runs database lifecycle statements against the maintenance database
// named in the URI (usually "postgres").
type Admin struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	logger *slog.Logger
}

var _ storage.Admin = (*Admin)(nil)

// OpenAdmin connects to the maintenance database at uri.
func OpenAdmin(ctx context.Context, uri string, opts ...Option) (*Admin, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	db, sqlDB, err := connect(ctx, uri, o)
	if err != nil {
		return nil, err
	}
	return &Admin{db: db, sqlDB: sqlDB, logger: o.logger.With("component", "catalog-admin")}, nil
}

// CreateDatabase drops name if present, creates it and grants data roles.
// Database DDL cannot run inside a transaction, so each statement commits
// on its own.
func (a *Admin) CreateDatabase(ctx context.Context, name string, readUsers, writeUsers []string) error {
	if err := storage.ValidateIdentifier(name); err != nil {
		return err
	}
	for _, u := range append(append([]string(nil), readUsers...), writeUsers...) {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("%w: empty principal", storage.ErrInvalidIdentifier)
		}
	}

	stmts := append(createDatabaseSQL(name), grantSQL(readUsers, writeUsers)...)
	for _, stmt := range stmts {
		if err := a.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return classify("create database", err)
		}
	}
	a.logger.Info("database created",
		"database", name,
		"readers", len(readUsers),
		"writers", len(writeUsers))
	return nil
}

// Close closes the admin connection pool.
func (a *Admin) Close() error {
	return a.sqlDB.Close()
}
