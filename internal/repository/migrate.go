package repository

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"github.com/tutorlink/tutorlink-api/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate brings the schema up to date. Postgres runs the versioned SQL
// migrations; sqlite, used for local runs and tests, is auto-migrated from
// the models.
func Migrate(ctx context.Context, db *gorm.DB, driver string) error {
	if driver == "sqlite" {
		return db.WithContext(ctx).AutoMigrate(
			&domain.User{},
			&domain.Admin{},
			&domain.LegalDocument{},
			&domain.LegalAcceptance{},
		)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
