package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/medcurio/taxonomy-backend/internal/logger"
	"github.com/medcurio/taxonomy-backend/internal/types"
	"github.com/medcurio/taxonomy-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	log.Info("Loading environment variables...")
	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "taxonomy", log)
	log.Debug("Environment variables loaded")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("Failed to connect to Postgres: %w", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		log.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("Failed to enable uuid-ossp extension: %w", err)
	}
	log.Info("uuid-ossp extension enabled")

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.User{},
		&types.UserToken{},
		&types.Category{},
		&types.Keyword{},
		&types.Subkeyword{},
		&types.Document{},
		&types.DocumentTerm{},
		&types.Evidence{},
		&types.ClassifyCallLog{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	s.log.Info("Configuring foreign key relationships for postgres tables...")
	constraints := []struct {
		name string
		stmt string
	}{
		{"fk_user_token_user_id", `
			ALTER TABLE "user_token"
			ADD CONSTRAINT "fk_user_token_user_id"
			FOREIGN KEY ("user_id")
			REFERENCES "user"("id")
			ON DELETE CASCADE
		`},
		{"fk_keyword_category_id", `
			ALTER TABLE "keyword"
			ADD CONSTRAINT "fk_keyword_category_id"
			FOREIGN KEY ("category_id")
			REFERENCES "category"("id")
			ON DELETE RESTRICT
		`},
		{"fk_subkeyword_keyword_id", `
			ALTER TABLE "subkeyword"
			ADD CONSTRAINT "fk_subkeyword_keyword_id"
			FOREIGN KEY ("keyword_id")
			REFERENCES "keyword"("id")
			ON DELETE RESTRICT
		`},
		{"fk_document_term_document_id", `
			ALTER TABLE "document_term"
			ADD CONSTRAINT "fk_document_term_document_id"
			FOREIGN KEY ("document_id")
			REFERENCES "document"("id")
			ON DELETE CASCADE
		`},
		{"fk_evidence_document_id", `
			ALTER TABLE "evidence"
			ADD CONSTRAINT "fk_evidence_document_id"
			FOREIGN KEY ("document_id")
			REFERENCES "document"("id")
			ON DELETE CASCADE
		`},
	}
	for _, c := range constraints {
		var exists bool
		if err := s.db.Raw(
			`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = ?)`, c.name,
		).Scan(&exists).Error; err != nil {
			return fmt.Errorf("Failed to check constraint %s: %w", c.name, err)
		}
		if exists {
			continue
		}
		if err := s.db.Exec(c.stmt).Error; err != nil {
			return fmt.Errorf("Failed to add %s: %w", c.name, err)
		}
	}

	// SQL NULLs are pairwise distinct, so the composite unique index alone
	// would admit unlimited duplicate keyword-level rows. A partial index
	// closes that hole for the subkeyword-less case.
	if err := s.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS "idx_document_term_keyword_level"
		ON "document_term" ("document_id", "keyword_id")
		WHERE "subkeyword_id" IS NULL
	`).Error; err != nil {
		return fmt.Errorf("Failed to add idx_document_term_keyword_level: %w", err)
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
