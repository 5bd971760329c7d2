package repos

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medcurio/taxonomy-backend/internal/logger"
	"github.com/medcurio/taxonomy-backend/internal/types"
)

type CategoryRepo interface {
	Seed(ctx context.Context, tx *gorm.DB, rows []*types.Category) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.Category, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.Category, error)
}

type categoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCategoryRepo(db *gorm.DB, baseLog *logger.Logger) CategoryRepo {
	return &categoryRepo{
		db:  db,
		log: baseLog.With("repo", "CategoryRepo"),
	}
}

// Seed inserts the bootstrap category set. Existing rows are left untouched:
// the category set is immutable at runtime, so re-running the seed is a no-op.
func (r *categoryRepo) Seed(ctx context.Context, tx *gorm.DB, rows []*types.Category) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rows).Error
}

func (r *categoryRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.Category, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return nil, nil
	}
	var row types.Category
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == "" {
		return nil, nil
	}
	return &row, nil
}

func (r *categoryRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.Category, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Category
	err := transaction.WithContext(ctx).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
