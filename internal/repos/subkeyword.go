package repos

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/medcurio/taxonomy-backend/internal/logger"
	"github.com/medcurio/taxonomy-backend/internal/types"
)

type SubkeywordRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Subkeyword) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.Subkeyword, error)
	ListByCategory(ctx context.Context, tx *gorm.DB, categoryID string) ([]*types.Subkeyword, error)
	ListByKeyword(ctx context.Context, tx *gorm.DB, keywordID string) ([]*types.Subkeyword, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Subkeyword, error)
	UpdateSynonyms(ctx context.Context, tx *gorm.DB, id string, synonyms []string) error
	UpdateStatus(ctx context.Context, tx *gorm.DB, id string, status string) error
	UpdateParent(ctx context.Context, tx *gorm.DB, id string, newKeywordID string) error
	Delete(ctx context.Context, tx *gorm.DB, id string) error
}

type subkeywordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubkeywordRepo(db *gorm.DB, baseLog *logger.Logger) SubkeywordRepo {
	return &subkeywordRepo{
		db:  db,
		log: baseLog.With("repo", "SubkeywordRepo"),
	}
}

func (r *subkeywordRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Subkeyword) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if row.Synonyms == nil {
			row.Synonyms = MarshalSynonyms(nil)
		}
		if row.Status == "" {
			row.Status = types.TermStatusActive
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
	}
	return transaction.WithContext(ctx).Create(rows).Error
}

func (r *subkeywordRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.Subkeyword, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return nil, nil
	}
	var row types.Subkeyword
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

func (r *subkeywordRepo) ListByCategory(ctx context.Context, tx *gorm.DB, categoryID string) ([]*types.Subkeyword, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Subkeyword
	err := transaction.WithContext(ctx).
		Where("category_id = ?", categoryID).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *subkeywordRepo) ListByKeyword(ctx context.Context, tx *gorm.DB, keywordID string) ([]*types.Subkeyword, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Subkeyword
	err := transaction.WithContext(ctx).
		Where("keyword_id = ?", keywordID).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *subkeywordRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Subkeyword, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Subkeyword
	err := transaction.WithContext(ctx).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *subkeywordRepo) UpdateSynonyms(ctx context.Context, tx *gorm.DB, id string, synonyms []string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return fmt.Errorf("subkeyword id is empty")
	}
	return transaction.WithContext(ctx).
		Model(&types.Subkeyword{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"synonyms":   MarshalSynonyms(synonyms),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *subkeywordRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id string, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return fmt.Errorf("subkeyword id is empty")
	}
	return transaction.WithContext(ctx).
		Model(&types.Subkeyword{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *subkeywordRepo) UpdateParent(ctx context.Context, tx *gorm.DB, id string, newKeywordID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" || newKeywordID == "" {
		return fmt.Errorf("subkeyword id and new keyword id are required")
	}
	return transaction.WithContext(ctx).
		Model(&types.Subkeyword{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"keyword_id": newKeywordID,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *subkeywordRepo) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return fmt.Errorf("subkeyword id is empty")
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Subkeyword{}).Error
}
