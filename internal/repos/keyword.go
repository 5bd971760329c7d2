package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/medcurio/taxonomy-backend/internal/logger"
	"github.com/medcurio/taxonomy-backend/internal/types"
)

type KeywordRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Keyword) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.Keyword, error)
	ListByCategory(ctx context.Context, tx *gorm.DB, categoryID string) ([]*types.Keyword, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Keyword, error)
	UpdateSynonyms(ctx context.Context, tx *gorm.DB, id string, synonyms []string) error
	UpdateStatus(ctx context.Context, tx *gorm.DB, id string, status string) error
	Delete(ctx context.Context, tx *gorm.DB, id string) error
}

type keywordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKeywordRepo(db *gorm.DB, baseLog *logger.Logger) KeywordRepo {
	return &keywordRepo{
		db:  db,
		log: baseLog.With("repo", "KeywordRepo"),
	}
}

// MarshalSynonyms encodes a synonym list for the jsonb column. A nil slice is
// stored as an empty JSON array so every row round-trips to a non-nil slice.
func MarshalSynonyms(synonyms []string) datatypes.JSON {
	if synonyms == nil {
		synonyms = []string{}
	}
	raw, _ := json.Marshal(synonyms)
	return datatypes.JSON(raw)
}

func UnmarshalSynonyms(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return []string{}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func (r *keywordRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Keyword) error {
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

func (r *keywordRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.Keyword, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return nil, nil
	}
	var row types.Keyword
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

func (r *keywordRepo) ListByCategory(ctx context.Context, tx *gorm.DB, categoryID string) ([]*types.Keyword, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Keyword
	err := transaction.WithContext(ctx).
		Where("category_id = ?", categoryID).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *keywordRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Keyword, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Keyword
	err := transaction.WithContext(ctx).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *keywordRepo) UpdateSynonyms(ctx context.Context, tx *gorm.DB, id string, synonyms []string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return fmt.Errorf("keyword id is empty")
	}
	return transaction.WithContext(ctx).
		Model(&types.Keyword{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"synonyms":   MarshalSynonyms(synonyms),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *keywordRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id string, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return fmt.Errorf("keyword id is empty")
	}
	return transaction.WithContext(ctx).
		Model(&types.Keyword{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *keywordRepo) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return fmt.Errorf("keyword id is empty")
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Keyword{}).Error
}
