package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medcurio/taxonomy-backend/internal/logger"
	"github.com/medcurio/taxonomy-backend/internal/types"
)

type DocumentTermRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.DocumentTerm) error
	ListByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.DocumentTerm, error)
	ListByKeyword(ctx context.Context, tx *gorm.DB, keywordID string) ([]*types.DocumentTerm, error)
	ListKeywordLevelByKeyword(ctx context.Context, tx *gorm.DB, keywordID string) ([]*types.DocumentTerm, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.DocumentTerm, error)
	Exists(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, keywordID string, subkeywordID *string) (bool, error)
	UpdateTarget(ctx context.Context, tx *gorm.DB, id uuid.UUID, keywordID string, subkeywordID *string) error
	DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type documentTermRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentTermRepo(db *gorm.DB, baseLog *logger.Logger) DocumentTermRepo {
	return &documentTermRepo{
		db:  db,
		log: baseLog.With("repo", "DocumentTermRepo"),
	}
}

func (r *documentTermRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.DocumentTerm) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
	}
	return transaction.WithContext(ctx).Create(rows).Error
}

func (r *documentTermRepo) ListByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.DocumentTerm, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil {
		return nil, nil
	}
	var rows []*types.DocumentTerm
	err := transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("keyword_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *documentTermRepo) ListByKeyword(ctx context.Context, tx *gorm.DB, keywordID string) ([]*types.DocumentTerm, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.DocumentTerm
	err := transaction.WithContext(ctx).
		Where("keyword_id = ?", keywordID).
		Order("document_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListKeywordLevelByKeyword returns only keyword-level tags (NULL subkeyword).
// This is the split-migration guard: rows that already carry a subkeyword are
// never selected for repointing again.
func (r *documentTermRepo) ListKeywordLevelByKeyword(ctx context.Context, tx *gorm.DB, keywordID string) ([]*types.DocumentTerm, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.DocumentTerm
	err := transaction.WithContext(ctx).
		Where("keyword_id = ? AND subkeyword_id IS NULL", keywordID).
		Order("document_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *documentTermRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.DocumentTerm, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.DocumentTerm
	err := transaction.WithContext(ctx).
		Order("keyword_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *documentTermRepo) Exists(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, keywordID string, subkeywordID *string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	query := transaction.WithContext(ctx).
		Model(&types.DocumentTerm{}).
		Where("document_id = ? AND keyword_id = ?", documentID, keywordID)
	if subkeywordID == nil {
		query = query.Where("subkeyword_id IS NULL")
	} else {
		query = query.Where("subkeyword_id = ?", *subkeywordID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *documentTermRepo) UpdateTarget(ctx context.Context, tx *gorm.DB, id uuid.UUID, keywordID string, subkeywordID *string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || keywordID == "" {
		return fmt.Errorf("document term id and keyword id are required")
	}
	return transaction.WithContext(ctx).
		Model(&types.DocumentTerm{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"keyword_id":    keywordID,
			"subkeyword_id": subkeywordID,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *documentTermRepo) DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.DocumentTerm{}).Error
}
