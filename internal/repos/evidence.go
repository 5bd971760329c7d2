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

type EvidenceRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Evidence) error
	ListByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.Evidence, error)
	ListByKeyword(ctx context.Context, tx *gorm.DB, keywordID string) ([]*types.Evidence, error)
	ListKeywordLevelByKeyword(ctx context.Context, tx *gorm.DB, keywordID string) ([]*types.Evidence, error)
	Exists(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, keywordID string, subkeywordID *string, snippet string) (bool, error)
	UpdateTarget(ctx context.Context, tx *gorm.DB, id uuid.UUID, keywordID string, subkeywordID *string) error
}

type evidenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEvidenceRepo(db *gorm.DB, baseLog *logger.Logger) EvidenceRepo {
	return &evidenceRepo{
		db:  db,
		log: baseLog.With("repo", "EvidenceRepo"),
	}
}

func (r *evidenceRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Evidence) error {
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
	}
	return transaction.WithContext(ctx).Create(rows).Error
}

func (r *evidenceRepo) ListByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.Evidence, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil {
		return nil, nil
	}
	var rows []*types.Evidence
	err := transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("keyword_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *evidenceRepo) ListByKeyword(ctx context.Context, tx *gorm.DB, keywordID string) ([]*types.Evidence, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Evidence
	err := transaction.WithContext(ctx).
		Where("keyword_id = ?", keywordID).
		Order("document_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *evidenceRepo) ListKeywordLevelByKeyword(ctx context.Context, tx *gorm.DB, keywordID string) ([]*types.Evidence, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Evidence
	err := transaction.WithContext(ctx).
		Where("keyword_id = ? AND subkeyword_id IS NULL", keywordID).
		Order("document_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *evidenceRepo) Exists(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, keywordID string, subkeywordID *string, snippet string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	query := transaction.WithContext(ctx).
		Model(&types.Evidence{}).
		Where("document_id = ? AND keyword_id = ? AND snippet = ?", documentID, keywordID, snippet)
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

func (r *evidenceRepo) UpdateTarget(ctx context.Context, tx *gorm.DB, id uuid.UUID, keywordID string, subkeywordID *string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || keywordID == "" {
		return fmt.Errorf("evidence id and keyword id are required")
	}
	return transaction.WithContext(ctx).
		Model(&types.Evidence{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"keyword_id":    keywordID,
			"subkeyword_id": subkeywordID,
		}).Error
}
