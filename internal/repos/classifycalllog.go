package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medcurio/taxonomy-backend/internal/logger"
	"github.com/medcurio/taxonomy-backend/internal/types"
)

type ClassifyCallLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.ClassifyCallLog) error
	ListByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.ClassifyCallLog, error)
}

type classifyCallLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClassifyCallLogRepo(db *gorm.DB, baseLog *logger.Logger) ClassifyCallLogRepo {
	return &classifyCallLogRepo{
		db:  db,
		log: baseLog.With("repo", "ClassifyCallLogRepo"),
	}
}

func (r *classifyCallLogRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.ClassifyCallLog) error {
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

func (r *classifyCallLogRepo) ListByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.ClassifyCallLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil {
		return nil, nil
	}
	var rows []*types.ClassifyCallLog
	err := transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
