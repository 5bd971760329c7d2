package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DocumentStatusPending    = "pending"
	DocumentStatusClassified = "classified"
	DocumentStatusFailed     = "failed"
)

type Document struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	ExternalRef string `gorm:"column:external_ref;index:idx_document_external_ref" json:"external_ref"`
	StorageURI  string `gorm:"column:storage_uri" json:"storage_uri,omitempty"`
	ContentType string `gorm:"column:content_type" json:"content_type,omitempty"`
	Text        string `gorm:"column:text" json:"-"`
	Status      string `gorm:"column:status;not null;default:pending" json:"status"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }
