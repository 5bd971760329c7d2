package types

import (
	"time"

	"github.com/google/uuid"
)

// DocumentTerm tags a document with a keyword, and optionally one of its
// subkeywords. A nil SubkeywordID is a keyword-level tag. The composite unique
// index keeps one row per (document, keyword, subkeyword); the keyword-level
// case (NULL subkeyword) is additionally covered by a partial unique index
// created in db.AutoMigrateAll, since SQL treats NULLs as distinct.
type DocumentTerm struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	DocumentID uuid.UUID `gorm:"type:uuid;not null;index:idx_document_term,unique,priority:1" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	KeywordID    string  `gorm:"type:text;not null;index:idx_document_term,unique,priority:2" json:"keyword_id"`
	SubkeywordID *string `gorm:"type:text;index:idx_document_term,unique,priority:3" json:"subkeyword_id,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (DocumentTerm) TableName() string { return "document_term" }
