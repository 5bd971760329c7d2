package types

import (
	"time"

	"github.com/google/uuid"
)

// Evidence stores the excerpt that justified tagging a document with a term.
// It follows its term through migrations: repointing a DocumentTerm repoints
// the matching evidence rows in the same transaction.
type Evidence struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	DocumentID uuid.UUID `gorm:"type:uuid;not null;index:idx_evidence_document" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	KeywordID    string  `gorm:"type:text;not null;index:idx_evidence_keyword" json:"keyword_id"`
	SubkeywordID *string `gorm:"type:text" json:"subkeyword_id,omitempty"`

	Snippet string `gorm:"column:snippet;not null" json:"snippet"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Evidence) TableName() string { return "evidence" }
