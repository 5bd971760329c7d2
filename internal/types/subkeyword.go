package types

import (
	"time"

	"gorm.io/datatypes"
)

// Subkeyword is a child concept under exactly one keyword. CategoryID is
// denormalized from the parent so category-scoped scans stay single-table.
type Subkeyword struct {
	ID string `gorm:"type:text;primaryKey" json:"id"`

	KeywordID string   `gorm:"type:text;not null;index:idx_subkeyword_keyword" json:"keyword_id"`
	Keyword   *Keyword `gorm:"constraint:OnDelete:RESTRICT;foreignKey:KeywordID;references:ID" json:"keyword,omitempty"`

	CategoryID string `gorm:"type:text;not null;index:idx_subkeyword_category" json:"category_id"`

	Label       string         `gorm:"column:label;not null" json:"label"`
	Synonyms    datatypes.JSON `gorm:"column:synonyms;type:jsonb" json:"synonyms"` // []string
	Description string         `gorm:"column:description" json:"description,omitempty"`
	Status      string         `gorm:"column:status;not null;default:active" json:"status"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Subkeyword) TableName() string { return "subkeyword" }
