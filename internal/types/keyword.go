package types

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TermStatusActive     = "active"
	TermStatusDeprecated = "deprecated"
)

// Keyword is a named concept under one category. The id is a category-scoped
// dotted path (e.g. "respiratory.oxygen_saturation"); the path shape is an
// advisory signal only, ownership is always the explicit CategoryID.
type Keyword struct {
	ID string `gorm:"type:text;primaryKey" json:"id"`

	CategoryID string    `gorm:"type:text;not null;index:idx_keyword_category" json:"category_id"`
	Category   *Category `gorm:"constraint:OnDelete:RESTRICT;foreignKey:CategoryID;references:ID" json:"category,omitempty"`

	Label       string         `gorm:"column:label;not null" json:"label"`
	Synonyms    datatypes.JSON `gorm:"column:synonyms;type:jsonb" json:"synonyms"` // []string
	Description string         `gorm:"column:description" json:"description,omitempty"`
	Status      string         `gorm:"column:status;not null;default:active" json:"status"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Keyword) TableName() string { return "keyword" }
