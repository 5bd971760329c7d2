package types

import (
	"time"
)

// Category is a fixed top-level grouping of the taxonomy. The category set is
// created once at bootstrap from the seed file and never mutated at runtime.
type Category struct {
	ID          string `gorm:"type:text;primaryKey" json:"id"`
	Label       string `gorm:"column:label;not null" json:"label"`
	Description string `gorm:"column:description" json:"description,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Category) TableName() string { return "category" }
