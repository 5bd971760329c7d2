package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ClassifyCallLog is an audit row per classifier call: what was sent, what
// came back, and how the reconciler disposed of it.
type ClassifyCallLog struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	DocumentID uuid.UUID `gorm:"type:uuid;not null;index:idx_classify_call_document" json:"document_id"`
	CategoryID string    `gorm:"type:text;not null;index:idx_classify_call_category" json:"category_id"`

	Model     string         `gorm:"column:model" json:"model"`
	Request   datatypes.JSON `gorm:"column:request;type:jsonb" json:"request,omitempty"`
	Response  datatypes.JSON `gorm:"column:response;type:jsonb" json:"response,omitempty"`
	Outcome   datatypes.JSON `gorm:"column:outcome;type:jsonb" json:"outcome,omitempty"` // reconciliation result summary
	LatencyMS int64          `gorm:"column:latency_ms" json:"latency_ms"`
	Error     string         `gorm:"column:error" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ClassifyCallLog) TableName() string { return "classify_call_log" }
