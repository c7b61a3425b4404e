// internal/models/asset_task.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// AssetTask tracks background print-asset generation for one product.
type AssetTask struct {
	ID         uuid.UUID       `json:"id" gorm:"type:varchar(36);primaryKey"`
	ProductID  int64           `json:"product_id" gorm:"not null;index"`
	Kind       AssetTaskKind   `json:"kind" gorm:"type:varchar(20);not null"`
	Status     AssetTaskStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	Error      string          `json:"error,omitempty" gorm:"type:text"`
	Details    JSONB           `json:"details,omitempty" gorm:"type:text"`
	StartedAt  *time.Time      `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
