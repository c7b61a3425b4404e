// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Base model for locally owned reference rows
type BaseModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RemoteModel is used by rows whose identifier is assigned by the commerce
// platform. Local and remote ids must stay identical.
type RemoteModel struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
}

// Enums
type Framing string

const (
	FramingBlack    Framing = "Black"
	FramingUnframed Framing = "Unframed"
)

// Framings is the fixed framing set in generation order.
var Framings = []Framing{FramingBlack, FramingUnframed}

func (f Framing) String() string {
	return string(f)
}

type AssetTaskStatus string

const (
	AssetTaskStatusPending   AssetTaskStatus = "pending"
	AssetTaskStatusRunning   AssetTaskStatus = "running"
	AssetTaskStatusSucceeded AssetTaskStatus = "succeeded"
	AssetTaskStatusFailed    AssetTaskStatus = "failed"
)

func (s AssetTaskStatus) Done() bool {
	return s == AssetTaskStatusSucceeded || s == AssetTaskStatusFailed
}

type AssetTaskKind string

const (
	AssetTaskKindPrint AssetTaskKind = "print_assets"
)
