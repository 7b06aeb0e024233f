package models

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel provides common persistence fields for all models
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// NewBaseModel returns a BaseModel with a fresh ID and timestamps
func NewBaseModel() BaseModel {
	now := time.Now()
	return BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}
