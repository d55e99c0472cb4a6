package models

import (
	"time"

	"gorm.io/gorm"
)

// CatalogQuestion is a stored trivia question. The room runtime copies a
// fixed set of these into memory at game start; rows are never mutated by
// gameplay.
type CatalogQuestion struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	Topic      string         `json:"topic" gorm:"index;not null"`
	Difficulty string         `json:"difficulty" gorm:"index;not null"` // easy, medium, hard
	Text       string         `json:"text" gorm:"not null"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Options []CatalogOption `json:"options,omitempty" gorm:"foreignKey:QuestionID"`
}
