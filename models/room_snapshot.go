package models

import (
	"time"

	"gorm.io/gorm"
)

// RoomSnapshot is a periodic or terminal dump of room state written by the
// snapshot sink. Gameplay never reads these back; they exist for external
// reporting.
type RoomSnapshot struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Pin       string         `json:"pin" gorm:"index;not null"`
	GameMode  string         `json:"game_mode" gorm:"not null"`
	Phase     string         `json:"phase" gorm:"not null"`
	Terminal  bool           `json:"terminal" gorm:"not null;default:false"`
	Payload   string         `json:"payload" gorm:"type:jsonb;not null"`
	TakenAt   time.Time      `json:"taken_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
