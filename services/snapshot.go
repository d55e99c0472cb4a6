package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"triviarena/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// RoomSnapshotData is the externally-visible dump of a room at one moment.
type RoomSnapshotData struct {
	Pin        string         `json:"pin"`
	GameMode   string         `json:"game_mode"`
	Phase      string         `json:"phase"`
	QIndex     int            `json:"question_index"`
	TeamScores map[string]int `json:"team_scores,omitempty"`
	Scores     map[string]int `json:"player_scores,omitempty"`
	Terminal   bool           `json:"terminal"`
	TakenAt    time.Time      `json:"taken_at"`
}

// SnapshotSink accepts periodic and terminal room-state dumps. Writes are
// dispatched off the room goroutine and failures never block gameplay.
type SnapshotSink interface {
	Write(snap RoomSnapshotData)
}

// StoreSnapshotSink mirrors every snapshot into Redis under room:<pin> and
// additionally records terminal snapshots in Postgres.
type StoreSnapshotSink struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewStoreSnapshotSink(db *gorm.DB, redisClient *redis.Client) *StoreSnapshotSink {
	return &StoreSnapshotSink{db: db, redis: redisClient}
}

func (s *StoreSnapshotSink) Write(snap RoomSnapshotData) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("Failed to marshal snapshot for room %s: %v", snap.Pin, err)
		return
	}

	if s.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.redis.Set(ctx, "room:"+snap.Pin, data, 2*time.Hour).Err(); err != nil {
			log.Printf("Failed to store snapshot in Redis for room %s: %v", snap.Pin, err)
		}
	}

	if snap.Terminal && s.db != nil {
		record := models.RoomSnapshot{
			Pin:      snap.Pin,
			GameMode: snap.GameMode,
			Phase:    snap.Phase,
			Terminal: true,
			Payload:  string(data),
			TakenAt:  snap.TakenAt,
		}
		if err := s.db.Create(&record).Error; err != nil {
			log.Printf("Failed to persist terminal snapshot for room %s: %v", snap.Pin, err)
		}
	}
}

// nopSnapshotSink is used when no store is wired, e.g. in tests.
type nopSnapshotSink struct{}

func (nopSnapshotSink) Write(RoomSnapshotData) {}
