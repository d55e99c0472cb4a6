package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	Port        string
	BindAddress string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	RedisHost   string
	RedisPort   string
	JWTSecret   string

	Rooms RoomConfig
}

// RoomConfig carries the tunables of a single room session: capacity and
// every phase deadline the runtime schedules.
type RoomConfig struct {
	MaxParticipants   int
	QuestionCount     int
	TeamRevealTime    time.Duration
	CaptainVoteTime   time.Duration
	TeamNamingTime    time.Duration
	QuestionTime      time.Duration
	RevealTime        time.Duration
	HostReconnectTime time.Duration
	ChatHistorySize   int
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		BindAddress: getEnv("BIND_ADDRESS", "localhost"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "triviarena"),
		DBPassword:  getEnv("DB_PASSWORD", "triviarena123"),
		DBName:      getEnv("DB_NAME", "triviarena"),
		RedisHost:   getEnv("REDIS_HOST", "localhost"),
		RedisPort:   getEnv("REDIS_PORT", "6379"),
		JWTSecret:   getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		Rooms: RoomConfig{
			MaxParticipants:   getEnvInt("ROOM_MAX_PARTICIPANTS", 20),
			QuestionCount:     getEnvInt("ROOM_QUESTION_COUNT", 10),
			TeamRevealTime:    getEnvDuration("ROOM_TEAM_REVEAL_SECONDS", 8),
			CaptainVoteTime:   getEnvDuration("ROOM_CAPTAIN_VOTE_SECONDS", 30),
			TeamNamingTime:    getEnvDuration("ROOM_TEAM_NAMING_SECONDS", 45),
			QuestionTime:      getEnvDuration("ROOM_QUESTION_SECONDS", 30),
			RevealTime:        getEnvDuration("ROOM_REVEAL_SECONDS", 6),
			HostReconnectTime: getEnvDuration("ROOM_HOST_RECONNECT_SECONDS", 30),
			ChatHistorySize:   getEnvInt("ROOM_CHAT_HISTORY", 128),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

func InitRedis(cfg *Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	return client
}
