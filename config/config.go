package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Coach    CoachConfig
	Stream   StreamConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
}

// ServerConfig holds coachsim HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// CoachConfig holds the coaching backend endpoints used by the companion client.
type CoachConfig struct {
	WSBaseURL  string // e.g. ws://localhost:8080
	APIBaseURL string // e.g. http://localhost:8080/api/v1
	Token      string // optional auth token attached to the live connection
	OutputMode string // graphic | text | audio | graphic_audio
	Persona    string // drill_sergeant | bestie | chill_guide | hype_coach
}

// StreamConfig holds default frame streaming settings per platform.
type StreamConfig struct {
	TargetFPS       int
	Codec           string // h264 | jpeg
	InitialBitrate  int    // bits per second
	MaxWidth        int
	MaxHeight       int
	AdaptiveBitrate bool
}

// DatabaseConfig holds PostgreSQL connection settings for coachsim.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds token validation settings for the live endpoint.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the recordings bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	RecordingsBucket     string
	PresignExpireMinutes int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Coach: CoachConfig{
			WSBaseURL:  getEnv("COACH_WS_BASE_URL", "ws://localhost:8080"),
			APIBaseURL: getEnv("COACH_API_BASE_URL", "http://localhost:8080/api/v1"),
			Token:      getEnv("COACH_TOKEN", ""),
			OutputMode: getEnv("COACH_OUTPUT_MODE", "graphic"),
			Persona:    getEnv("COACH_PERSONA", "chill_guide"),
		},
		Stream: StreamConfig{
			TargetFPS:       getEnvInt("STREAM_TARGET_FPS", 2),
			Codec:           getEnv("STREAM_CODEC", "jpeg"),
			InitialBitrate:  getEnvInt("STREAM_INITIAL_BITRATE", 1000000),
			MaxWidth:        getEnvInt("STREAM_MAX_WIDTH", 720),
			MaxHeight:       getEnvInt("STREAM_MAX_HEIGHT", 1280),
			AdaptiveBitrate: getEnv("STREAM_ADAPTIVE_BITRATE", "true") == "true",
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "coach"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", ""),
			ExpireHours: jwtExpire,
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RecordingsBucket:     getEnv("AWS_S3_RECORDINGS_BUCKET", "coach-recordings-bucket"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
