package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`

	DBDriver   string `envconfig:"DB_DRIVER" default:"postgres"`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD" default:""`
	DBName     string `envconfig:"DB_NAME" default:"channel_manager"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	LockWait        time.Duration `envconfig:"LOCK_WAIT" default:"2s"`
	DedupTTL        time.Duration `envconfig:"DEDUP_TTL" default:"24h"`
	NoShowGrace     time.Duration `envconfig:"NOSHOW_GRACE" default:"24h"`
	NoShowInterval  time.Duration `envconfig:"NOSHOW_INTERVAL" default:"1h"`
	AutoConfirmList []string      `envconfig:"AUTO_CONFIRM_CHANNELS" default:"airbnb,booking.com,expedia"`
}

// Load reads .env when present, then the CM_-prefixed environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using OS environment.")
	}

	var cfg Config
	if err := envconfig.Process("CM", &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
