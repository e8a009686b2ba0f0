package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`
	OwnerID  int64  `envconfig:"OWNER_ID" default:"0"` // enables /asknow when set
	DBPath   string `envconfig:"DB_PATH" default:"./data/chronor.db"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"` // healthz

	// Defaults applied to a user on first contact; per-user settings
	// override these afterwards.
	DefaultTZ       string `envconfig:"DEFAULT_TZ" default:"UTC"`
	PollStartHour   int    `envconfig:"POLL_START_HOUR" default:"8"`
	PollEndHour     int    `envconfig:"POLL_END_HOUR" default:"22"`
	ReportHour      int    `envconfig:"REPORT_HOUR" default:"8"`
	PollIntervalMin int    `envconfig:"POLL_INTERVAL_MIN" default:"30"`

	SendTimeoutSec  int `envconfig:"SEND_TIMEOUT_SEC" default:"10"`
	TickConcurrency int `envconfig:"TICK_CONCURRENCY" default:"8"`
}

// Load reads .env (if present) and environment variables into Config.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
