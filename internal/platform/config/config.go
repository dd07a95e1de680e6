package config

import (
	"errors"
	"fmt"
	"time"

	"ipcam-hls/internal/platform/logger"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the gateway's runtime configuration. Every field has a default
// and can be overridden from the environment or a .env file.
type Config struct {
	Port             string        `env:"PORT,default=9996"`
	HLSRoot          string        `env:"HLS_ROOT,default=./public/hls"`
	FFmpegPath       string        `env:"FFMPEG_PATH,default=ffmpeg"`
	IdleTimeout      time.Duration `env:"IDLE_TIMEOUT,default=15s"`
	ReapInterval     time.Duration `env:"REAP_INTERVAL,default=5s"`
	FileWaitTimeout  time.Duration `env:"FILE_WAIT_TIMEOUT,default=10s"`
	FilePollInterval time.Duration `env:"FILE_POLL_INTERVAL,default=100ms"`
	CameraTimeout    time.Duration `env:"CAMERA_TIMEOUT,default=10s"`
	SnapshotTimeout  time.Duration `env:"SNAPSHOT_TIMEOUT,default=15s"`
	LogLevel         string        `env:"LOG_LEVEL,default=info"`
	LogFormat        string        `env:"LOG_FORMAT,default=json"`
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv decodes Config from the environment, applying defaults for unset keys.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Port == "":
		return errors.New("config: PORT must not be empty")
	case c.HLSRoot == "":
		return errors.New("config: HLS_ROOT must not be empty")
	case c.IdleTimeout <= 0:
		return fmt.Errorf("config: IDLE_TIMEOUT must be positive, got %s", c.IdleTimeout)
	case c.ReapInterval <= 0:
		return fmt.Errorf("config: REAP_INTERVAL must be positive, got %s", c.ReapInterval)
	case c.FileWaitTimeout <= 0:
		return fmt.Errorf("config: FILE_WAIT_TIMEOUT must be positive, got %s", c.FileWaitTimeout)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	if _, err := logger.ParseFormat(c.LogFormat); err != nil {
		return fmt.Errorf("config: LOG_FORMAT: %w", err)
	}
	return nil
}
