// Package config loads LDK/LWS process configuration from the environment,
// following the upstream platform's pkg/config convention: struct fields
// tagged with env:"..." decoded by envdecode, with an optional .env file
// loaded first via godotenv.
package config

import (
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// PortOffsets assigns each service a fixed offset from the baseline port,
// per spec.md §6.
const (
	OffsetGateway  = 0
	OffsetKV       = 1
	OffsetQueue    = 2
	OffsetObject   = 3
	OffsetPubSub   = 4
	OffsetEventBus = 5
	OffsetWorkflow = 6
	OffsetIdentity = 7
	OffsetRESTAPI  = 8
	OffsetFuncMgmt = 9
	OffsetIAM      = 10
	OffsetSTS      = 11
	OffsetParam    = 12
	OffsetSecret   = 13
)

// ChaosConfig controls per-service chaos injection (middleware.Chaos).
type ChaosConfig struct {
	Enabled        bool    `env:"LDK_CHAOS_ENABLED"`
	ErrorProb      float64 `env:"LDK_CHAOS_ERROR_PROBABILITY"`
	LatencyProb    float64 `env:"LDK_CHAOS_LATENCY_PROBABILITY"`
	LatencyMinMs   int     `env:"LDK_CHAOS_LATENCY_MIN_MS"`
	LatencyMaxMs   int     `env:"LDK_CHAOS_LATENCY_MAX_MS"`
	DropProb       float64 `env:"LDK_CHAOS_DROP_PROBABILITY"`
	TimeoutProb    float64 `env:"LDK_CHAOS_TIMEOUT_PROBABILITY"`
	Seed           int64   `env:"LDK_CHAOS_SEED"`
}

// IAMConfig controls the IAM-evaluation middleware mode.
type IAMConfig struct {
	Mode string `env:"LDK_IAM_MODE,default=disabled"` // disabled|audit|enforce
}

// Config is the top-level LDK/LWS process configuration.
type Config struct {
	Port          int    `env:"PORT,default=4566"`
	Host          string `env:"LDK_HOST,default=0.0.0.0"`
	DataDir       string `env:"LDK_DATA_DIR,default=/tmp/ldk-data"`
	LogLevel      string `env:"LOG_LEVEL,default=info"`
	LogFormat     string `env:"LOG_FORMAT,default=json"`
	RingBufferCap int    `env:"LDK_LOG_RING_CAPACITY,default=2000"`

	ConsistencyWindowMs int `env:"LDK_KV_CONSISTENCY_WINDOW_MS,default=200"`
	StreamBatchWindowMs int `env:"LDK_STREAM_BATCH_WINDOW_MS,default=100"`
	MaxWaitSeconds      int `env:"LDK_WORKFLOW_MAX_WAIT_SECONDS,default=5"`
	StartTimeoutMs      int `env:"LDK_START_TIMEOUT_MS,default=5000"`

	Chaos ChaosConfig
	IAM   IAMConfig
}

// Load reads a .env file if present (ignored if missing) and decodes the
// environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil && !strings.Contains(err.Error(), "no target fields") {
		return nil, err
	}
	return cfg, nil
}

// ServicePort returns the concrete port for a given offset.
func (c *Config) ServicePort(offset int) int { return c.Port + offset }
