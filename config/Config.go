package config

import (
	"time"

	"github.com/yanffernandes/xtyl-creativity-machine-sub000/analytics"
)

type StateStoreType string

type DurableStoreType string

const STATE_STORE_REDIS StateStoreType = "redis"
const STATE_STORE_MEMORY StateStoreType = "memory"

const DURABLE_STORE_POSTGRES DurableStoreType = "postgres"
const DURABLE_STORE_MEMORY DurableStoreType = "memory"

type EncoderDecoderType string

const JSON_ENCODER_DECODER EncoderDecoderType = "JSON"

const DEFAULT_STATE_TTL = 24 * time.Hour

// MAX_LOOP_ITERATIONS is the hard iteration cap. Configuration can only lower it.
const MAX_LOOP_ITERATIONS = 1000

type Config struct {
	HttpPort           int
	StateStoreType     StateStoreType
	DurableStoreType   DurableStoreType
	RedisConfig        RedisStorageConfig
	PostgresConfig     PostgresConfig
	EncoderDecoderType EncoderDecoderType
	StateTTL           time.Duration
	MaxLoopIterations  int
	LauncherConfig     LauncherConfig
	AnalyticsConfig    analytics.DataCollectorConfig
	LogLevel           string
	Development        bool
}

type RedisStorageConfig struct {
	Addrs          []string
	Namespace      string
	ConnectRetries int
}

type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	ConnectRetries int
}

type LauncherConfig struct {
	Partitions int
	Capacity   int
	RunLease   time.Duration
}

// LoopCap returns the configured loop cap clamped to MAX_LOOP_ITERATIONS.
func (c Config) LoopCap() int {
	if c.MaxLoopIterations <= 0 || c.MaxLoopIterations > MAX_LOOP_ITERATIONS {
		return MAX_LOOP_ITERATIONS
	}
	return c.MaxLoopIterations
}

func (c Config) TTL() time.Duration {
	if c.StateTTL <= 0 {
		return DEFAULT_STATE_TTL
	}
	return c.StateTTL
}

func Default() Config {
	return Config{
		HttpPort:           8080,
		StateStoreType:     STATE_STORE_MEMORY,
		DurableStoreType:   DURABLE_STORE_MEMORY,
		RedisConfig:        RedisStorageConfig{Addrs: []string{"localhost:6379"}, Namespace: "contentflow", ConnectRetries: 5},
		PostgresConfig:     PostgresConfig{MaxConns: 10, ConnectRetries: 5},
		EncoderDecoderType: JSON_ENCODER_DECODER,
		StateTTL:           DEFAULT_STATE_TTL,
		MaxLoopIterations:  MAX_LOOP_ITERATIONS,
		LauncherConfig:     LauncherConfig{Partitions: 8, Capacity: 64},
		LogLevel:           "info",
	}
}
