package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"studyhall/database"
)

// Config holds all application configuration
type Config struct {
	// Discord configuration
	DiscordToken string

	// Sharding configuration. Guilds are partitioned between processes by
	// (guildid >> 22) % ShardCount, so each guild's slot state is owned by
	// exactly one shard.
	ShardID    int
	ShardCount int

	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// Economy configuration
	StartingBalance int64

	// NATS configuration (optional; empty disables cross-process events)
	NATSServers string

	// Metrics listener address (optional; empty disables the listener)
	MetricsAddr string

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		DiscordToken: os.Getenv("DISCORD_TOKEN"),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		StartingBalance: 0,

		ShardID:    0,
		ShardCount: 1,

		NATSServers: os.Getenv("NATS_SERVERS"),
		MetricsAddr: getEnvWithDefault("METRICS_ADDR", ""),

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if balance := os.Getenv("STARTING_BALANCE"); balance != "" {
		if parsed, err := strconv.ParseInt(balance, 10, 64); err == nil {
			config.StartingBalance = parsed
		}
	}
	if shard := os.Getenv("SHARD_ID"); shard != "" {
		if parsed, err := strconv.Atoi(shard); err == nil {
			config.ShardID = parsed
		}
	}
	if count := os.Getenv("SHARD_COUNT"); count != "" {
		if parsed, err := strconv.Atoi(count); err == nil && parsed > 0 {
			config.ShardCount = parsed
		}
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.DiscordToken == "" {
			return nil, fmt.Errorf("DISCORD_TOKEN is required")
		}
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
		if config.ShardID < 0 || config.ShardID >= config.ShardCount {
			return nil, fmt.Errorf("SHARD_ID %d out of range for SHARD_COUNT %d", config.ShardID, config.ShardCount)
		}
	}

	return config, nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment: "test",
		ShardCount:  1,
	}
}
