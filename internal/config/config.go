/**
 * @description
 * Configuration loader for the Prophecy Backend.
 * Responsible for reading environment variables, setting defaults, and performing strict validation.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files
 * - standard "os": For reading env vars
 * - standard "fmt": For error reporting
 *
 * @notes
 * - Fails fast if critical variables (Database URL, JWT secret) are missing.
 * - Uses a Singleton-like pattern where Load() returns a Config struct.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Chain  ChainConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
	Env  string // "development", "test" or "production"
}

// DBConfig holds PostgreSQL settings
type DBConfig struct {
	URL string
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL string
}

// AuthConfig holds wallet-login and token settings
type AuthConfig struct {
	JWTSecret string
	JWKSURL   string // Optional: validate externally issued tokens against a JWKS
	TokenTTL  time.Duration
	NonceTTL  time.Duration
}

// ChainConfig holds Ethereum RPC endpoints and settlement settings
type ChainConfig struct {
	RPCURL        string // HTTP JSON-RPC endpoint (balances)
	WSURL         string // WebSocket endpoint (new-head feed); optional
	TokenAddress  string // ERC20 token users wager with
	Confirmations uint64 // heads to wait before marking a settlement confirmed
}

// Load reads .env file and populates the Config struct
func Load() (*Config, error) {
	// Attempt to load .env, but don't crash if it fails (k8s/prod might inject env vars directly)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("GO_ENV", "development"),
		},
		DB: DBConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Auth: AuthConfig{
			JWTSecret: sanitizeCredential(getEnv("JWT_SECRET", "")),
			JWKSURL:   getEnv("AUTH_JWKS_URL", ""),
			TokenTTL:  time.Duration(getEnvAsInt("AUTH_TOKEN_TTL_MINUTES", 60*24)) * time.Minute,
			NonceTTL:  time.Duration(getEnvAsInt("AUTH_NONCE_TTL_SECONDS", 300)) * time.Second,
		},
		Chain: ChainConfig{
			RPCURL:        getEnv("CHAIN_RPC_URL", "https://polygon-rpc.com"),
			WSURL:         getEnv("CHAIN_WS_URL", ""),
			TokenAddress:  getEnv("CHAIN_TOKEN_ADDRESS", ""),
			Confirmations: uint64(getEnvAsInt("CHAIN_CONFIRMATIONS", 6)),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks for required variables
func validate(cfg *Config) error {
	if cfg.DB.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" && cfg.Server.Env != "test" {
		// Warning: strictly required for Auth middleware
		fmt.Println("Warning: JWT_SECRET is missing. Wallet login will fail.")
	}
	return nil
}

// Helper to get env var with default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func sanitizeCredential(value string) string {
	trimmed := strings.TrimSpace(value)
	return strings.Trim(trimmed, "\"")
}

// Helper to get env var as int
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
