package config

import (
	"fmt"
	"strings"
	"time"

	"voicelink-backend/pkg/constants"
	"voicelink-backend/pkg/env"
)

// Config holds all configuration for the signaling server
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	JWT      JWTConfig
	WebRTC   WebRTCConfig
	Call     CallConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Environment string // development, staging, production
	ServiceName string

	// AllowedOrigins gates CORS and WebSocket upgrades
	AllowedOrigins []string
}

// PostgresConfig holds Postgres connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds token validation configuration
type JWTConfig struct {
	Secret    string
	AccessTTL time.Duration
}

// WebRTCConfig is ICE server configuration passed through verbatim to clients
type WebRTCConfig struct {
	STUNServer   string
	TURNServer   string
	TURNUsername string
	TURNPassword string
}

// CallConfig holds call lifecycle policy configuration
type CallConfig struct {
	// RingTimeout is how long a call may stay in initiated/ringing before
	// the sweeper marks it missed
	RingTimeout time.Duration

	// SweepInterval is the cron cadence of the missed-call sweeper
	SweepInterval time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        env.GetInt("SERVER_PORT", 8080),
			Environment: env.GetString("ENV", "development"),
			ServiceName: env.GetString("SERVICE_NAME", "signaling-server"),
			AllowedOrigins: strings.Split(
				env.GetString("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080"),
				",",
			),
		},
		Postgres: PostgresConfig{
			Host:     env.GetString("POSTGRES_HOST", "localhost"),
			Port:     env.GetInt("POSTGRES_PORT", 5432),
			User:     env.GetString("POSTGRES_USER", "postgres"),
			Password: env.GetStringFromFile("POSTGRES_PASSWORD", ""),
			Database: env.GetString("POSTGRES_DATABASE", "voicelink"),
			SSLMode:  env.GetString("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:    env.GetStringFromFile("JWT_SECRET", ""),
			AccessTTL: env.GetDuration("JWT_ACCESS_TTL", constants.AccessTokenExpiry),
		},
		WebRTC: WebRTCConfig{
			STUNServer:   env.GetString("WEBRTC_STUN_SERVER", "stun:stun.l.google.com:19302"),
			TURNServer:   env.GetString("WEBRTC_TURN_SERVER", ""),
			TURNUsername: env.GetString("WEBRTC_TURN_USERNAME", ""),
			TURNPassword: env.GetStringFromFile("WEBRTC_TURN_PASSWORD", ""),
		},
		Call: CallConfig{
			RingTimeout:   env.GetDuration("CALL_RING_TIMEOUT", constants.DefaultRingTimeout),
			SweepInterval: env.GetDuration("CALL_SWEEP_INTERVAL", 15*time.Second),
		},
		Log: LogConfig{
			Level:  env.GetString("LOG_LEVEL", "info"),
			Format: env.GetString("LOG_FORMAT", "json"),
		},
	}
}

// PostgresURL returns the pgx connection string
func (c *Config) PostgresURL() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.Database,
		c.Postgres.SSLMode,
	)
}

// RedisAddr returns the Redis host:port address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
