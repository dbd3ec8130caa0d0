package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                  string
	AppEnv                   string
	AppPort                  string
	DatabaseURL              string
	RedisURL                 string
	NATSURL                  string
	EventChannel             string
	JWTSecret                string
	JWTTTL                   time.Duration
	PerformanceCacheTTL      time.Duration
	ImportMaxUploadMB        int
	ImportFlagFileDuplicates bool
	AuthRateLimit            int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SCHOOL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "School Performance API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.channel", "school")
	v.SetDefault("jwt.ttl", "12h")
	v.SetDefault("performance.cache_ttl", "2m")
	v.SetDefault("import.max_upload_mb", 5)
	v.SetDefault("import.flag_file_duplicates", false)
	v.SetDefault("auth.rate_limit", 10)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cacheTTL, err := parseDuration(v.GetString("performance.cache_ttl"), 2*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid performance cache ttl: %w", err)
	}

	jwtTTL, err := parseDuration(v.GetString("jwt.ttl"), 12*time.Hour)
	if err != nil {
		return Config{}, fmt.Errorf("invalid jwt ttl: %w", err)
	}

	cfg := Config{
		AppName:                  v.GetString("app.name"),
		AppEnv:                   v.GetString("app.env"),
		AppPort:                  v.GetString("app.port"),
		DatabaseURL:              v.GetString("database.url"),
		RedisURL:                 v.GetString("redis.url"),
		NATSURL:                  v.GetString("nats.url"),
		EventChannel:             v.GetString("events.channel"),
		JWTSecret:                v.GetString("jwt.secret"),
		JWTTTL:                   jwtTTL,
		PerformanceCacheTTL:      cacheTTL,
		ImportMaxUploadMB:        v.GetInt("import.max_upload_mb"),
		ImportFlagFileDuplicates: v.GetBool("import.flag_file_duplicates"),
		AuthRateLimit:            v.GetInt("auth.rate_limit"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	if cfg.ImportMaxUploadMB <= 0 {
		cfg.ImportMaxUploadMB = 5
	}

	if cfg.AuthRateLimit <= 0 {
		cfg.AuthRateLimit = 10
	}

	return cfg, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}
