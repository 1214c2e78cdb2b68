package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided
// via the config file or the environment.
type AppConfig struct {
	AppPort   string
	GinMode   string
	GinPath   string
	JWTSecret string

	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string

	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string

	// Timezone fixes the calendar-day convention for every date key
	// (slots, attendance, write quota). One convention across all read sites.
	Timezone string

	// Generation backend (cloud function wrapping the LLM call).
	GeneratorBaseURL        string
	GeneratorTimeoutMinutes int

	RateLimitPerMinute int
	AllowedOrigins     []string

	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. Precedence:
// config/config.json -> defaults -> environment variable overrides.
// It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	_ = loadJSONConfig(filepath.Join("config", "config.json"), &cfg)
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Location resolves the configured timezone, falling back to UTC.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("invalid timezone %q, falling back to UTC: %v", c.Timezone, err)
		return time.UTC
	}
	return loc
}

// GeneratorTimeout returns the client-side generation timeout.
func (c AppConfig) GeneratorTimeout() time.Duration {
	minutes := c.GeneratorTimeoutMinutes
	if minutes <= 0 {
		minutes = 5
	}
	return time.Duration(minutes) * time.Minute
}

func loadJSONConfig(path string, out *AppConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(raw, &flat); err != nil {
		return err
	}

	assignString := func(key string, dst *string) {
		var v string
		if msg, ok := flat[key]; ok && json.Unmarshal(msg, &v) == nil {
			*dst = v
		}
	}
	assignInt := func(key string, dst *int) {
		var v int
		if msg, ok := flat[key]; ok && json.Unmarshal(msg, &v) == nil {
			*dst = v
		}
	}
	assignBool := func(key string, dst *bool) {
		var v bool
		if msg, ok := flat[key]; ok && json.Unmarshal(msg, &v) == nil {
			*dst = v
		}
	}
	assignList := func(key string, dst *[]string) {
		var v []string
		if msg, ok := flat[key]; ok && json.Unmarshal(msg, &v) == nil {
			*dst = v
		}
	}

	assignString("app_port", &out.AppPort)
	assignString("gin_mode", &out.GinMode)
	assignString("gin_path", &out.GinPath)
	assignString("jwt_secret", &out.JWTSecret)
	assignString("database_uri", &out.DatabaseURI)
	assignString("db_host", &out.DBHost)
	assignString("db_port", &out.DBPort)
	assignString("db_user", &out.DBUser)
	assignString("db_password", &out.DBPassword)
	assignString("db_name", &out.DBName)
	assignString("redis_host", &out.RedisHost)
	assignInt("redis_port", &out.RedisPort)
	assignInt("redis_db", &out.RedisDB)
	assignString("redis_password", &out.RedisPassword)
	assignString("timezone", &out.Timezone)
	assignString("generator_base_url", &out.GeneratorBaseURL)
	assignInt("generator_timeout_minutes", &out.GeneratorTimeoutMinutes)
	assignInt("rate_limit_per_minute", &out.RateLimitPerMinute)
	assignList("allowed_origins", &out.AllowedOrigins)
	assignString("log_level", &out.LogLevel)
	assignString("log_path", &out.LogPath)
	assignInt("log_max_size_mb", &out.LogMaxSizeMB)
	assignInt("log_max_backups", &out.LogMaxBackups)
	assignInt("log_max_age_days", &out.LogMaxAgeDays)
	assignBool("log_compress", &out.LogCompress)

	return nil
}

func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/gin.log"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "odok"
	}
	if c.DBName == "" {
		c.DBName = "odok"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Seoul"
	}
	if c.GeneratorTimeoutMinutes == 0 {
		c.GeneratorTimeoutMinutes = 5
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogPath == "" {
		c.LogPath = "logs/app.log"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

func applyEnvOverrides(c *AppConfig) {
	c.AppPort = getEnv("APP_PORT", c.AppPort)
	c.GinMode = getEnv("GIN_MODE", c.GinMode)
	c.GinPath = getEnv("GIN_PATH", c.GinPath)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.DatabaseURI = getEnv("DATABASE_URI", c.DatabaseURI)
	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBPort = getEnv("DB_PORT", c.DBPort)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPassword = getEnv("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnv("DB_NAME", c.DBName)
	c.RedisHost = getEnv("REDIS_HOST", c.RedisHost)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.Timezone = getEnv("TIMEZONE", c.Timezone)
	c.GeneratorBaseURL = getEnv("GENERATOR_BASE_URL", c.GeneratorBaseURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogPath = getEnv("LOG_PATH", c.LogPath)

	if v := os.Getenv("REDIS_PORT"); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := os.Getenv("GENERATOR_TIMEOUT_MINUTES"); v != "" {
		c.GeneratorTimeoutMinutes = mustParseInt(v)
	}
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultVal
}

func mustParseInt(val string) int {
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		log.Fatalf("invalid integer value %q: %v", val, err)
	}
	return n
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
