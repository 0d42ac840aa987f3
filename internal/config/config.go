package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the service settings shared by every binary.
type Config struct {
	Port        string
	DatabaseURL string

	GCPProjectID string
	BQDataset    string
	GCSBucket    string
	GeminiModel  string

	JWTSecret     string
	APIKey        string
	DefaultUserID string

	DefaultInstitution string
	Timezone           string

	StoreTimeout time.Duration
	ModelTimeout time.Duration

	LogLevel  string
	LogFormat string

	WorkerCount int
	QueueSize   int

	AIParsesLimit     int
	TransactionsLimit int
}

// ErrMissingDatabaseURL is returned by Validate when no database is configured.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("bq_dataset", "expense_assistant")
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("default_institution", "bancolombia")
	v.SetDefault("timezone", "America/Bogota")
	v.SetDefault("store_timeout", 10*time.Second)
	v.SetDefault("model_timeout", 60*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("worker_count", 5)
	v.SetDefault("queue_size", 100)
	v.SetDefault("ai_parses_limit", 15)
	v.SetDefault("transactions_limit", 50)
}

// Load reads .env when present, then the environment and an optional config
// file, into a Config. cfgFile may be empty.
func Load(cfgFile string) (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	v := viper.New()
	if err := Bind(v, cfgFile); err != nil {
		return nil, err
	}
	return FromViper(v), nil
}

// Bind prepares v to resolve keys from the environment and cfgFile.
func Bind(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)
	v.AutomaticEnv()

	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("Bind: read config %s: %w", cfgFile, err)
	}
	return nil
}

// FromViper builds a Config from the values resolved by v.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Port:               v.GetString("port"),
		DatabaseURL:        v.GetString("database_url"),
		GCPProjectID:       v.GetString("gcp_project_id"),
		BQDataset:          v.GetString("bq_dataset"),
		GCSBucket:          v.GetString("gcs_bucket"),
		GeminiModel:        v.GetString("gemini_model"),
		JWTSecret:          v.GetString("jwt_secret"),
		APIKey:             v.GetString("api_key"),
		DefaultUserID:      v.GetString("default_user_id"),
		DefaultInstitution: v.GetString("default_institution"),
		Timezone:           v.GetString("timezone"),
		StoreTimeout:       v.GetDuration("store_timeout"),
		ModelTimeout:       v.GetDuration("model_timeout"),
		LogLevel:           v.GetString("log_level"),
		LogFormat:          v.GetString("log_format"),
		WorkerCount:        v.GetInt("worker_count"),
		QueueSize:          v.GetInt("queue_size"),
		AIParsesLimit:      v.GetInt("ai_parses_limit"),
		TransactionsLimit:  v.GetInt("transactions_limit"),
	}
}

// Validate checks the settings every binary that touches storage needs.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}

// Location returns the configured time zone, falling back to UTC when it
// cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
