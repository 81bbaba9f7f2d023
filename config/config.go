package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ConfigFileEnv names an optional YAML/JSON/TOML file whose keys are the
// lower-case forms of the environment variables below.
const ConfigFileEnv = "S3MIRROR_CONFIG"

type Config struct {
	ApiURL     string
	AccessKey  string
	SecretKey  string
	BucketName string
	Region     string

	LocalDir         string
	RemoteDir        string
	MaxDepth         int
	MaxFileSize      int64
	Concurrency      int
	OperationTimeout time.Duration

	CredentialsCache string
	CredentialsTTL   time.Duration
	LogFile          string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env file not found, using environment variables only")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	config := &Config{
		ApiURL:     v.GetString("API_URL"),
		AccessKey:  v.GetString("ACCESS_KEY"),
		SecretKey:  v.GetString("SECRET_KEY"),
		BucketName: v.GetString("BUCKET_NAME"),
		Region:     v.GetString("REGION"),

		LocalDir:         v.GetString("LOCAL_DIR"),
		RemoteDir:        v.GetString("REMOTE_DIR"),
		MaxDepth:         v.GetInt("MAX_DEPTH"),
		MaxFileSize:      v.GetInt64("MAX_FILE_SIZE"),
		Concurrency:      v.GetInt("CONCURRENCY"),
		OperationTimeout: v.GetDuration("OPERATION_TIMEOUT"),

		CredentialsCache: v.GetString("CREDENTIALS_CACHE"),
		CredentialsTTL:   v.GetDuration("CREDENTIALS_TTL"),
		LogFile:          v.GetString("LOG_FILE"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("API_URL", "")
	v.SetDefault("ACCESS_KEY", "")
	v.SetDefault("SECRET_KEY", "")
	v.SetDefault("BUCKET_NAME", "")
	v.SetDefault("REGION", "")
	v.SetDefault("LOCAL_DIR", "./data")
	v.SetDefault("REMOTE_DIR", "/")
	v.SetDefault("MAX_DEPTH", 4)
	v.SetDefault("MAX_FILE_SIZE", int64(1<<30))
	v.SetDefault("CONCURRENCY", 8)
	v.SetDefault("OPERATION_TIMEOUT", "10m")
	v.SetDefault("CREDENTIALS_CACHE", "./cached-credentials.json")
	v.SetDefault("CREDENTIALS_TTL", "12h")
	v.SetDefault("LOG_FILE", "")
}

func (c *Config) Validate() error {
	if c.MaxDepth < 0 {
		return fmt.Errorf("MAX_DEPTH must not be negative, got %d", c.MaxDepth)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("CONCURRENCY must be at least 1, got %d", c.Concurrency)
	}
	if c.OperationTimeout < 0 {
		return fmt.Errorf("OPERATION_TIMEOUT must not be negative, got %s", c.OperationTimeout)
	}
	return nil
}
