package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides
const EnvPrefix = "SDC"

var (
	once    sync.Once
	initErr error
)

// Init loads .env, defaults, SDC_* environment variables and the optional
// ./config/settings.yaml, in rising precedence, then validates the result.
// Only the first call does any work.
func Init() error {
	once.Do(func() {
		// .env is optional; real environment variables always win
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			initErr = fmt.Errorf("error loading .env file: %w", err)
			return
		}

		setDefaults()

		viper.SetEnvPrefix(EnvPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		configPath := filepath.Clean("./config/settings.yaml")
		viper.SetConfigFile(configPath)

		if err := viper.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) && !errors.Is(err, fs.ErrNotExist) {
				initErr = fmt.Errorf("error reading config file %s: %w", configPath, err)
				return
			}
		}

		if err := validate(); err != nil {
			initErr = fmt.Errorf("invalid configuration: %w", err)
		}
	})

	return initErr
}

// Reset clears viper state so Init can run again (tests only)
func Reset() {
	viper.Reset()
	once = sync.Once{}
	initErr = nil
}

// GetConfig decodes the loaded settings; call Init first
func GetConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// validate rejects settings the classifier cannot run with and fills in
// safe values for counts left at zero
func validate() error {
	port := viper.GetInt("server.port")
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid server port: %d", port)
	}

	if viper.GetInt("classification.max_text_length") <= 0 {
		return fmt.Errorf("classification.max_text_length must be positive")
	}

	split := viper.GetFloat64("training.test_split")
	if split < 0 || split >= 1 {
		return fmt.Errorf("training.test_split must be in [0, 1): %v", split)
	}

	dropout := viper.GetFloat64("training.dropout")
	if dropout < 0 || dropout >= 1 {
		return fmt.Errorf("training.dropout must be in [0, 1): %v", dropout)
	}

	for _, key := range []string{"pattern_base", "statistical_base", "agreement_boost", "high_confidence_threshold", "minimum_confidence"} {
		if v := viper.GetFloat64("classification.confidence." + key); v < 0 || v > 1 {
			return fmt.Errorf("classification.confidence.%s must be within [0,1]: %v", key, v)
		}
	}

	switch backend := viper.GetString("artifacts.backend"); backend {
	case "filesystem", "s3":
	default:
		return fmt.Errorf("unknown artifacts backend: %q", backend)
	}

	if viper.GetString("artifacts.backend") == "s3" && viper.GetString("artifacts.bucket") == "" {
		return fmt.Errorf("artifacts.bucket is required for the s3 backend")
	}

	if viper.GetBool("redis.enabled") && viper.GetString("redis.address") == "" {
		return fmt.Errorf("redis.address is required when redis is enabled")
	}

	if viper.GetBool("auth.enabled") && viper.GetString("auth.jwks_url") == "" && viper.GetString("auth.dev_token") == "" {
		return fmt.Errorf("auth.jwks_url or auth.dev_token is required when auth is enabled")
	}

	// Auto-correct invalid worker count
	if viper.GetInt("training.workers") <= 0 {
		viper.Set("training.workers", 1)
	}

	if viper.GetInt("classification.batch_concurrency") <= 0 {
		viper.Set("classification.batch_concurrency", 8)
	}

	if viper.GetInt("training.min_samples") <= 0 {
		viper.Set("training.min_samples", 10)
	}

	if viper.GetDuration("training.stale_job_after") <= 0 {
		viper.Set("training.stale_job_after", 2*time.Hour)
	}

	return nil
}

// Validate applies the same checks to an already decoded Config
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Classification.MaxTextLength <= 0 {
		return fmt.Errorf("classification.max_text_length must be positive")
	}

	if c.Training.TestSplit < 0 || c.Training.TestSplit >= 1 {
		return fmt.Errorf("training.test_split must be in [0, 1): %v", c.Training.TestSplit)
	}

	if c.Training.Workers <= 0 {
		c.Training.Workers = 1
	}

	if c.Training.StaleJobAfter <= 0 {
		c.Training.StaleJobAfter = 2 * time.Hour
	}

	if c.Classification.BatchConcurrency <= 0 {
		c.Classification.BatchConcurrency = 8
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 60*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.max_header_bytes", 1048576)
	viper.SetDefault("server.max_body_bytes", 4*1048576)

	// Database defaults
	viper.SetDefault("database.path", "./data/classifier.db")
	viper.SetDefault("database.verbose", false)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.enable_caller", false)

	// Classification defaults
	viper.SetDefault("classification.max_text_length", 100000)
	viper.SetDefault("classification.use_pattern", true)
	viper.SetDefault("classification.use_statistical", true)
	viper.SetDefault("classification.default_types", []string{"PII", "PHI", "Financial", "Credentials", "Confidential"})
	viper.SetDefault("classification.batch_concurrency", 8)
	viper.SetDefault("classification.max_batch_size", 100)
	viper.SetDefault("classification.length_heuristics", false)
	viper.SetDefault("classification.confidence.pattern_base", 0.95)
	viper.SetDefault("classification.confidence.statistical_base", 0.85)
	viper.SetDefault("classification.confidence.agreement_boost", 0.05)
	viper.SetDefault("classification.confidence.high_confidence_threshold", 0.90)
	viper.SetDefault("classification.confidence.minimum_confidence", 0.60)

	// Statistical recognizer defaults
	viper.SetDefault("ner.sidecar_url", "")
	viper.SetDefault("ner.timeout", 10*time.Second)
	viper.SetDefault("ner.load_retries", 3)
	viper.SetDefault("ner.load_backoff", 500*time.Millisecond)
	viper.SetDefault("ner.use_local_tagger", true)

	// Training defaults
	viper.SetDefault("training.lineage", "default")
	viper.SetDefault("training.iterations", 30)
	viper.SetDefault("training.batch_size", 8)
	viper.SetDefault("training.dropout", 0.5)
	viper.SetDefault("training.test_split", 0.2)
	viper.SetDefault("training.min_samples", 10)
	viper.SetDefault("training.seed", 42)
	viper.SetDefault("training.workers", 1)
	viper.SetDefault("training.poll_interval", 5*time.Second)
	viper.SetDefault("training.job_retention_days", 30)
	viper.SetDefault("training.stale_job_after", 2*time.Hour)
	viper.SetDefault("training.include_feedback", true)
	viper.SetDefault("training.include_datasets", true)

	// Artifact defaults
	viper.SetDefault("artifacts.backend", "filesystem")
	viper.SetDefault("artifacts.base_path", "./models")
	viper.SetDefault("artifacts.region", "us-east-1")

	// Redis defaults
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.lock_ttl", 2*time.Hour)

	// Rate limiting defaults
	viper.SetDefault("rate_limiting.enabled", true)
	viper.SetDefault("rate_limiting.endpoints", map[string]int{
		"classify": 50,
		"feedback": 10,
		"training": 2,
		"default":  20,
	})

	// Security defaults
	viper.SetDefault("security.enable_cors", true)
	viper.SetDefault("security.cors_origins", []string{"*"})

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwks_url", "")
	viper.SetDefault("auth.cache_duration", "1h")
	viper.SetDefault("auth.timeout", "5s")
	viper.SetDefault("auth.dev_token", "")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")
}
