package config

import "time"

// Config represents the complete application configuration
type Config struct {
	Environment    string               `mapstructure:"environment"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Classification ClassificationConfig `mapstructure:"classification"`
	NER            NERConfig            `mapstructure:"ner"`
	Training       TrainingConfig       `mapstructure:"training"`
	Artifacts      ArtifactsConfig      `mapstructure:"artifacts"`
	Redis          RedisConfig          `mapstructure:"redis"`
	RateLimiting   RateLimitConfig      `mapstructure:"rate_limiting"`
	Security       SecurityConfig       `mapstructure:"security"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	Verbose bool   `mapstructure:"verbose"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level        string `mapstructure:"level"`
	Format       string `mapstructure:"format"`
	EnableCaller bool   `mapstructure:"enable_caller"`
}

// ConfidenceConfig mirrors the merge policy constants
type ConfidenceConfig struct {
	PatternBase             float64 `mapstructure:"pattern_base"`
	StatisticalBase         float64 `mapstructure:"statistical_base"`
	AgreementBoost          float64 `mapstructure:"agreement_boost"`
	HighConfidenceThreshold float64 `mapstructure:"high_confidence_threshold"`
	MinimumConfidence       float64 `mapstructure:"minimum_confidence"`
}

// ClassificationConfig contains classification engine settings
type ClassificationConfig struct {
	MaxTextLength    int              `mapstructure:"max_text_length"`
	UsePattern       bool             `mapstructure:"use_pattern"`
	UseStatistical   bool             `mapstructure:"use_statistical"`
	DefaultTypes     []string         `mapstructure:"default_types"`
	BatchConcurrency int              `mapstructure:"batch_concurrency"`
	MaxBatchSize     int              `mapstructure:"max_batch_size"`
	LengthHeuristics bool             `mapstructure:"length_heuristics"`
	Confidence       ConfidenceConfig `mapstructure:"confidence"`
}

// NERConfig contains statistical recognizer settings
type NERConfig struct {
	SidecarURL     string        `mapstructure:"sidecar_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	LoadRetries    uint64        `mapstructure:"load_retries"`
	LoadBackoff    time.Duration `mapstructure:"load_backoff"`
	UseLocalTagger bool          `mapstructure:"use_local_tagger"`
}

// TrainingConfig contains active learning settings
type TrainingConfig struct {
	Lineage         string        `mapstructure:"lineage"`
	Iterations      int           `mapstructure:"iterations"`
	BatchSize       int           `mapstructure:"batch_size"`
	Dropout         float64       `mapstructure:"dropout"`
	TestSplit       float64       `mapstructure:"test_split"`
	MinSamples      int           `mapstructure:"min_samples"`
	Seed            int64         `mapstructure:"seed"`
	Workers         int           `mapstructure:"workers"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	JobRetention    int           `mapstructure:"job_retention_days"`
	StaleJobAfter   time.Duration `mapstructure:"stale_job_after"`
	IncludeFeedback bool          `mapstructure:"include_feedback"`
	IncludeDatasets bool          `mapstructure:"include_datasets"`
}

// ArtifactsConfig contains model artifact storage settings
type ArtifactsConfig struct {
	Backend  string `mapstructure:"backend"`
	BasePath string `mapstructure:"base_path"`
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// RedisConfig contains settings for the distributed training lock
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	Endpoints map[string]int `mapstructure:"endpoints"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	EnableCORS  bool     `mapstructure:"enable_cors"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// AuthConfig enables bearer token authentication on /api/v1
type AuthConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	JWKSURL       string        `mapstructure:"jwks_url"`
	CacheDuration time.Duration `mapstructure:"cache_duration"`
	Timeout       time.Duration `mapstructure:"timeout"`
	DevToken      string        `mapstructure:"dev_token"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}
