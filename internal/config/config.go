package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultDatabasePath is the default location of the local event store.
	DefaultDatabasePath = "./github_events.db"
	// DefaultPollInterval is the default ingestion tick.
	DefaultPollInterval = 300 * time.Second
	// DefaultAPIHost is the default HTTP bind address.
	DefaultAPIHost = "0.0.0.0"
	// DefaultAPIPort is the default HTTP bind port.
	DefaultAPIPort = 8080
	// DefaultHTTPTimeout is the hard timeout for upstream calls.
	DefaultHTTPTimeout = 30 * time.Second
	// DefaultIngestWorkers bounds parallel per-repo polls in targeted mode.
	DefaultIngestWorkers = 4
	// DefaultGitHubAPIURL is the upstream API base.
	DefaultGitHubAPIURL = "https://api.github.com"
	// DefaultKafkaTopic is the fanout topic when brokers are configured.
	DefaultKafkaTopic = "github-events"
	// DefaultConfigFile is the optional YAML overlay location.
	DefaultConfigFile = ".ghpulse.yaml"

	minPollInterval = 1 * time.Second
	maxPort         = 65535
)

// Static validation errors.
var (
	ErrInvalidPollInterval = errors.New("poll interval must be at least 1 second")
	ErrInvalidPort         = errors.New("invalid API port")
	ErrEmptyDatabasePath   = errors.New("database path cannot be empty")
	ErrInvalidTargetRepo   = errors.New("target repository must be in owner/name form")
	ErrInvalidWorkerCount  = errors.New("ingest worker count must be positive")
	ErrEmptyEventTypes     = errors.New("event type whitelist cannot be empty")
)

// Config is the typed configuration record for the whole service.
// It is immutable after Load and shared by constructor injection.
type Config struct {
	DatabasePath string
	GitHubToken  string
	GitHubAPIURL string

	TargetRepositories []string
	EventTypes         []string

	PollInterval  time.Duration
	HTTPTimeout   time.Duration
	IngestWorkers int

	APIHost         string
	APIPort         int
	CORSOrigins     []string
	APIRateLimit    int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	CommitIndexing bool

	LogLevel slog.Level
}

// fileOverlay is the shape of the optional .ghpulse.yaml overlay.
// Env vars take precedence over file values; unknown keys are fatal.
type fileOverlay struct {
	TargetRepositories []string `yaml:"target_repositories"`
	EventTypes         []string `yaml:"event_types"`
}

// Load resolves configuration from the environment plus the optional YAML
// overlay named by CONFIG_FILE. A missing overlay file is not an error; a
// malformed one, or one with unknown keys, is.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath: GetEnvStr("DATABASE_PATH", DefaultDatabasePath),
		GitHubToken:  os.Getenv("GITHUB_TOKEN"),
		GitHubAPIURL: GetEnvStr("GITHUB_API_URL", DefaultGitHubAPIURL),

		TargetRepositories: ParseCommaSeparatedList(os.Getenv("TARGET_REPOSITORIES")),
		EventTypes:         ParseCommaSeparatedList(os.Getenv("EVENT_TYPES")),

		PollInterval:  GetEnvDuration("POLL_INTERVAL", DefaultPollInterval),
		HTTPTimeout:   GetEnvDuration("HTTP_TIMEOUT", DefaultHTTPTimeout),
		IngestWorkers: GetEnvInt("INGEST_WORKERS", DefaultIngestWorkers),

		APIHost:         GetEnvStr("API_HOST", DefaultAPIHost),
		APIPort:         GetEnvInt("API_PORT", DefaultAPIPort),
		CORSOrigins:     ParseCommaSeparatedList(os.Getenv("CORS_ORIGINS")),
		APIRateLimit:    GetEnvInt("API_RATE_LIMIT", 0),
		ReadTimeout:     GetEnvDuration("READ_TIMEOUT", DefaultHTTPTimeout),
		WriteTimeout:    GetEnvDuration("WRITE_TIMEOUT", DefaultHTTPTimeout),
		ShutdownTimeout: GetEnvDuration("SHUTDOWN_TIMEOUT", DefaultHTTPTimeout),

		KafkaBrokers: ParseCommaSeparatedList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   GetEnvStr("KAFKA_TOPIC", DefaultKafkaTopic),

		CommitIndexing: GetEnvBool("COMMIT_INDEXING", false),

		LogLevel: GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}

	// POLL_INTERVAL is documented in seconds; accept a bare integer too.
	if raw := os.Getenv("POLL_INTERVAL"); raw != "" {
		if _, err := time.ParseDuration(raw); err != nil {
			if secs := GetEnvInt("POLL_INTERVAL", 0); secs > 0 {
				cfg.PollInterval = time.Duration(secs) * time.Second
			}
		}
	}

	if err := cfg.applyOverlay(GetEnvStr("CONFIG_FILE", DefaultConfigFile)); err != nil {
		return nil, err
	}

	if len(cfg.EventTypes) == 0 {
		cfg.EventTypes = DefaultEventTypes()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultEventTypes returns the minimum recognized event-type whitelist.
func DefaultEventTypes() []string {
	return []string{"WatchEvent", "PullRequestEvent", "IssuesEvent"}
}

// applyOverlay merges the YAML overlay into fields the environment left unset.
func (c *Config) applyOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var overlay fileOverlay

	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)

	if err := decoder.Decode(&overlay); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if len(c.TargetRepositories) == 0 {
		c.TargetRepositories = overlay.TargetRepositories
	}

	if len(c.EventTypes) == 0 {
		c.EventTypes = overlay.EventTypes
	}

	return nil
}

// Validate checks the configuration for fatal startup errors.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return ErrEmptyDatabasePath
	}

	if c.PollInterval < minPollInterval {
		return fmt.Errorf("%w: got %v", ErrInvalidPollInterval, c.PollInterval)
	}

	if c.APIPort <= 0 || c.APIPort > maxPort {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.APIPort, maxPort)
	}

	if c.IngestWorkers <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkerCount, c.IngestWorkers)
	}

	if len(c.EventTypes) == 0 {
		return ErrEmptyEventTypes
	}

	for _, repo := range c.TargetRepositories {
		if !strings.Contains(repo, "/") {
			return fmt.Errorf("%w: %q", ErrInvalidTargetRepo, repo)
		}
	}

	return nil
}

// Targeted reports whether the engine should poll per-repo endpoints instead
// of the global events endpoint.
func (c *Config) Targeted() bool {
	return len(c.TargetRepositories) > 0
}

// FanoutEnabled reports whether the Kafka event fanout should be started.
func (c *Config) FanoutEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// APIAddress returns the HTTP bind address in host:port form.
func (c *Config) APIAddress() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}
