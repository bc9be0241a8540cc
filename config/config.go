package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Scheduler SchedulerConfig
	Scraper   ScraperConfig
	Proxy     ProxyConfig
	Publish   PublishConfig
	DBPath    string
	DataDir   string
	QueuePath string
	// Optional Postgres archive of every normalized listing
	DatabaseURL string
	LogLevel    string
	Sources     map[string]*SourceConfig
	Searches    []SavedSearch
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type ScraperConfig struct {
	DelayMS        int
	AdapterTimeout time.Duration
}

type ProxyConfig struct {
	URL string
}

type PublishConfig struct {
	Mode    string // git, s3, none
	RepoDir string
	Remote  string
	Branch  string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3KeyPrefix string
	S3AccessKey string
	S3SecretKey string
}

type SourceConfig struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Handler     string            `yaml:"handler"`
	Kinds       []string          `yaml:"kinds"`
	RateLimitMS int               `yaml:"rate_limit_ms"`
	MaxPages    int               `yaml:"max_pages"`
	Endpoints   map[string]string `yaml:"endpoints"`
}

// SavedSearch is a recurring search enqueued on every scheduler trigger.
type SavedSearch struct {
	Term       string   `yaml:"term"`
	PostalCode string   `yaml:"postal_code"`
	Kind       string   `yaml:"kind"`
	Sources    []string `yaml:"sources"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Scheduler: SchedulerConfig{
			Cron:     os.Getenv("SEARCH_CRON"),
			Interval: getEnvDuration("SEARCH_INTERVAL", 30*time.Minute),
		},
		Scraper: ScraperConfig{
			DelayMS:        getEnvInt("SCRAPE_DELAY_MS", 500),
			AdapterTimeout: getEnvDuration("ADAPTER_TIMEOUT", 45*time.Second),
		},
		Proxy: ProxyConfig{
			URL: os.Getenv("PROXY_URL"),
		},
		Publish: PublishConfig{
			Mode:        getEnv("PUBLISH_MODE", "none"),
			RepoDir:     getEnv("PUBLISH_REPO_DIR", "."),
			Remote:      getEnv("PUBLISH_REMOTE", "origin"),
			Branch:      getEnv("PUBLISH_BRANCH", "main"),
			S3Bucket:    os.Getenv("S3_BUCKET"),
			S3Region:    getEnv("S3_REGION", "eu-central-1"),
			S3Endpoint:  os.Getenv("S3_ENDPOINT"),
			S3KeyPrefix: getEnv("S3_KEY_PREFIX", "data"),
			S3AccessKey: os.Getenv("S3_ACCESS_KEY_ID"),
			S3SecretKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		DBPath:      getEnv("DB_PATH", "searches.db"),
		DataDir:     getEnv("DATA_DIR", "data"),
		QueuePath:   getEnv("QUEUE_PATH", filepath.Join(getEnv("DATA_DIR", "data"), "queue.json")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Sources:     make(map[string]*SourceConfig),
	}

	if err := cfg.loadSourceConfigs(); err != nil {
		return nil, err
	}
	if err := cfg.loadSearches(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadSourceConfigs() error {
	configDir := getEnv("SOURCES_DIR", "config/sources")
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var source SourceConfig
		if err := yaml.Unmarshal(data, &source); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if source.ID == "" {
			return fmt.Errorf("source config %s has no id", path)
		}

		c.Sources[source.ID] = &source
	}

	return nil
}

func (c *Config) loadSearches() error {
	path := getEnv("SEARCHES_PATH", "config/searches.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var doc struct {
		Searches []SavedSearch `yaml:"searches"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	c.Searches = doc.Searches
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
