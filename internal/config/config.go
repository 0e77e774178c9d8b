package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gosight/campaignsync/internal/activity"
)

type Config struct {
	Accounts   []AccountConfig  `yaml:"accounts"`
	Lemlist    LemlistConfig    `yaml:"lemlist"`
	Sync       SyncConfig       `yaml:"sync"`
	Sink       SinkConfig       `yaml:"sink"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Server     ServerConfig     `yaml:"server"`
}

type AccountConfig struct {
	ID     string `yaml:"id"`
	APIKey string `yaml:"api_key"`
}

type LemlistConfig struct {
	BaseURL         string        `yaml:"base_url"`
	BatchSize       int           `yaml:"batch_size"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	RequestDelay    time.Duration `yaml:"request_delay"`
	Timeout         time.Duration `yaml:"timeout"`
	IncludeArchived bool          `yaml:"include_archived"`
}

type SyncConfig struct {
	// Interval of zero runs a single sync and exits
	Interval         time.Duration `yaml:"interval"`
	ParallelAccounts bool          `yaml:"parallel_accounts"`
}

type SinkConfig struct {
	Driver            string `yaml:"driver"`
	ActivityBatchSize int    `yaml:"activity_batch_size"`
}

type ClickHouseConfig struct {
	Addr         string `yaml:"addr"`
	Database     string `yaml:"database"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	ReplyTTL time.Duration `yaml:"reply_ttl"`
}

type KafkaConfig struct {
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

type KafkaTopics struct {
	Campaigns string `yaml:"campaigns"`
	SyncRuns  string `yaml:"sync_runs"`
}

type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

const (
	DriverClickHouse = "clickhouse"
	DriverPostgres   = "postgres"
)

const (
	DefaultBatchSize         = 100
	DefaultActivityBatchSize = 500
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML config after expanding environment variables and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	// include_archived is true unless the file says otherwise
	cfg := Config{Lemlist: LemlistConfig{IncludeArchived: true}}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Lemlist.BaseURL == "" {
		cfg.Lemlist.BaseURL = "https://api.lemlist.com/api"
	}
	if cfg.Lemlist.BatchSize == 0 {
		cfg.Lemlist.BatchSize = DefaultBatchSize
	}
	if cfg.Lemlist.MaxRetries == 0 {
		cfg.Lemlist.MaxRetries = 3
	}
	if cfg.Lemlist.RetryDelay == 0 {
		cfg.Lemlist.RetryDelay = 5 * time.Second
	}
	if cfg.Lemlist.RequestDelay == 0 {
		cfg.Lemlist.RequestDelay = 500 * time.Millisecond
	}
	if cfg.Lemlist.Timeout == 0 {
		cfg.Lemlist.Timeout = 30 * time.Second
	}
	if cfg.Sink.Driver == "" {
		cfg.Sink.Driver = DriverClickHouse
	}
	if cfg.Sink.ActivityBatchSize == 0 {
		cfg.Sink.ActivityBatchSize = DefaultActivityBatchSize
	}
	if cfg.ClickHouse.MaxOpenConns == 0 {
		cfg.ClickHouse.MaxOpenConns = 10
	}
	if cfg.ClickHouse.MaxIdleConns == 0 {
		cfg.ClickHouse.MaxIdleConns = 5
	}
	if cfg.Redis.ReplyTTL == 0 {
		cfg.Redis.ReplyTTL = 7 * 24 * time.Hour
	}
	if cfg.Kafka.Topics.Campaigns == "" {
		cfg.Kafka.Topics.Campaigns = "campaign-overview"
	}
	if cfg.Kafka.Topics.SyncRuns == "" {
		cfg.Kafka.Topics.SyncRuns = "sync-runs"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8090
	}

	// Unset broker variables expand to empty entries
	brokers := cfg.Kafka.Brokers[:0]
	for _, b := range cfg.Kafka.Brokers {
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	cfg.Kafka.Brokers = brokers

	if cfg.Lemlist.BatchSize < 0 {
		return nil, fmt.Errorf("lemlist.batch_size must be positive, got %d", cfg.Lemlist.BatchSize)
	}
	if cfg.Sink.ActivityBatchSize < 0 {
		return nil, fmt.Errorf("sink.activity_batch_size must be positive, got %d", cfg.Sink.ActivityBatchSize)
	}

	switch cfg.Sink.Driver {
	case DriverClickHouse, DriverPostgres:
	default:
		return nil, fmt.Errorf("unknown sink driver %q", cfg.Sink.Driver)
	}

	return &cfg, nil
}

// ActiveAccounts returns the configured accounts that have an API key, with
// missing ids defaulted to ACC_<position>.
func (c *Config) ActiveAccounts() []activity.Account {
	accounts := make([]activity.Account, 0, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.APIKey == "" {
			continue
		}
		id := a.ID
		if id == "" {
			id = fmt.Sprintf("ACC_%d", i+1)
		}
		accounts = append(accounts, activity.Account{ID: id, APIKey: a.APIKey})
	}
	return accounts
}
