package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds shared service configuration sourced from environment
// variables, with an optional YAML override for the report schedule.
type Config struct {
	WebhookAddr         string
	QueryAddr           string
	LoaderMetricsAddr   string
	ReporterMetricsAddr string

	KafkaBrokers  []string
	KafkaTopicRaw string

	ClickHouseDSN string

	RedisAddr     string
	RedisPassword string
	DedupTTL      time.Duration

	WebhookSecret string

	RingbaBaseURL   string
	RingbaToken     string
	RingbaAccountID string

	SheetsBaseURL string
	SheetsAPIKey  string
	SpreadsheetID string
	SheetName     string

	SlackWebhookURL string

	FetchTimeout  time.Duration
	BatchSize     int
	BatchInterval time.Duration

	BufferCapacity      int
	BufferDrainBatch    int
	BufferFlushInterval time.Duration

	Schedule ScheduleConfig
}

// ScheduleConfig mirrors the optional schedule YAML file. Zero fields keep
// the scheduler defaults.
type ScheduleConfig struct {
	TriggerHours        []int `yaml:"trigger_hours"`
	OpenHour            int   `yaml:"open_hour"`
	CloseHour           int   `yaml:"close_hour"`
	SettleHour          int   `yaml:"settle_hour"`
	SettleBufferMinutes int   `yaml:"settle_buffer_minutes"`
}

// Load parses process environment variables into a Config, reading a .env
// file first when one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		WebhookAddr:         getenv("WEBHOOK_ADDR", ":8080"),
		QueryAddr:           getenv("QUERY_ADDR", ":8081"),
		LoaderMetricsAddr:   getenv("LOADER_METRICS_ADDR", ":9101"),
		ReporterMetricsAddr: getenv("REPORTER_METRICS_ADDR", ":9102"),
		KafkaBrokers:        splitAndTrim(getenv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopicRaw:       getenv("KAFKA_TOPIC_RAW", "calls.raw"),
		ClickHouseDSN:       getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000?database=default&dial_timeout=5s&compress=true"),
		RedisAddr:           getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		DedupTTL:            durationDefault("DEDUP_TTL_HOURS", 30*24, time.Hour),
		WebhookSecret:       os.Getenv("WEBHOOK_HMAC_SECRET"),
		RingbaBaseURL:       os.Getenv("RINGBA_BASE_URL"),
		RingbaToken:         os.Getenv("RINGBA_API_TOKEN"),
		RingbaAccountID:     os.Getenv("RINGBA_ACCOUNT_ID"),
		SheetsBaseURL:       os.Getenv("SHEETS_BASE_URL"),
		SheetsAPIKey:        os.Getenv("SHEETS_API_KEY"),
		SpreadsheetID:       os.Getenv("MASTER_CPA_SHEET_ID"),
		SheetName:           getenv("SALES_SHEET_NAME", "Real Time"),
		SlackWebhookURL:     os.Getenv("SLACK_WEBHOOK_URL"),
		FetchTimeout:        durationDefault("FETCH_TIMEOUT_SECONDS", 30, time.Second),
		BatchSize:           atoiDefault("LOADER_BATCH_SIZE", 500),
		BatchInterval:       durationDefault("LOADER_BATCH_INTERVAL_MS", 800, time.Millisecond),
		BufferCapacity:      atoiDefault("BUFFER_CAPACITY", 100),
		BufferDrainBatch:    atoiDefault("BUFFER_DRAIN_BATCH", 25),
		BufferFlushInterval: durationDefault("BUFFER_FLUSH_INTERVAL_MS", 2000, time.Millisecond),
	}

	if path := os.Getenv("SCHEDULE_CONFIG_PATH"); path != "" {
		sched, err := loadScheduleConfig(path)
		if err != nil {
			return Config{}, fmt.Errorf("load schedule config: %w", err)
		}
		cfg.Schedule = sched
	}
	return cfg, nil
}

// ValidateReporter checks the credentials the reporting daemon cannot run
// without. Missing credentials are the one fatal startup error class.
func (c Config) ValidateReporter() error {
	if c.RingbaToken == "" {
		return fmt.Errorf("RINGBA_API_TOKEN is required")
	}
	if c.RingbaAccountID == "" {
		return fmt.Errorf("RINGBA_ACCOUNT_ID is required")
	}
	if c.SlackWebhookURL == "" {
		return fmt.Errorf("SLACK_WEBHOOK_URL is required")
	}
	if c.SpreadsheetID == "" {
		return fmt.Errorf("MASTER_CPA_SHEET_ID is required")
	}
	return nil
}

func loadScheduleConfig(path string) (ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ScheduleConfig{}, err
	}
	var sched ScheduleConfig
	if err := yaml.Unmarshal(data, &sched); err != nil {
		return ScheduleConfig{}, err
	}
	return sched, nil
}

func getenv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return def
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func atoiDefault(key string, def int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func durationDefault(key string, def int, unit time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return time.Duration(parsed) * unit
		}
	}
	return time.Duration(def) * unit
}
