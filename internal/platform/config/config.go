package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultJobName         = "credential-status-sync"
	DefaultLookback        = 120 * time.Minute
	DefaultCronSchedule    = "0 */2 * * *"
	DefaultConcurrency     = 1
	DefaultAdapterTimeout  = 10 * time.Second
	DefaultFeedTimeout     = 30 * time.Second
	DefaultProfileTopic    = "credential.profile-refresh"
	DefaultOpsAddr         = ":9090"
	DefaultShutdownTimeout = 30 * time.Second
)

// Sync holds the reconciliation loop settings.
type Sync struct {
	JobName           string
	Lookback          time.Duration
	CronSchedule      string
	InitialBackfill   time.Duration
	Concurrency       int
	AdapterTimeout    time.Duration
	CycleTimeout      time.Duration
	StrictTransitions bool
}

// Feed holds the upstream analytics feed settings.
type Feed struct {
	BaseURL    string
	Timeout    time.Duration
	APIToken   string
	SigningKey string
	Audience   string
}

// RedisConfig configures the optional redis client used for the cycle lock.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
}

// KafkaConfig configures the optional profile-refresh publisher.
type KafkaConfig struct {
	Brokers      []string
	ProfileTopic string
	ClientID     string
	QueueSize    int
}

// Issuer is one issuing platform reachable through the REST adapter.
type Issuer struct {
	Name    string
	BaseURL string
	APIKey  string
}

type Log struct {
	Level  string
	Format string
}

type Ops struct {
	Addr       string
	AdminToken string
}

// Config is built once in main and passed down by injection.
type Config struct {
	Sync              Sync
	Feed              Feed
	DatabaseURL       string
	Redis             RedisConfig
	Kafka             KafkaConfig
	PayloadSealingKey string
	Issuers           []Issuer
	Ops               Ops
	Log               Log
	ShutdownTimeout   time.Duration
}

// FromEnv loads a .env file when present, then reads the process environment.
func FromEnv() (Config, error) {
	_ = godotenv.Load()
	return Load(os.Getenv)
}

// Load builds a Config from getenv and validates it.
func Load(getenv func(string) string) (Config, error) {
	r := reader{getenv: getenv}

	cfg := Config{
		Sync: Sync{
			JobName:           r.str("SYNC_JOB_NAME", DefaultJobName),
			Lookback:          r.minutes("SYNC_LOOKBACK_MINUTES", DefaultLookback),
			CronSchedule:      r.str("SYNC_CRON_SCHEDULE", DefaultCronSchedule),
			InitialBackfill:   r.duration("SYNC_INITIAL_BACKFILL", 0),
			Concurrency:       r.int("SYNC_CONCURRENCY", DefaultConcurrency),
			AdapterTimeout:    r.duration("SYNC_ADAPTER_TIMEOUT", DefaultAdapterTimeout),
			CycleTimeout:      r.duration("SYNC_CYCLE_TIMEOUT", 0),
			StrictTransitions: r.bool("SYNC_STRICT_TRANSITIONS", true),
		},
		Feed: Feed{
			BaseURL:    r.str("FEED_BASE_URL", ""),
			Timeout:    r.duration("FEED_TIMEOUT", DefaultFeedTimeout),
			APIToken:   r.str("FEED_API_TOKEN", ""),
			SigningKey: r.str("FEED_SIGNING_KEY", ""),
			Audience:   r.str("FEED_AUDIENCE", ""),
		},
		DatabaseURL: r.str("DATABASE_URL", ""),
		Redis: RedisConfig{
			URL:          r.str("REDIS_URL", ""),
			PoolSize:     r.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      r.duration("REDIS_LOCK_TTL", 30*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:      r.list("KAFKA_BROKERS"),
			ProfileTopic: r.str("KAFKA_PROFILE_TOPIC", DefaultProfileTopic),
			ClientID:     r.str("KAFKA_CLIENT_ID", "credsync"),
			QueueSize:    r.int("PROFILE_QUEUE_SIZE", 256),
		},
		PayloadSealingKey: r.str("PAYLOAD_SEALING_KEY", ""),
		Ops: Ops{
			Addr:       r.str("OPS_ADDR", DefaultOpsAddr),
			AdminToken: r.str("OPS_ADMIN_TOKEN", ""),
		},
		Log: Log{
			Level:  r.str("LOG_LEVEL", "info"),
			Format: r.str("LOG_FORMAT", "json"),
		},
		ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
	}

	for _, name := range r.list("ISSUERS") {
		key := envKey(name)
		cfg.Issuers = append(cfg.Issuers, Issuer{
			Name:    strings.ToLower(name),
			BaseURL: r.str("ISSUER_"+key+"_URL", ""),
			APIKey:  r.str("ISSUER_"+key+"_API_KEY", ""),
		})
	}

	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Sync.JobName == "" {
		errs = append(errs, errors.New("SYNC_JOB_NAME must not be empty"))
	}
	if c.Sync.Lookback < 0 {
		errs = append(errs, errors.New("SYNC_LOOKBACK_MINUTES must not be negative"))
	}
	if c.Sync.InitialBackfill < 0 {
		errs = append(errs, errors.New("SYNC_INITIAL_BACKFILL must not be negative"))
	}
	if c.Sync.Concurrency < 1 {
		errs = append(errs, errors.New("SYNC_CONCURRENCY must be at least 1"))
	}
	if c.Sync.AdapterTimeout <= 0 {
		errs = append(errs, errors.New("SYNC_ADAPTER_TIMEOUT must be positive"))
	}
	if c.Sync.CycleTimeout < 0 {
		errs = append(errs, errors.New("SYNC_CYCLE_TIMEOUT must not be negative"))
	}
	if c.RedisEnabled() && c.Redis.LockTTL <= 0 {
		errs = append(errs, errors.New("REDIS_LOCK_TTL must be positive when REDIS_URL is set"))
	}
	if c.Feed.BaseURL == "" {
		errs = append(errs, errors.New("FEED_BASE_URL is required"))
	}
	if c.Feed.APIToken != "" && c.Feed.SigningKey != "" {
		errs = append(errs, errors.New("FEED_API_TOKEN and FEED_SIGNING_KEY are mutually exclusive"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.PayloadSealingKey == "" {
		errs = append(errs, errors.New("PAYLOAD_SEALING_KEY is required"))
	}
	seen := make(map[string]struct{}, len(c.Issuers))
	for _, iss := range c.Issuers {
		if _, dup := seen[iss.Name]; dup {
			errs = append(errs, fmt.Errorf("issuer %q listed twice in ISSUERS", iss.Name))
		}
		seen[iss.Name] = struct{}{}
		if iss.BaseURL == "" {
			errs = append(errs, fmt.Errorf("ISSUER_%s_URL is required", envKey(iss.Name)))
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be json or text", c.Log.Format))
	}
	return errors.Join(errs...)
}

// RedisEnabled reports whether the cross-replica cycle lock is configured.
func (c Config) RedisEnabled() bool { return c.Redis.URL != "" }

// KafkaEnabled reports whether profile refreshes are published.
func (c Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 }

func envKey(name string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
}

// reader collects parse errors so a misconfigured deployment sees all of them.
type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) raw(key string) string {
	return strings.TrimSpace(r.getenv(key))
}

func (r *reader) str(key, def string) string {
	if v := r.raw(key); v != "" {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v := r.raw(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	v := r.raw(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

// duration accepts Go duration strings ("90s", "2h").
func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.raw(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (r *reader) minutes(key string, def time.Duration) time.Duration {
	v := r.raw(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid minute count %q", key, v))
		return def
	}
	return time.Duration(n) * time.Minute
}

func (r *reader) list(key string) []string {
	v := r.raw(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
