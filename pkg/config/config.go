package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Ledger       LedgerConfig
	Rates        RatesConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	BigQuery     BigQueryConfig
	Analytics    AnalyticsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env             string        `envconfig:"ONENESS_APP_ENV" required:"true"`
	Port            string        `envconfig:"ONENESS_APP_PORT" required:"true"`
	LogLevel        string        `envconfig:"ONENESS_LOG_LEVEL" default:"info"`
	LogWarnStack    bool          `envconfig:"ONENESS_LOG_WARN_STACK" default:"false"`
	RequestTimeout  time.Duration `envconfig:"ONENESS_REQUEST_TIMEOUT" default:"15s"`
	CORSOrigins     []string      `envconfig:"ONENESS_CORS_ORIGINS" default:"http://localhost:3000"`
	WriteRateLimit  int           `envconfig:"ONENESS_WRITE_RATE_LIMIT" default:"60"`
	WriteRateWindow time.Duration `envconfig:"ONENESS_WRITE_RATE_WINDOW" default:"1m"`
	// MetricsAddr exposes /metrics on workers that have no public router.
	MetricsAddr string `envconfig:"ONENESS_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ONENESS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ONENESS_DB_DSN"`
	Driver string `envconfig:"ONENESS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ONENESS_DB_HOST"`
	LegacyPort     int    `envconfig:"ONENESS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ONENESS_DB_USER"`
	LegacyPassword string `envconfig:"ONENESS_DB_PASSWORD"`
	LegacyName     string `envconfig:"ONENESS_DB_NAME"`
	LegacySSLMode  string `envconfig:"ONENESS_DB_SSLMODE" default:"require"`

	MaxOpenConns    int           `envconfig:"ONENESS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ONENESS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ONENESS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ONENESS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ONENESS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ONENESS_REDIS_ADDR"`
	Password     string        `envconfig:"ONENESS_REDIS_PASSWORD"`
	DB           int           `envconfig:"ONENESS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ONENESS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ONENESS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ONENESS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ONENESS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ONENESS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies access tokens minted by the managed auth provider.
type JWTConfig struct {
	Secret   string `envconfig:"ONENESS_JWT_SECRET" required:"true"`
	Issuer   string `envconfig:"ONENESS_JWT_ISSUER" required:"true"`
	Audience string `envconfig:"ONENESS_JWT_AUDIENCE" default:"authenticated"`
	// ExpirationMinutes is only used when the service mints tokens itself (tests, seed tooling).
	ExpirationMinutes int `envconfig:"ONENESS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type LedgerConfig struct {
	WelcomeBonusOP      int64   `envconfig:"ONENESS_LEDGER_WELCOME_BONUS_OP" default:"100"`
	ExchangeFeePercent  float64 `envconfig:"ONENESS_LEDGER_EXCHANGE_FEE_PERCENT" default:"5"`
	MaxExchangePercent  float64 `envconfig:"ONENESS_LEDGER_MAX_EXCHANGE_PERCENT" default:"95"`
	MonthlyLimitDivisor int64   `envconfig:"ONENESS_LEDGER_MONTHLY_LIMIT_DIVISOR" default:"3"`
}

func (l LedgerConfig) validate() error {
	if l.WelcomeBonusOP < 0 {
		return fmt.Errorf("%s must not be negative", EnvWelcomeBonus)
	}
	if l.ExchangeFeePercent < 0 || l.ExchangeFeePercent >= 100 {
		return fmt.Errorf("%s must be in [0, 100)", EnvExchangeFeePercent)
	}
	if l.MaxExchangePercent <= 0 || l.MaxExchangePercent > 100 {
		return fmt.Errorf("%s must be in (0, 100]", EnvMaxExchangePercent)
	}
	if l.MonthlyLimitDivisor <= 0 {
		return fmt.Errorf("%s must be positive", EnvMonthlyLimitDivisor)
	}
	return nil
}

// RatesConfig seeds the static rate provider; keys are currency codes.
type RatesConfig struct {
	OPTo     map[string]string `envconfig:"ONENESS_RATES_OP_TO" default:"JPY:1,USD:0.0067,USDT:0.0067,USDC:0.0067"`
	CacheTTL time.Duration     `envconfig:"ONENESS_RATES_CACHE_TTL" default:"1m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ONENESS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ONENESS_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ONENESS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ONENESS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ONENESS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LedgerTopic  string `envconfig:"ONENESS_PUBSUB_LEDGER_TOPIC" default:"ok-ledger-events"`
	ProfileTopic string `envconfig:"ONENESS_PUBSUB_PROFILE_TOPIC" default:"ok-profile-events"`
	// AnalyticsSubscription is read by the analytics worker only.
	AnalyticsSubscription string `envconfig:"ONENESS_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"ok-ledger-analytics"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ONENESS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ONENESS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ONENESS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type BigQueryConfig struct {
	Dataset           string `envconfig:"ONENESS_BIGQUERY_DATASET" default:"oneness"`
	LedgerEventsTable string `envconfig:"ONENESS_BIGQUERY_LEDGER_EVENTS_TABLE" default:"ledger_events"`
}

type AnalyticsConfig struct {
	DedupeTTL time.Duration `envconfig:"ONENESS_ANALYTICS_DEDUPE_TTL" default:"720h"`
}

// CronConfig drives the maintenance worker.
type CronConfig struct {
	Interval            time.Duration `envconfig:"ONENESS_CRON_INTERVAL" default:"1h"`
	LockTTL             time.Duration `envconfig:"ONENESS_CRON_LOCK_TTL" default:"55m"`
	OutboxRetentionDays int           `envconfig:"ONENESS_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	AuditLookback       time.Duration `envconfig:"ONENESS_CRON_AUDIT_LOOKBACK" default:"48h"`
	StaleExchangeAfter  time.Duration `envconfig:"ONENESS_CRON_STALE_EXCHANGE_AFTER" default:"72h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
