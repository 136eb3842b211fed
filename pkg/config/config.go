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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Availability AvailabilityConfig
	Reserve      ReserveConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"WAYFARE_APP_ENV" required:"true"`
	Port         string `envconfig:"WAYFARE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"WAYFARE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WAYFARE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"WAYFARE_DB_DSN"`
	Driver string `envconfig:"WAYFARE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"WAYFARE_DB_HOST"`
	LegacyPort     int    `envconfig:"WAYFARE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WAYFARE_DB_USER"`
	LegacyPassword string `envconfig:"WAYFARE_DB_PASSWORD"`
	LegacyName     string `envconfig:"WAYFARE_DB_NAME"`
	LegacySSLMode  string `envconfig:"WAYFARE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WAYFARE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WAYFARE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WAYFARE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WAYFARE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WAYFARE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"WAYFARE_REDIS_ADDR"`
	Password     string        `envconfig:"WAYFARE_REDIS_PASSWORD"`
	DB           int           `envconfig:"WAYFARE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WAYFARE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WAYFARE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WAYFARE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WAYFARE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WAYFARE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"WAYFARE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"WAYFARE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"WAYFARE_JWT_EXPIRATION_MINUTES" default:"30"`
}

// AvailabilityConfig tunes the display classification. The limited threshold
// is the booked/capacity ratio above which a date renders as "limited".
type AvailabilityConfig struct {
	LimitedThreshold float64       `envconfig:"WAYFARE_AVAILABILITY_LIMITED_THRESHOLD" default:"0.70"`
	CacheTTL         time.Duration `envconfig:"WAYFARE_AVAILABILITY_CACHE_TTL" default:"5m"`
	MaxRangeDays     int           `envconfig:"WAYFARE_AVAILABILITY_MAX_RANGE_DAYS" default:"93"`
	SubscriberBuffer int           `envconfig:"WAYFARE_AVAILABILITY_SUBSCRIBER_BUFFER" default:"16"`
}

// ReserveConfig bounds the retry loop around storage contention.
type ReserveConfig struct {
	MaxAttempts  int           `envconfig:"WAYFARE_RESERVE_MAX_ATTEMPTS" default:"3"`
	RetryBackoff time.Duration `envconfig:"WAYFARE_RESERVE_RETRY_BACKOFF" default:"25ms"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"WAYFARE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"WAYFARE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"WAYFARE_GCP_PROJECT_ID" required:"true"`
}

type PubSubConfig struct {
	OccupancyTopic        string `envconfig:"WAYFARE_PUBSUB_OCCUPANCY_TOPIC" default:"wf-occupancy-events"`
	OccupancySubscription string `envconfig:"WAYFARE_PUBSUB_OCCUPANCY_SUBSCRIPTION" required:"true"`
	ReservationTopic      string `envconfig:"WAYFARE_PUBSUB_RESERVATION_TOPIC" default:"wf-reservation-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"WAYFARE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"WAYFARE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"WAYFARE_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
