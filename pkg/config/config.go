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
	FeatureFlags FeatureFlagsConfig
	Orders       OrdersConfig
	Click        ClickConfig
	Payme        PaymeConfig
	Fiscal       FiscalConfig
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
	Env          string `envconfig:"SARQYT_APP_ENV" required:"true"`
	Port         string `envconfig:"SARQYT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SARQYT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SARQYT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SARQYT_DB_DSN"`
	Driver string `envconfig:"SARQYT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SARQYT_DB_HOST"`
	LegacyPort     int    `envconfig:"SARQYT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SARQYT_DB_USER"`
	LegacyPassword string `envconfig:"SARQYT_DB_PASSWORD"`
	LegacyName     string `envconfig:"SARQYT_DB_NAME"`
	LegacySSLMode  string `envconfig:"SARQYT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SARQYT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SARQYT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SARQYT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SARQYT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SARQYT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SARQYT_REDIS_ADDR"`
	Password     string        `envconfig:"SARQYT_REDIS_PASSWORD"`
	DB           int           `envconfig:"SARQYT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SARQYT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SARQYT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SARQYT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SARQYT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SARQYT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SARQYT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SARQYT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SARQYT_JWT_EXPIRATION_MINUTES" default:"720"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SARQYT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SARQYT_AUTO_MIGRATE" default:"false"`
}

type OrdersConfig struct {
	PickupCodeLength int           `envconfig:"SARQYT_ORDERS_PICKUP_CODE_LENGTH" default:"4"`
	PaymentTTL       time.Duration `envconfig:"SARQYT_ORDERS_PAYMENT_TTL" default:"30m"`
}

type ClickConfig struct {
	ServiceID  string `envconfig:"SARQYT_CLICK_SERVICE_ID"`
	MerchantID string `envconfig:"SARQYT_CLICK_MERCHANT_ID"`
	SecretKey  string `envconfig:"SARQYT_CLICK_SECRET_KEY"`
}

type PaymeConfig struct {
	MerchantID string `envconfig:"SARQYT_PAYME_MERCHANT_ID"`
	SecretKey  string `envconfig:"SARQYT_PAYME_SECRET_KEY"`
}

type FiscalConfig struct {
	BaseURL           string        `envconfig:"SARQYT_FISCAL_BASE_URL"`
	Token             string        `envconfig:"SARQYT_FISCAL_TOKEN"`
	Timeout           time.Duration `envconfig:"SARQYT_FISCAL_TIMEOUT" default:"10s"`
	MaxAttempts       int           `envconfig:"SARQYT_FISCAL_MAX_ATTEMPTS" default:"5"`
	PendingStaleAfter time.Duration `envconfig:"SARQYT_FISCAL_PENDING_STALE_AFTER" default:"10m"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"SARQYT_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SARQYT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SARQYT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SARQYT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"SARQYT_PUBSUB_ORDERS_TOPIC" default:"sq-order-events"`
	OrdersSubscription string `envconfig:"SARQYT_PUBSUB_ORDERS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"SARQYT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"SARQYT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"SARQYT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	DedupeTTL      time.Duration `envconfig:"SARQYT_OUTBOX_DEDUPE_TTL" default:"24h"`
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
