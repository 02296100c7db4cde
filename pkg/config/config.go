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
	Paystack     PaystackConfig
	Farm         FarmConfig
	RateLimit    RateLimitConfig
	Checkout     CheckoutConfig
	Worker       WorkerConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"FARMSTORE_APP_ENV" required:"true"`
	Port         string `envconfig:"FARMSTORE_APP_PORT" default:"8080"`
	BaseURL      string `envconfig:"FARMSTORE_APP_BASE_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"FARMSTORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FARMSTORE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FARMSTORE_DB_DSN"`
	Driver string `envconfig:"FARMSTORE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FARMSTORE_DB_HOST"`
	Port     int    `envconfig:"FARMSTORE_DB_PORT" default:"5432"`
	User     string `envconfig:"FARMSTORE_DB_USER"`
	Password string `envconfig:"FARMSTORE_DB_PASSWORD"`
	Name     string `envconfig:"FARMSTORE_DB_NAME"`
	SSLMode  string `envconfig:"FARMSTORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FARMSTORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FARMSTORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FARMSTORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FARMSTORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db DBConfig) UseSQLite() bool {
	return strings.EqualFold(db.Driver, "sqlite")
}

type RedisConfig struct {
	URL          string        `envconfig:"FARMSTORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FARMSTORE_REDIS_ADDR"`
	Password     string        `envconfig:"FARMSTORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"FARMSTORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FARMSTORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FARMSTORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FARMSTORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FARMSTORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FARMSTORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FARMSTORE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FARMSTORE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FARMSTORE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type PaystackConfig struct {
	SecretKey   string        `envconfig:"FARMSTORE_PAYSTACK_SECRET_KEY" required:"true"`
	BaseURL     string        `envconfig:"FARMSTORE_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	CallbackURL string        `envconfig:"FARMSTORE_PAYSTACK_CALLBACK_URL"`
	Timeout     time.Duration `envconfig:"FARMSTORE_PAYSTACK_TIMEOUT" default:"15s"`
}

type FarmConfig struct {
	BaseURL string        `envconfig:"FARMSTORE_FARM_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"FARMSTORE_FARM_API_KEY" required:"true"`
	Timeout time.Duration `envconfig:"FARMSTORE_FARM_TIMEOUT" default:"15s"`
}

type RateLimitConfig struct {
	CheckoutWindow time.Duration `envconfig:"FARMSTORE_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutLimit  int           `envconfig:"FARMSTORE_RATE_LIMIT_CHECKOUT_LIMIT" default:"10"`
	VerifyWindow   time.Duration `envconfig:"FARMSTORE_RATE_LIMIT_VERIFY_WINDOW" default:"1m"`
	VerifyLimit    int           `envconfig:"FARMSTORE_RATE_LIMIT_VERIFY_LIMIT" default:"30"`
}

type CheckoutConfig struct {
	ShippingCostKobo int64 `envconfig:"FARMSTORE_CHECKOUT_SHIPPING_COST_KOBO" default:"0"`
}

type WorkerConfig struct {
	Interval       time.Duration `envconfig:"FARMSTORE_WORKER_INTERVAL" default:"1h"`
	LockTTL        time.Duration `envconfig:"FARMSTORE_WORKER_LOCK_TTL" default:"55m"`
	CartIdleTTL    time.Duration `envconfig:"FARMSTORE_WORKER_CART_IDLE_TTL" default:"720h"`
	OutboxKeepFor  time.Duration `envconfig:"FARMSTORE_WORKER_OUTBOX_KEEP_FOR" default:"168h"`
	WebhookSeenTTL time.Duration `envconfig:"FARMSTORE_WEBHOOK_SEEN_TTL" default:"72h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FARMSTORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FARMSTORE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FARMSTORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"FARMSTORE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"FARMSTORE_PUBSUB_ORDERS_TOPIC" default:"farmstore-order-events"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FARMSTORE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.UseSQLite() {
		return fmt.Errorf("%s is required when the sqlite driver is selected", EnvDBDSN)
	}

	missing := []string{}
	parts := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
		if parts[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
