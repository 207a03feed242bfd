package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Library       LibraryConfig
	Storage       StorageConfig
	GCP           GCPConfig
	GCS           GCSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LIBRARY_APP_ENV" required:"true"`
	Port         string `envconfig:"LIBRARY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LIBRARY_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LIBRARY_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"LIBRARY_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"LIBRARY_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated origin list.
func (a AppConfig) AllowedOrigins() []string {
	out := []string{}
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type DBConfig struct {
	DSN    string `envconfig:"LIBRARY_DB_DSN"`
	Driver string `envconfig:"LIBRARY_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"LIBRARY_DB_HOST"`
	Port     int    `envconfig:"LIBRARY_DB_PORT" default:"5432"`
	User     string `envconfig:"LIBRARY_DB_USER"`
	Password string `envconfig:"LIBRARY_DB_PASSWORD"`
	Name     string `envconfig:"LIBRARY_DB_NAME"`
	SSLMode  string `envconfig:"LIBRARY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LIBRARY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LIBRARY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LIBRARY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LIBRARY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery is the duration past which a statement is logged at warn.
	SlowQuery time.Duration `envconfig:"LIBRARY_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LIBRARY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LIBRARY_REDIS_ADDR"`
	Password     string        `envconfig:"LIBRARY_REDIS_PASSWORD"`
	DB           int           `envconfig:"LIBRARY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LIBRARY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LIBRARY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LIBRARY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LIBRARY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LIBRARY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LIBRARY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LIBRARY_JWT_ISSUER" default:"libraryhub"`
	ExpirationMinutes int    `envconfig:"LIBRARY_JWT_EXPIRATION_MINUTES" default:"1440"`
}

// TokenTTL returns the access token lifetime.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"LIBRARY_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"LIBRARY_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"LIBRARY_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"LIBRARY_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"LIBRARY_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow           time.Duration `envconfig:"LIBRARY_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginMatricLimit      int           `envconfig:"LIBRARY_AUTH_RATE_LIMIT_LOGIN_MATRIC_LIMIT" default:"5"`
	LoginIPLimit          int           `envconfig:"LIBRARY_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow        time.Duration `envconfig:"LIBRARY_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterMatricLimit   int           `envconfig:"LIBRARY_AUTH_RATE_LIMIT_REGISTER_MATRIC_LIMIT" default:"3"`
	RegisterIPLimit       int           `envconfig:"LIBRARY_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
	IdempotencyDefaultTTL time.Duration `envconfig:"LIBRARY_IDEMPOTENCY_TTL" default:"24h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LIBRARY_AUTO_MIGRATE" default:"false"`
}

// LibraryConfig carries the circulation policy knobs.
type LibraryConfig struct {
	AdminCode      string `envconfig:"LIBRARY_ADMIN_CODE" required:"true"`
	LoanPeriodDays int    `envconfig:"LIBRARY_LOAN_PERIOD_DAYS" default:"14"`
	FinePerDay     string `envconfig:"LIBRARY_FINE_PER_DAY" default:"50"`
}

type StorageConfig struct {
	Driver        string `envconfig:"LIBRARY_STORAGE_DRIVER" default:"local"`
	LocalDir      string `envconfig:"LIBRARY_STORAGE_LOCAL_DIR" default:"static"`
	PublicBaseURL string `envconfig:"LIBRARY_STORAGE_PUBLIC_BASE_URL" default:"/static"`
	MaxUploadMB   int    `envconfig:"LIBRARY_MAX_UPLOAD_MB" default:"5"`
}

// MaxUploadBytes converts the configured upload ceiling to bytes.
func (s StorageConfig) MaxUploadBytes() int64 {
	if s.MaxUploadMB <= 0 {
		return 5 << 20
	}
	return int64(s.MaxUploadMB) << 20
}

func (s StorageConfig) validate() error {
	switch strings.ToLower(s.Driver) {
	case StorageDriverLocal, StorageDriverGCS:
		return nil
	default:
		return fmt.Errorf("%s must be one of %s, %s", EnvStorageDriver, StorageDriverLocal, StorageDriverGCS)
	}
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LIBRARY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LIBRARY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LIBRARY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"LIBRARY_GCS_BUCKET_NAME"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range splitDBEnvVars {
		if values[env] == "" {
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
