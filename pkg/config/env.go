package config

const EnvPrefix = "LIBRARY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	StorageDriverLocal = "local"
	StorageDriverGCS   = "gcs"
)

const (
	EnvAppEnv   = "LIBRARY_APP_ENV"
	EnvPort     = "LIBRARY_APP_PORT"
	EnvLogLevel = "LIBRARY_LOG_LEVEL"

	EnvDBDSN  = "LIBRARY_DB_DSN"
	EnvDBHost = "LIBRARY_DB_HOST"
	EnvDBUser = "LIBRARY_DB_USER"
	EnvDBName = "LIBRARY_DB_NAME"

	EnvRedisURL = "LIBRARY_REDIS_URL"

	EnvJWTSecret  = "LIBRARY_JWT_SECRET"
	EnvJWTIssuer  = "LIBRARY_JWT_ISSUER"
	EnvJWTExpMins = "LIBRARY_JWT_EXPIRATION_MINUTES"

	EnvAdminCode      = "LIBRARY_ADMIN_CODE"
	EnvLoanPeriodDays = "LIBRARY_LOAN_PERIOD_DAYS"
	EnvFinePerDay     = "LIBRARY_FINE_PER_DAY"

	EnvStorageDriver = "LIBRARY_STORAGE_DRIVER"
	EnvGCSBucket     = "LIBRARY_GCS_BUCKET_NAME"
)

var splitDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
