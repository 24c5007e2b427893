package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	CartBackendRedis  = "redis"
	CartBackendSQL    = "sql"
	CartBackendMemory = "memory"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"
	EnvCORS     = "STOREFRONT_CORS_ORIGINS"

	EnvDBDSN      = "STOREFRONT_DB_DSN"
	EnvDBHost     = "STOREFRONT_DB_HOST"
	EnvDBUser     = "STOREFRONT_DB_USER"
	EnvDBName     = "STOREFRONT_DB_NAME"
	EnvSQLitePath = "STOREFRONT_SQLITE_PATH"
	EnvUseSQLite  = "STOREFRONT_USE_SQLITE"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"

	EnvStoreAPIBaseURL = "STOREFRONT_STORE_API_BASE_URL"

	EnvCartBackend        = "STOREFRONT_CART_BACKEND"
	EnvCartTimezone       = "STOREFRONT_CART_TIMEZONE"
	EnvCartDecreasePolicy = "STOREFRONT_CART_DECREASE_POLICY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
