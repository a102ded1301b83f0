package config

// EnvPrefix is handed to envconfig; every field carries its full name in the tag.
const EnvPrefix = "ONENESS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "ONENESS_APP_ENV"
	EnvPort     = "ONENESS_APP_PORT"
	EnvLogLevel = "ONENESS_LOG_LEVEL"

	EnvDBDSN  = "ONENESS_DB_DSN"
	EnvDBHost = "ONENESS_DB_HOST"
	EnvDBUser = "ONENESS_DB_USER"
	EnvDBName = "ONENESS_DB_NAME"

	EnvRedisURL = "ONENESS_REDIS_URL"

	EnvJWTSecret = "ONENESS_JWT_SECRET"
	EnvJWTIssuer = "ONENESS_JWT_ISSUER"

	EnvWelcomeBonus        = "ONENESS_LEDGER_WELCOME_BONUS_OP"
	EnvExchangeFeePercent  = "ONENESS_LEDGER_EXCHANGE_FEE_PERCENT"
	EnvMaxExchangePercent  = "ONENESS_LEDGER_MAX_EXCHANGE_PERCENT"
	EnvMonthlyLimitDivisor = "ONENESS_LEDGER_MONTHLY_LIMIT_DIVISOR"

	EnvRatesOPTo = "ONENESS_RATES_OP_TO"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
