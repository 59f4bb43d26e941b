package config

// EnvPrefix is passed to envconfig; individual fields carry fully
// prefixed tags so this stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "SARQYT_DB_DSN"
	EnvDBHost = "SARQYT_DB_HOST"
	EnvDBUser = "SARQYT_DB_USER"
	EnvDBName = "SARQYT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
