package config

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "FARMSTORE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "FARMSTORE_DB_DSN"
	EnvDBHost = "FARMSTORE_DB_HOST"
	EnvDBUser = "FARMSTORE_DB_USER"
	EnvDBName = "FARMSTORE_DB_NAME"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
