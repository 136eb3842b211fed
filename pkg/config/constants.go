package config

const (
	// EnvPrefix is intentionally empty: every variable carries the full
	// WAYFARE_ prefix in its envconfig tag.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "WAYFARE_DB_DSN"
	EnvDBHost = "WAYFARE_DB_HOST"
	EnvDBUser = "WAYFARE_DB_USER"
	EnvDBName = "WAYFARE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
