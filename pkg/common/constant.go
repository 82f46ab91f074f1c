package common

const (
	EnvKeyGoEnv string = "GO_ENV"

	EnvKeyRunIntegrationTests string = "RUN_INTEGRATION_TESTS"

	EnvKeyDatabaseURL string = "DATABASE_URL"
	EnvKeyAPIKey      string = "API_KEY"
	EnvKeyPort        string = "PORT"

	EnvKeyDBType           string = "GREENHOUSE_DB_TYPE"
	EnvKeyDBPath           string = "GREENHOUSE_DB_PATH"
	EnvKeyDBConnectTimeout string = "GREENHOUSE_DB_CONNECT_TIMEOUT"

	EnvKeyGrpcHostPort string = "GREENHOUSE_GRPC_HOST_PORT"

	EnvKeyDefaultRate  string = "GREENHOUSE_DEFAULT_RATE"
	EnvKeyDefaultBurst string = "GREENHOUSE_DEFAULT_BURST"

	HeaderAPIKey string = "x-api-key"

	LoggerNameRelayCore     string = "relay_core"
	LoggerNameRestfulServer string = "restful_server"
	LoggerNameGrpcServer    string = "grpc_server"
	LoggerNameStorage       string = "storage"
	LoggerFieldCategory     string = "category"
	LoggerCategoryReading   string = "reading"
	LoggerCategoryCommand   string = "command"
	LoggerCategoryAuth      string = "auth"
)
