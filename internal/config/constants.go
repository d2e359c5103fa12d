package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 8381
	defaultEnv        = "development"
	defaultLogLevel   = "info"

	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "catalog"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "UTC"

	defaultRedisHost = "localhost"
	defaultRedisPort = 6379
	defaultRedisDB   = 0

	defaultUpgradeDeadlineDays = 10
	defaultHTTPTimeout         = 30 * time.Second

	defaultMarketingDrainInterval = time.Minute
	defaultMarketingRetention     = 7 * 24 * time.Hour
	defaultMarketingBatchSize     = 50

	defaultImageDriver  = ImageDriverLocal
	defaultImageBaseURL = "/static"
	defaultS3Region     = "us-east-1"
)
