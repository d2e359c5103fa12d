package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at configPath, applies defaults and validates the result.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML content. Unknown keys are rejected.
func Parse(content []byte) (*AppConfig, error) {
	cfg := defaultAppConfig()
	raw := rawAppConfig{}
	if len(bytes.TrimSpace(content)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
	}

	if err := applyRawAppConfig(&cfg, raw); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port:     defaultPort,
		Env:      defaultEnv,
		LogLevel: defaultLogLevel,
		Database: DatabaseRuntimeConfig{
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		HTTPTimeout: defaultHTTPTimeout,
		Publisher:   PublisherConfig{UpgradeDeadlineDays: defaultUpgradeDeadlineDays},
		Marketing: MarketingConfig{
			DrainInterval: defaultMarketingDrainInterval,
			Retention:     defaultMarketingRetention,
			BatchSize:     defaultMarketingBatchSize,
		},
		ImageStorage: ImageStorageConfig{
			Driver:  defaultImageDriver,
			BaseURL: defaultImageBaseURL,
			S3:      S3Config{Region: defaultS3Region},
		},
	}
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) error {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	cfg.Env = normalizeEnv(cfg.Env)
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.Database = normalizeDatabaseConfig(applyRawDatabaseConfig(cfg.Database, raw))
	cfg.Redis = normalizeRedisConfig(applyRawRedisConfig(cfg.Redis, raw))
	cfg.DSN = cfg.Database.DSNValue()
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DatabaseURL); v != "" {
		cfg.DSN = v
	}
	cfg.RedisURL = cfg.Redis.URLValue()
	if v := normalizeRedisRawURL(raw.RedisURL); v != "" {
		cfg.RedisURL = v
	}

	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.Paths.Images); v != "" {
		cfg.Paths.Images = v
	}
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)

	origins := append(append([]string{}, raw.AllowedOrigins...), raw.CORSAllowedOrigins...)
	cfg.AllowedOrigins = normalizeOrigins(origins)

	var err error
	if cfg.HTTPTimeout, err = parseDuration("http_timeout", raw.HTTPTimeout, cfg.HTTPTimeout); err != nil {
		return err
	}
	if raw.Publisher.UpgradeDeadlineDays != 0 {
		cfg.Publisher.UpgradeDeadlineDays = raw.Publisher.UpgradeDeadlineDays
	}
	if cfg.Marketing.DrainInterval, err = parseDuration("marketing.drain_interval", raw.Marketing.DrainInterval, cfg.Marketing.DrainInterval); err != nil {
		return err
	}
	if cfg.Marketing.Retention, err = parseDuration("marketing.retention", raw.Marketing.Retention, cfg.Marketing.Retention); err != nil {
		return err
	}
	if raw.Marketing.BatchSize != 0 {
		cfg.Marketing.BatchSize = raw.Marketing.BatchSize
	}

	cfg.ImageStorage = normalizeImageStorage(applyRawImageStorage(cfg.ImageStorage, raw.ImageStorage))
	return nil
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	db := raw.Database
	next := current
	if v := strings.TrimSpace(db.DSN); v != "" {
		next.DSN = v
	}
	if v := strings.TrimSpace(db.URL); v != "" && next.DSN == "" {
		next.DSN = v
	}
	pick := func(target *string, values ...string) {
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				*target = v
			}
		}
	}
	pick(&next.Host, db.Host, raw.DBHost)
	pick(&next.User, db.Username, db.User, raw.DBUser)
	pick(&next.Password, db.Password, raw.DBPassword)
	pick(&next.Name, db.DBName, db.Name, raw.DBName)
	pick(&next.Charset, db.Charset)
	pick(&next.Loc, db.Loc)
	if db.Port != 0 {
		next.Port = db.Port
	}
	if raw.DBPort != 0 {
		next.Port = raw.DBPort
	}
	if db.ParseTime != nil {
		next.ParseTime = *db.ParseTime
	}
	if db.Params != nil {
		next.Params = db.Params
	}
	return next
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	r := raw.Redis
	next := current
	if v := strings.TrimSpace(r.URL); v != "" {
		next.URL = v
	}
	if v := strings.TrimSpace(r.Host); v != "" {
		next.Host = v
	}
	if v := strings.TrimSpace(raw.RedisHost); v != "" {
		next.Host = v
	}
	if r.Port != 0 {
		next.Port = r.Port
	}
	if raw.RedisPort != 0 {
		next.Port = raw.RedisPort
	}
	if v := strings.TrimSpace(r.Username); v != "" {
		next.Username = v
	}
	if v := strings.TrimSpace(r.Password); v != "" {
		next.Password = v
	}
	if v := strings.TrimSpace(raw.RedisPassword); v != "" {
		next.Password = v
	}
	if r.DB != nil {
		next.DB = *r.DB
	}
	if raw.RedisDB != nil {
		next.DB = *raw.RedisDB
	}
	if r.TLS != nil {
		next.TLS = *r.TLS
	}
	if v := strings.TrimSpace(r.Scheme); v != "" {
		next.Scheme = v
	}
	if r.Params != nil {
		next.Params = r.Params
	}
	return next
}

func applyRawImageStorage(current ImageStorageConfig, raw rawImageStorage) ImageStorageConfig {
	next := current
	if v := strings.TrimSpace(raw.Driver); v != "" {
		next.Driver = v
	}
	if v := strings.TrimSpace(raw.BaseURL); v != "" {
		next.BaseURL = v
	}
	s3 := raw.S3
	for target, v := range map[*string]string{
		&next.S3.Endpoint:        s3.Endpoint,
		&next.S3.Region:          s3.Region,
		&next.S3.Bucket:          s3.Bucket,
		&next.S3.AccessKeyID:     s3.AccessKeyID,
		&next.S3.SecretAccessKey: s3.SecretAccessKey,
		&next.S3.CustomDomain:    s3.CustomDomain,
	} {
		if v = strings.TrimSpace(v); v != "" {
			*target = v
		}
	}
	if s3.PathStyleAccess != nil {
		next.S3.PathStyleAccess = *s3.PathStyleAccess
	}
	return next
}

func parseDuration(key, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q, expected a positive duration", key, raw)
	}
	return d, nil
}

func (c *AppConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", c.Port)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database.port %d, expected 1-65535", c.Database.Port)
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d, expected 1-65535", c.Redis.Port)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", c.Redis.DB)
	}
	if c.Publisher.UpgradeDeadlineDays < 1 {
		return fmt.Errorf("invalid publisher.upgrade_deadline_days %d, expected >= 1", c.Publisher.UpgradeDeadlineDays)
	}
	if c.Marketing.BatchSize < 1 {
		return fmt.Errorf("invalid marketing.batch_size %d, expected >= 1", c.Marketing.BatchSize)
	}
	switch c.ImageStorage.Driver {
	case ImageDriverLocal:
	case ImageDriverS3:
		if c.ImageStorage.S3.Bucket == "" {
			return fmt.Errorf("image_storage.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("invalid image_storage.driver %q, expected %q or %q", c.ImageStorage.Driver, ImageDriverLocal, ImageDriverS3)
	}
	return nil
}

func (c *AppConfig) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// LogDir is the resolved directory of the daily log files.
func (c *AppConfig) LogDir() string {
	return resolvePath(c.Paths.Logs, "logs")
}

// ImageDir is the root of the local image store.
func (c *AppConfig) ImageDir() string {
	return resolvePath(c.Paths.Images, "static")
}
