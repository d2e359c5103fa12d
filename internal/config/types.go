package config

import "time"

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"` // "development" | "production"
	LogLevel       string                `yaml:"log_level"`
	DSN            string                `yaml:"dsn"` // MySQL DSN
	RedisURL       string                `yaml:"redis_url"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Paths          RuntimePathsConfig    `yaml:"paths"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	HTTPTimeout    time.Duration         `yaml:"http_timeout"`
	Publisher      PublisherConfig       `yaml:"publisher"`
	Marketing      MarketingConfig       `yaml:"marketing"`
	ImageStorage   ImageStorageConfig    `yaml:"image_storage"`
}

type DatabaseRuntimeConfig struct {
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type RedisRuntimeConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

type RuntimePathsConfig struct {
	Logs   string `yaml:"logs"`
	Images string `yaml:"images"`
}

type PublisherConfig struct {
	UpgradeDeadlineDays int `yaml:"upgrade_deadline_days"`
}

type MarketingConfig struct {
	DrainInterval time.Duration `yaml:"drain_interval"`
	Retention     time.Duration `yaml:"retention"`
	BatchSize     int           `yaml:"batch_size"`
}

// Image storage drivers.
const (
	ImageDriverLocal = "local"
	ImageDriverS3    = "s3"
)

type ImageStorageConfig struct {
	Driver  string   `yaml:"driver"`
	BaseURL string   `yaml:"base_url"`
	S3      S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	CustomDomain    string `yaml:"custom_domain"`
	PathStyleAccess bool   `yaml:"path_style_access"`
}

// rawAppConfig mirrors the YAML file. Flat aliases (db_host, redis_host, ...) are accepted next to the
// nested blocks and win over them.
type rawAppConfig struct {
	Port               int                `yaml:"port"`
	Env                string             `yaml:"env"`
	LogLevel           string             `yaml:"log_level"`
	DSN                string             `yaml:"dsn"`
	DatabaseURL        string             `yaml:"database_url"`
	RedisURL           string             `yaml:"redis_url"`
	Database           rawDatabaseConfig  `yaml:"database"`
	Redis              rawRedisConfig     `yaml:"redis"`
	DBHost             string             `yaml:"db_host"`
	DBPort             int                `yaml:"db_port"`
	DBUser             string             `yaml:"db_user"`
	DBPassword         string             `yaml:"db_password"`
	DBName             string             `yaml:"db_name"`
	RedisHost          string             `yaml:"redis_host"`
	RedisPort          int                `yaml:"redis_port"`
	RedisPassword      string             `yaml:"redis_password"`
	RedisDB            *int               `yaml:"redis_db"`
	Paths              rawPathsConfig     `yaml:"paths"`
	LogDir             string             `yaml:"log_dir"`
	AllowedOrigins     []string           `yaml:"allowed_origins"`
	CORSAllowedOrigins []string           `yaml:"cors_allowed_origins"`
	HTTPTimeout        string             `yaml:"http_timeout"`
	Publisher          rawPublisherConfig `yaml:"publisher"`
	Marketing          rawMarketingConfig `yaml:"marketing"`
	ImageStorage       rawImageStorage    `yaml:"image_storage"`
}

type rawDatabaseConfig struct {
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	DBName    string            `yaml:"db_name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       *int              `yaml:"db"`
	TLS      *bool             `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

type rawPathsConfig struct {
	Logs   string `yaml:"logs"`
	Images string `yaml:"images"`
}

type rawPublisherConfig struct {
	UpgradeDeadlineDays int `yaml:"upgrade_deadline_days"`
}

type rawMarketingConfig struct {
	DrainInterval string `yaml:"drain_interval"`
	Retention     string `yaml:"retention"`
	BatchSize     int    `yaml:"batch_size"`
}

type rawImageStorage struct {
	Driver  string      `yaml:"driver"`
	BaseURL string      `yaml:"base_url"`
	S3      rawS3Config `yaml:"s3"`
}

type rawS3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	CustomDomain    string `yaml:"custom_domain"`
	PathStyleAccess *bool  `yaml:"path_style_access"`
}
