// Package config provides configuration management using Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jobrunner/blobloader/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Files       string        `mapstructure:"files"`
	DownloadDir string        `mapstructure:"download_dir"`
	DryRun      bool          `mapstructure:"dry_run"`
	Mongo       MongoConfig   `mapstructure:"mongo"`
	Vault       VaultConfig   `mapstructure:"vault"`
	Storage     StorageConfig `mapstructure:"storage"`
	Fetch       FetchConfig   `mapstructure:"fetch"`
	CSV         CSVConfig     `mapstructure:"csv"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

// MongoConfig holds the document database connection.
type MongoConfig struct {
	IP             string        `mapstructure:"ip"`
	Port           int           `mapstructure:"port"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Database       string        `mapstructure:"db"`
	Collection     string        `mapstructure:"collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// VaultConfig holds the service principal used to read storage keys.
type VaultConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"secret_key"`
	TenantID     string `mapstructure:"tenant_id"`
	Account      string `mapstructure:"account"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Type      string      `mapstructure:"type"` // azure, s3, local
	LocalPath string      `mapstructure:"local_path"`
	S3        S3Config    `mapstructure:"s3"`
	Azure     AzureConfig `mapstructure:"azure"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage overrides. The account key normally
// comes from the vault.
type AzureConfig struct {
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	ServiceURL       string `mapstructure:"service_url"`
}

// FetchConfig controls downloads.
type FetchConfig struct {
	Workers        int    `mapstructure:"workers"`
	OnSizeMismatch string `mapstructure:"on_size_mismatch"` // fail, redownload
}

// CSVConfig controls parsing of downloaded files.
type CSVConfig struct {
	Delimiter string `mapstructure:"delimiter"`
	RawValues bool   `mapstructure:"raw_values"`
}

// MetricsConfig holds Prometheus Pushgateway configuration.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values.
func Defaults(v *viper.Viper) {
	// Keys without a meaningful default are still registered so that
	// AutomaticEnv values reach Unmarshal.
	for _, key := range []string{
		"files", "download_dir",
		"mongo.ip", "mongo.username", "mongo.password", "mongo.db", "mongo.collection",
		"storage.s3.region", "storage.s3.endpoint", "storage.s3.access_key_id", "storage.s3.secret_access_key",
		"storage.azure.account_key", "storage.azure.connection_string", "storage.azure.service_url",
		"metrics.pushgateway_url",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("dry_run", false)

	v.SetDefault("mongo.port", 27017)
	v.SetDefault("mongo.connect_timeout", 30*time.Second)

	v.SetDefault("storage.type", "azure")
	v.SetDefault("storage.local_path", "./data")

	v.SetDefault("fetch.workers", 1)
	v.SetDefault("fetch.on_size_mismatch", "fail")

	v.SetDefault("csv.delimiter", ",")
	v.SetDefault("csv.raw_values", false)

	v.SetDefault("metrics.job", "blobloader")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load loads configuration from defaults, config file, environment and any
// flags already bound to v.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	Defaults(v)

	// Environment variable binding
	v.SetEnvPrefix("BLOBLOADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The vault service principal keeps its historic variable names.
	_ = v.BindEnv("vault.client_id", "BLOBLOADER_VAULT_CLIENT_ID", "CLIENT_ID")
	_ = v.BindEnv("vault.secret_key", "BLOBLOADER_VAULT_SECRET_KEY", "SECRET_KEY")
	_ = v.BindEnv("vault.tenant_id", "BLOBLOADER_VAULT_TENANT_ID", "TENANT_ID")
	_ = v.BindEnv("vault.account", "BLOBLOADER_VAULT_ACCOUNT", "AZURE_KEYVAULT_ACCOUNT")

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/blobloader")
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "azure":
		if c.Storage.Azure.AccountKey == "" && c.Storage.Azure.ConnectionString == "" {
			if err := c.Vault.Validate(); err != nil {
				return err
			}
		}
	case "s3":
		if c.Storage.S3.Region == "" {
			return &domain.ConfigError{Field: "storage.s3.region", Message: "S3 region is required"}
		}
	case "local":
		if c.Storage.LocalPath == "" {
			return &domain.ConfigError{Field: "storage.local_path", Message: "local storage path is required"}
		}
	default:
		return &domain.ConfigError{Field: "storage.type", Message: fmt.Sprintf("unknown storage type: %s", c.Storage.Type)}
	}

	switch c.Fetch.OnSizeMismatch {
	case "fail", "redownload":
	default:
		return &domain.ConfigError{
			Field:   "fetch.on_size_mismatch",
			Message: fmt.Sprintf("must be fail or redownload, got %q", c.Fetch.OnSizeMismatch),
		}
	}
	if c.Fetch.Workers < 1 {
		return &domain.ConfigError{Field: "fetch.workers", Message: "at least one worker is required"}
	}

	if _, err := c.CSV.Comma(); err != nil {
		return err
	}
	return nil
}

// ValidateLoad checks the settings required to resolve, download and load.
func (c *Config) ValidateLoad() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Files == "" {
		return &domain.ConfigError{Field: "files", Message: "a logical path is required (--files)"}
	}
	if c.DryRun {
		return nil
	}
	if c.DownloadDir == "" {
		return &domain.ConfigError{Field: "download_dir", Message: "a download directory is required (--download_dir)"}
	}
	return c.Mongo.Validate()
}

// Validate checks the database connection settings.
func (m *MongoConfig) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"mongo.ip", m.IP},
		{"mongo.username", m.Username},
		{"mongo.password", m.Password},
		{"mongo.db", m.Database},
		{"mongo.collection", m.Collection},
	}
	for _, r := range required {
		if r.value == "" {
			return &domain.ConfigError{Field: r.field, Message: "is required"}
		}
	}
	if m.Port < 1 || m.Port > 65535 {
		return &domain.ConfigError{Field: "mongo.port", Message: fmt.Sprintf("invalid port: %d", m.Port)}
	}
	return nil
}

// Validate checks the service principal settings.
func (v *VaultConfig) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"vault.client_id (CLIENT_ID)", v.ClientID},
		{"vault.secret_key (SECRET_KEY)", v.ClientSecret},
		{"vault.tenant_id (TENANT_ID)", v.TenantID},
		{"vault.account (AZURE_KEYVAULT_ACCOUNT)", v.Account},
	}
	for _, r := range required {
		if r.value == "" {
			return &domain.ConfigError{Field: r.field, Message: "is required to read storage keys"}
		}
	}
	return nil
}

// Comma returns the single-character field delimiter.
func (c *CSVConfig) Comma() (rune, error) {
	d := c.Delimiter
	if d == `\t` {
		d = "\t"
	}
	r := []rune(d)
	if len(r) != 1 || r[0] == '"' || r[0] == '\r' || r[0] == '\n' {
		return 0, &domain.ConfigError{Field: "csv.delimiter", Message: fmt.Sprintf("invalid delimiter %q", c.Delimiter)}
	}
	return r[0], nil
}
