package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	S3        S3Config        `mapstructure:"s3"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// JWTConfig defines JWT specific configuration.
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// SweeperConfig drives the background proposal sweeper.
type SweeperConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	ProposalTTL time.Duration `mapstructure:"proposal_ttl"`
}

// ArchiveConfig drives the event archiver. Events older than Retention are
// copied to S3; Enabled gates the whole feature for deployments without an
// object store.
type ArchiveConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Retention time.Duration `mapstructure:"retention"`
	Interval  time.Duration `mapstructure:"interval"`
}

// WorkspaceConfig holds per-workspace behavior knobs.
type WorkspaceConfig struct {
	UndoWindow time.Duration `mapstructure:"undo_window"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Environment variables, e.g. server.address -> SERVER_ADDRESS,
	// sweeper.proposal_ttl -> SWEEPER_PROPOSAL_TTL.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("database.uri", "mongodb://localhost:27017")
	viper.SetDefault("database.name", "fitness_workspace")
	viper.SetDefault("s3.use_ssl", true)
	viper.SetDefault("jwt.expiration", "1h")
	viper.SetDefault("sweeper.interval", "1m")
	viper.SetDefault("sweeper.proposal_ttl", "1h")
	viper.SetDefault("archive.enabled", false)
	viper.SetDefault("archive.retention", "720h") // 30 days
	viper.SetDefault("archive.interval", "24h")
	viper.SetDefault("workspace.undo_window", "15m")

	err = viper.ReadInConfig()
	// A missing config file is fine, env vars and defaults carry it.
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		err = nil
	} else if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	return config, nil
}
