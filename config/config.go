package config

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	AppName  string `mapstructure:"APP_NAME"`
	HTTPPort string `mapstructure:"HTTP_PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"` // "debug", "info", "warn", "error"

	// MySQL
	MySQLDSN       string `mapstructure:"MYSQL_DSN"`
	MySQLMaxOpen   int    `mapstructure:"MYSQL_MAX_OPEN_CONNS"`
	MySQLMaxIdle   int    `mapstructure:"MYSQL_MAX_IDLE_CONNS"`
	MigrationsPath string `mapstructure:"MIGRATIONS_PATH"`

	// Redis; empty address disables the cache entirely.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPoolSize int    `mapstructure:"REDIS_POOL_SIZE"`

	// Stock-cache sync workers
	WorkerCount int `mapstructure:"WORKER_COUNT"`
	QueueSize   int `mapstructure:"QUEUE_SIZE"`

	// Lifecycle policy: how many stages Advance may skip in one call.
	MaxStageSkip int `mapstructure:"MAX_STAGE_SKIP"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	viper.SetDefault("APP_NAME", "storefront")
	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("MYSQL_DSN", "root:root@tcp(localhost:3306)/storefront?parseTime=true&multiStatements=true")
	viper.SetDefault("MYSQL_MAX_OPEN_CONNS", 50)
	viper.SetDefault("MYSQL_MAX_IDLE_CONNS", 25)
	viper.SetDefault("MIGRATIONS_PATH", "migrations")

	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_POOL_SIZE", 100)

	viper.SetDefault("WORKER_COUNT", 4)
	viper.SetDefault("QUEUE_SIZE", 1024)

	viper.SetDefault("MAX_STAGE_SKIP", 1)

	if err = viper.ReadInConfig(); err == nil {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("Using config file")
	} else {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Info().Msg("No config file found, using environment variables and defaults.")
		} else {
			log.Error().Err(err).Msg("Error reading config file")
			return
		}
	}

	err = viper.Unmarshal(&config)
	return
}
