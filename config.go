package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type JWTConfig struct {
	Secret        string `mapstructure:"secret"`
	ExpireMinutes int    `mapstructure:"expire_minutes"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	APIBase  string `mapstructure:"api_base"`
}

type SchedulerConfig struct {
	PollSeconds           int `mapstructure:"poll_seconds"`
	DeliverTimeoutSeconds int `mapstructure:"deliver_timeout_seconds"`
}

func (s SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(s.PollSeconds) * time.Second
}

func (s SchedulerConfig) DeliverTimeout() time.Duration {
	return time.Duration(s.DeliverTimeoutSeconds) * time.Second
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// loadConfig reads config.yaml from the working directory if present, with
// FINBOT_* environment variables overriding individual keys
// (e.g. FINBOT_DATABASE_DSN, FINBOT_TELEGRAM_BOT_TOKEN).
func loadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("FINBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8081")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("jwt.secret", "dev-insecure-secret-change") // development fallback
	v.SetDefault("jwt.expire_minutes", 24*60)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.api_base", "")
	v.SetDefault("scheduler.poll_seconds", 30)
	v.SetDefault("scheduler.deliver_timeout_seconds", 5)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// no config.yaml: defaults + env are enough
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}
