package main

import (
	"fmt"
	"os"
	"time"

	"arbiter/internal/common/cache"
	"arbiter/internal/common/db"
	"arbiter/internal/common/http/middleware"
	"arbiter/internal/common/mq"
	"arbiter/internal/common/storage"
	"arbiter/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// DispatchConfig holds judger dispatch settings.
type DispatchConfig struct {
	DataRoot           string `yaml:"dataRoot"`
	VerdictTopic       string `yaml:"verdictTopic"`
	SkipOwnershipCheck bool   `yaml:"skipOwnershipCheck"`
	// DisableEvents turns off the Kafka verdict producer entirely.
	DisableEvents bool `yaml:"disableEvents"`
}

// SubmissionConfig holds submission intake settings.
type SubmissionConfig struct {
	Languages    []string `yaml:"languages"`
	MaxBodyBytes int      `yaml:"maxBodyBytes"`
}

// JudgerConfig holds judger registry settings.
type JudgerConfig struct {
	OnlineWindow time.Duration `yaml:"onlineWindow"`
}

// AdminConfig holds admin auth settings.
type AdminConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`
}

// AppConfig holds contest-service configuration.
type AppConfig struct {
	Server     ServerConfig        `yaml:"server"`
	Logger     logger.Config       `yaml:"logger"`
	Database   db.MySQLConfig      `yaml:"database"`
	Redis      cache.RedisConfig   `yaml:"redis"`
	Kafka      mq.KafkaConfig      `yaml:"kafka"`
	MinIO      storage.MinIOConfig `yaml:"minio"`
	Dispatch   DispatchConfig      `yaml:"dispatch"`
	Submission SubmissionConfig    `yaml:"submission"`
	Judger     JudgerConfig        `yaml:"judger"`
	Admin      AdminConfig         `yaml:"admin"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Dispatch.DataRoot == "" {
		cfg.Dispatch.DataRoot = "test-data"
	}
	if cfg.Dispatch.VerdictTopic == "" {
		cfg.Dispatch.VerdictTopic = "contest.verdicts"
	}
	if cfg.Submission.MaxBodyBytes == 0 {
		cfg.Submission.MaxBodyBytes = 256 * 1024
	}
	if cfg.Judger.OnlineWindow == 0 {
		cfg.Judger.OnlineWindow = 2 * time.Minute
	}
	return &cfg, nil
}

func (c *AdminConfig) middlewareConfig() middleware.AdminAuthConfig {
	return middleware.AdminAuthConfig{
		Secret: c.JWTSecret,
		Issuer: c.JWTIssuer,
	}
}
