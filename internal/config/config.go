package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Echo   EchoConfig
	Log    LogConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Addr is derived from Port.
	Addr string
}

// EchoConfig 描述模拟回复生成器的配置。
type EchoConfig struct {
	Delay time.Duration `env:"ECHO_DELAY" envDefault:"50ms"`
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	addr, err := resolveAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if cfg.Echo.Delay < 0 {
		return nil, fmt.Errorf("invalid ECHO_DELAY value %q: must not be negative", cfg.Echo.Delay)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "console", "json":
		cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT value %q", cfg.Log.Format)
	}

	return &cfg, nil
}

// resolveAddr 解析服务器监听地址。
func resolveAddr(raw string) (string, error) {
	port := strings.TrimSpace(raw)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}
