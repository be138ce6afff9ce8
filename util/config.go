package util

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/deemkeen/plaza/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const Name = "plaza"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host          string `yaml:"host"`
		HttpPort      int    `yaml:"httpPort" validate:"min=1,max=65535"`
		PublicURL     string `yaml:"publicUrl" validate:"required,url"`
		DatabasePath  string `yaml:"databasePath" validate:"required"`
		LogLevel      string `yaml:"logLevel" validate:"omitempty,oneofci=debug info warn error"`
		InboxUser     string `yaml:"inboxUser"`
		InboxPassword string `yaml:"inboxPassword"`
	} `yaml:"conf"`
	Delivery struct {
		Workers          int           `yaml:"workers" validate:"min=1"`
		Timeout          time.Duration `yaml:"timeout" validate:"min=1ms"`
		Async            bool          `yaml:"async"`
		BreakerThreshold int           `yaml:"breakerThreshold" validate:"min=1"`
		BreakerCooldown  time.Duration `yaml:"breakerCooldown"`
	} `yaml:"delivery"`
	Reconcile struct {
		Enabled      bool          `yaml:"enabled"`
		Interval     time.Duration `yaml:"interval"`
		CycleTimeout time.Duration `yaml:"cycleTimeout"`
	} `yaml:"reconcile"`
	Peers []domain.PeerNode `yaml:"peers" validate:"dive"`
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	buf, err := os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		slog.Info("Config file not found, using embedded defaults", "path", configPath)
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			if writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644); writeErr != nil {
				slog.Warn("Could not write default config", "path", userConfigPath, "error", writeErr)
			} else {
				slog.Info("Created default config file", "path", userConfigPath)
			}
		}
	}

	// defaults first so a partial file only overrides what it names
	if err := yaml.Unmarshal(embeddedConfig, c); err != nil {
		return nil, fmt.Errorf("in embedded config: %w", err)
	}
	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	applyEnv(c)

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func applyEnv(c *AppConfig) {
	if v := os.Getenv("PLAZA_HOST"); v != "" {
		c.Conf.Host = v
	}
	if v := os.Getenv("PLAZA_HTTPPORT"); v != "" {
		if port, err := strconv.Atoi(v); err != nil {
			slog.Warn("Ignoring PLAZA_HTTPPORT", "value", v, "error", err)
		} else {
			c.Conf.HttpPort = port
		}
	}
	if v := os.Getenv("PLAZA_PUBLIC_URL"); v != "" {
		c.Conf.PublicURL = v
	}
	if v := os.Getenv("PLAZA_DATABASE"); v != "" {
		c.Conf.DatabasePath = v
	}
	if v := os.Getenv("PLAZA_LOG_LEVEL"); v != "" {
		c.Conf.LogLevel = v
	}
	if v := os.Getenv("PLAZA_INBOX_USER"); v != "" {
		c.Conf.InboxUser = v
	}
	if v := os.Getenv("PLAZA_INBOX_PASSWORD"); v != "" {
		c.Conf.InboxPassword = v
	}
	if v := os.Getenv("PLAZA_DELIVERY_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			slog.Warn("Ignoring PLAZA_DELIVERY_WORKERS", "value", v, "error", err)
		} else {
			c.Delivery.Workers = n
		}
	}
	if v := os.Getenv("PLAZA_DELIVERY_ASYNC"); v != "" {
		c.Delivery.Async = v == "true"
	}
	if v := os.Getenv("PLAZA_RECONCILE"); v != "" {
		c.Reconcile.Enabled = v == "true"
	}
	if v := os.Getenv("PLAZA_RECONCILE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err != nil {
			slog.Warn("Ignoring PLAZA_RECONCILE_INTERVAL", "value", v, "error", err)
		} else {
			c.Reconcile.Interval = d
		}
	}
}
