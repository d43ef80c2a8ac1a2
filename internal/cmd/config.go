package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration file. Secrets stay out of it:
// JWT_SECRET and ADMIN_PASSWORD come from the environment.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Auth struct {
		TokenTTLHours int `yaml:"token_ttl_hours"`
	} `yaml:"auth"`
	Auction struct {
		InactivityTimeoutMinutes float64 `yaml:"inactivity_timeout_minutes"`
	} `yaml:"auction"`
	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
}

func defaultConfig() *Config {
	var config Config
	config.Server.Addr = ":8080"
	config.Auth.TokenTTLHours = 12
	config.Auction.InactivityTimeoutMinutes = 5
	config.NATS.URL = "nats://localhost:4222"
	return &config
}

// loadConfig reads the YAML config file, falling back to defaults when
// the file does not exist.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
