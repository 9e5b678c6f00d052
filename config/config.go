package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Agent    AgentConfig    `yaml:"agent"`
	Ingest   IngestConfig   `yaml:"ingest"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                       string `yaml:"host"`
	Port                       int    `yaml:"port"`
	LocationsReceivedTopicName string `yaml:"locations_received_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AgentConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	// Путь к локальной sqlite-базе агента.
	StorePath string `yaml:"store_path"`

	// Периодический wake. Минимальный интервал задаёт ОС (десятки минут),
	// здесь только наша нижняя граница для демо.
	SyncWakeIntervalSeconds int `yaml:"sync_wake_interval_seconds"`
	SyncBatchSize           int `yaml:"sync_batch_size"`
	SyncTimeoutSeconds      int `yaml:"sync_timeout_seconds"`

	IngestBaseURL string `yaml:"ingest_base_url"`
	IngestAPIKey  string `yaml:"ingest_api_key"`

	// Для демо: считать источник локаций авторизованным без запроса к ОС.
	AssumeAuthorized bool `yaml:"assume_authorized"`
}

type IngestConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	APIKey string `yaml:"api_key"`

	LatestTTLSeconds         int `yaml:"latest_ttl_seconds"`
	RateLimitPerDevicePerMin int `yaml:"rate_limit_per_device_per_minute"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
