// Package config loads the server configuration from command line flags and
// an optional YAML file. File values override flag defaults.
package config

import (
	"flag"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/erain9/deepmatch/pkg/db/queue"
)

// MarketConfig declares one trading pair to create at startup. Sizes and
// rates are decimal strings, e.g. a tick_size of "0.01" and a
// taker_fee_rate of "0.0025".
type MarketConfig struct {
	Name            string `yaml:"name"`
	BaseAsset       string `yaml:"base_asset"`
	QuoteAsset      string `yaml:"quote_asset"`
	TickSize        string `yaml:"tick_size"`
	LotSize         string `yaml:"lot_size"`
	TakerFeeRate    string `yaml:"taker_fee_rate"`
	MakerRebateRate string `yaml:"maker_rebate_rate"`
}

// Config represents the application configuration
type Config struct {
	Server struct {
		HTTPAddr  string `yaml:"http_addr"`
		LogLevel  string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`
	} `yaml:"server"`

	// Backend selects where balances live: "memory" or "redis".
	Backend string `yaml:"backend"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	Kafka struct {
		Enabled    bool   `yaml:"enabled"`
		BrokerAddr string `yaml:"broker_addr"`
		Topic      string `yaml:"topic"`
	} `yaml:"kafka"`

	Otel struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"otel"`

	Markets []MarketConfig `yaml:"markets"`
}

// Default configuration values
var (
	configFile = flag.String("config", "", "Path to config file (YAML)")
	httpPort   = flag.Int("http_port", 8080, "The HTTP server port")
	backend    = flag.String("backend", "memory", "Balance backend: memory, redis")
	logLevel   = flag.String("log_level", "info", "Log level: debug, info, warn, error")
	logFormat  = flag.String("log_format", "pretty", "Log format: json, pretty")
)

// LoadConfig loads the configuration from command line flags and optionally from a config file
func LoadConfig() (*Config, error) {
	// Parse command line flags
	flag.Parse()

	// Create default configuration
	config := &Config{}
	config.Server.HTTPAddr = fmt.Sprintf(":%d", *httpPort)
	config.Server.LogLevel = *logLevel
	config.Server.LogFormat = *logFormat
	config.Backend = *backend
	config.Redis.Addr = "localhost:6379"
	config.Redis.Prefix = "deepmatch"
	config.Kafka.BrokerAddr = "localhost:9092"
	config.Kafka.Topic = "deepmatch-order-events"
	config.Otel.Endpoint = "localhost:4317"

	// Load configuration from file if specified
	if *configFile != "" {
		yamlFile, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Parse YAML configuration
		if err := yaml.Unmarshal(yamlFile, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		// Log loaded configuration
		log.Printf("Loaded configuration from %s", *configFile)
	}

	if config.Backend != "memory" && config.Backend != "redis" {
		return nil, fmt.Errorf("unknown backend %q", config.Backend)
	}

	// Override Kafka configuration in package variables
	if config.Kafka.Enabled {
		queue.SetBrokerList(config.Kafka.BrokerAddr)
		queue.SetTopic(config.Kafka.Topic)
	}

	return config, nil
}
