package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"intentScope/internal/model"
	"intentScope/internal/pricing"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	PGDSN            string
	LogLevel         string
	WindowSize       uint64
	MaxPasses        int
	Concurrency      int
	MaxRetries       int
	RetryBackoff     time.Duration
	HTTPTimeout      time.Duration
	ExplorerTxPages  int
	ExplorerLogPages int
	PriceFeedURL     string
	PriceFeeds       map[string]string
	Tokens           []pricing.KnownToken
	KafkaBrokers     []string
	KafkaAlertTopic  string
	Interval         time.Duration
	MetricsAddr      string
	Chains           []model.ChainConfig
}

// Load merges config file, environment variables, and flags into Config.
// It does not validate; commands call Validate when they need chains.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("window-size", uint64(10))
	v.SetDefault("max-passes", 20)
	v.SetDefault("concurrency", 10)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("http-timeout", 30*time.Second)
	v.SetDefault("explorer-tx-pages", 3)
	v.SetDefault("explorer-log-pages", 2)
	v.SetDefault("price-feed-url", pricing.DefaultPriceFeedURL)
	v.SetDefault("kafka-alert-topic", "intentscope.alerts")
	v.SetDefault("interval", time.Minute)
	v.SetDefault("metrics-addr", ":9090")
	v.SetDefault("source", string(model.SourceRPC))

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	chains, err := loadChains(v)
	if err != nil {
		return Config{}, err
	}

	var tokens []pricing.KnownToken
	if v.IsSet("tokens") {
		if err := v.UnmarshalKey("tokens", &tokens); err != nil {
			return Config{}, fmt.Errorf("parse tokens: %w", err)
		}
	}

	cfg := Config{
		PGDSN:            v.GetString("pg-dsn"),
		LogLevel:         v.GetString("log-level"),
		WindowSize:       v.GetUint64("window-size"),
		MaxPasses:        v.GetInt("max-passes"),
		Concurrency:      v.GetInt("concurrency"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		HTTPTimeout:      v.GetDuration("http-timeout"),
		ExplorerTxPages:  v.GetInt("explorer-tx-pages"),
		ExplorerLogPages: v.GetInt("explorer-log-pages"),
		PriceFeedURL:     v.GetString("price-feed-url"),
		PriceFeeds:       symbolMap(v, "price-feeds"),
		Tokens:           tokens,
		KafkaBrokers:     stringList(v, "kafka-brokers"),
		KafkaAlertTopic:  v.GetString("kafka-alert-topic"),
		Interval:         v.GetDuration("interval"),
		MetricsAddr:      v.GetString("metrics-addr"),
		Chains:           chains,
	}

	return cfg, nil
}

// Validate checks everything run and watch depend on.
func (c Config) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain is required")
	}
	if c.WindowSize == 0 {
		return fmt.Errorf("window size must be greater than zero")
	}
	if c.MaxPasses <= 0 {
		return fmt.Errorf("max passes must be greater than zero")
	}
	seen := make(map[uint64]bool, len(c.Chains))
	for _, chain := range c.Chains {
		if err := validateChain(chain); err != nil {
			return err
		}
		if seen[chain.ID] {
			return fmt.Errorf("chain %d configured twice", chain.ID)
		}
		seen[chain.ID] = true
	}
	return nil
}
