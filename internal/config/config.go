package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const DefaultSubgraphURL = "https://api.thegraph.com/subgraphs/name/superarius/guni"

// Common holds settings shared by every command.
type Common struct {
	Pools           []string
	BlocksPerYear   uint64
	SupplyLagBlocks uint64
	MaxWorkers      int
	FetchTimeout    time.Duration
	Interval        time.Duration
	Out             string
	PGDSN           string
	MetricsAddr     string
	LogLevel        string
}

// Config holds configuration for a live run against the subgraph and an RPC node.
type Config struct {
	Common
	RPCURL        string
	SubgraphURL   string
	HelperAddress string
	MaxRetries    int
	RetryBackoff  time.Duration
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("subgraph-url", DefaultSubgraphURL)
		v.SetDefault("max-retries", 5)
		v.SetDefault("retry-backoff", 500*time.Millisecond)
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Common:        loadCommon(v),
		RPCURL:        v.GetString("rpc"),
		SubgraphURL:   v.GetString("subgraph-url"),
		HelperAddress: v.GetString("helper-address"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
	}
	if cfg.MaxRetries < 0 {
		return Config{}, fmt.Errorf("max-retries must not be negative")
	}
	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(v *viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("VAULTAPR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("max-workers", 8)
	v.SetDefault("fetch-timeout", 30*time.Second)
	v.SetDefault("log-level", "info")
	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func loadCommon(v *viper.Viper) Common {
	return Common{
		Pools:           getStringSlice(v, "pool"),
		BlocksPerYear:   v.GetUint64("blocks-per-year"),
		SupplyLagBlocks: v.GetUint64("supply-lag-blocks"),
		MaxWorkers:      v.GetInt("max-workers"),
		FetchTimeout:    v.GetDuration("fetch-timeout"),
		Interval:        v.GetDuration("interval"),
		Out:             v.GetString("out"),
		PGDSN:           v.GetString("pg-dsn"),
		MetricsAddr:     v.GetString("metrics-addr"),
		LogLevel:        v.GetString("log-level"),
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
