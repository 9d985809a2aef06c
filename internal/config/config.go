package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultUpstreamConnectTimeoutMs   = 5000
	DefaultUpstreamReadTimeoutMs      = 30000
	DefaultUpstreamPoolMaxIdle        = 100
	DefaultUpstreamPoolIdleTimeoutSec = 90

	DefaultFlushBatchSize   = 2000
	DefaultFlushInterval    = 5 * time.Second
	DefaultQueueCapacity    = 50000
	DefaultCacheTTL         = 500 * time.Millisecond
	DefaultBlacklistRefresh = 10 * time.Second

	DefaultFileWriteDelay = 150 * time.Millisecond
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with documented defaults; any field
// left unset in the loaded YAML keeps the value set here.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
			Theme: "default",
		},
		Metrics: MetricsConfig{
			StorePath:        "proxy.db",
			FlushBatchSize:   DefaultFlushBatchSize,
			FlushInterval:    DefaultFlushInterval,
			BlacklistRefresh: DefaultBlacklistRefresh,
			CacheTTL:         DefaultCacheTTL,
			QueueCapacity:    DefaultQueueCapacity,
		},
		Admin: AdminConfig{
			Addr:            ":9090",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Global: GlobalConfig{
			AllowAllLan:                false,
			AllowAllIP:                 false,
			HTTPAccessControlEnabled:   true,
			WSAccessControlEnabled:     true,
			StreamAccessControlEnabled: true,
			StreamProxyStreaming:       true,
			MaxBodySize:                10 << 20,
			MaxResponseBodySize:        50 << 20,
			UpstreamConnectTimeoutMs:   DefaultUpstreamConnectTimeoutMs,
			UpstreamReadTimeoutMs:      DefaultUpstreamReadTimeoutMs,
			UpstreamPoolMaxIdle:        DefaultUpstreamPoolMaxIdle,
			UpstreamPoolIdleTimeoutSec: DefaultUpstreamPoolIdleTimeoutSec,
			Compression: CompressionConfig{
				Enabled: false,
				Gzip:    GzipConfig{On: false, Level: 5},
				Brotli:  BrotliConfig{On: false, Level: 4},
			},
		},
	}
}

// Load reads configuration from file and environment variables, watching the
// file for changes. It never blocks core startup on a missing config file —
// callers fall back to DefaultConfig() semantics for anything unset.
func Load(onConfigChange func()) (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("SPM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("SPM_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	viper.WatchConfig()

	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return
			}
			lastReload = now

			// A running listener's snapshot is never hot-swapped; callers that
			// care about a change must restart the affected listener themselves.
			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}

	return cfg, nil
}
