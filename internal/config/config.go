package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces environment overrides. Nested keys use a double
// underscore, e.g. AUCTIONSEARCH_UPSTREAM__BASE_URL.
const EnvPrefix = "AUCTIONSEARCH_"

//go:embed defaults.yaml
var defaults []byte

type Config struct {
	Port     string         `key:"port"`
	DBDSN    string         `key:"db_dsn"`
	Log      LogConfig      `key:"log"`
	Upstream UpstreamConfig `key:"upstream"`
	Sync     SyncConfig     `key:"sync"`
	Search   SearchConfig   `key:"search"`
	Redis    RedisConfig    `key:"redis"`
	NATS     NATSConfig     `key:"nats"`
	Admin    AdminConfig    `key:"admin"`
}

type LogConfig struct {
	Level  string `key:"level"`
	Pretty bool   `key:"pretty"`
	File   string `key:"file"`
}

type UpstreamConfig struct {
	BaseURL    string        `key:"base_url"`
	ItemsPath  string        `key:"items_path"`
	RetryDelay time.Duration `key:"retry_delay"`
	Timeout    time.Duration `key:"timeout"` // 0 leaves attempts unbounded
}

type SyncConfig struct {
	OnStart  bool          `key:"on_start"`
	Interval time.Duration `key:"interval"` // 0 disables periodic re-sync
}

type SearchConfig struct {
	RateLimit  int           `key:"rate_limit"`
	RateWindow time.Duration `key:"rate_window"`
}

// RedisConfig enables the search page cache when Addr is set.
type RedisConfig struct {
	Addr     string        `key:"addr"`
	Password string        `key:"password"`
	DB       int           `key:"db"`
	TTL      time.Duration `key:"ttl"`
}

// NATSConfig enables event-driven re-sync when URL is set.
type NATSConfig struct {
	URL      string   `key:"url"`
	Subjects []string `key:"subjects"`
}

// AdminConfig guards the on-demand sync endpoint; an empty hash disables it.
type AdminConfig struct {
	TokenHash string `key:"token_hash"`
}

// Load layers embedded defaults, the optional YAML file named by CONFIG_FILE,
// and AUCTIONSEARCH_ environment variables.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("CONFIG_FILE"))
}

func LoadFrom(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "key",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
