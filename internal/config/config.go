package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the process-wide configuration, loaded once at startup
// from config/config.<env>.yaml with environment variable overrides.
type Config struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Room      RoomConfig      `mapstructure:"room"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Music     MusicConfig     `mapstructure:"music"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Geo       GeoConfig       `mapstructure:"geo"`
	Secret    string          `mapstructure:"secret"`
}

// WebSocketConfig bounds the connection adapter's keepalive and frame
// size behavior. WriteWait is parsed but not applied: the adapter uses
// its own fixed write deadline.
type WebSocketConfig struct {
	ReadLimitBytes int64         `mapstructure:"read_limit_bytes"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
}

// RoomConfig holds room settings. Only DefaultTrackURLs is applied;
// CleanupGrace and MaxClientsPerRoom are parsed but rooms use the
// app.CleanupGrace and app.MaxClientsPerRoom constants instead.
type RoomConfig struct {
	CleanupGrace     time.Duration `mapstructure:"cleanup_grace"`
	MaxClientsPerRoom int          `mapstructure:"max_clients_per_room"`
	DefaultTrackURLs  []string     `mapstructure:"default_track_urls"`
}

// RedisConfig configures the optional Redis-backed snapshot store.
// Addr empty means "use the local file store instead".
type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	MaxRetries   int    `mapstructure:"max_retries"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	SnapshotKey  string `mapstructure:"snapshot_key"`
}

// BackupConfig controls the periodic registry snapshot.
type BackupConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	FilePath     string        `mapstructure:"file_path"`
	RestoreOnBoot bool         `mapstructure:"restore_on_boot"`
}

// MusicConfig points at the external music search/stream provider.
type MusicConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageConfig points at the object storage collaborator used for
// upload URL minting and blob deletion.
type StorageConfig struct {
	Bucket          string        `mapstructure:"bucket"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"`
	PresignTTL      time.Duration `mapstructure:"presign_ttl"`
}

// GeoConfig points at the IP-to-country lookup service used to tag
// joining clients with a flag for the chat panel. Empty BaseURL
// disables location lookups entirely.
type GeoConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// global holds the viper instance Load populates, so Watch can attach
// a file-change callback to the exact same parser rather than a
// fresh, unconfigured one.
var global *viper.Viper

// Load reads config/config.<CONFIG_ENV>.yaml (defaulting to "dev"),
// applying .env overrides first and falling back to built-in defaults
// for anything the file and environment don't set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	global = v
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Watch re-parses the config file on every write and invokes onChange
// with the freshly unmarshaled Config. Watch itself applies nothing:
// any setting onChange does not reapply keeps its startup value.
func Watch(onChange func(*Config)) {
	if global == nil {
		return
	}
	v := global
	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			fmt.Printf("config reload failed: %v\n", err)
			return
		}
		onChange(&cfg)
	})
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "dev-secret-change-me")

	v.SetDefault("websocket.read_limit_bytes", 32768)
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.ping_period", "54s")

	v.SetDefault("room.cleanup_grace", "60s")
	v.SetDefault("room.max_clients_per_room", 64)
	v.SetDefault("room.default_track_urls", []string{})

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.snapshot_key", "beatsync:registry:snapshot")

	v.SetDefault("backup.interval", "30s")
	v.SetDefault("backup.file_path", "./data/snapshot.json")
	v.SetDefault("backup.restore_on_boot", true)

	v.SetDefault("music.timeout", "5s")

	v.SetDefault("storage.presign_ttl", "15m")

	v.SetDefault("geo.timeout", "3s")
}
