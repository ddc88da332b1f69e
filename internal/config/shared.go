package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid is returned when a loaded configuration cannot be used.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Server struct {
		Addr           string   `mapstructure:"addr"`
		LogLevel       string   `mapstructure:"log_level"`
		JWTSecret      string   `mapstructure:"jwt_secret"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"server"`
	Catalog struct {
		// Path is a local catalog file; Key is an object key in the storage bucket.
		// Path wins when both are set.
		Path     string `mapstructure:"path"`
		Key      string `mapstructure:"key"`
		Category string `mapstructure:"category"`
	} `mapstructure:"catalog"`
	Storage struct {
		Provider          string `mapstructure:"provider"`
		LocalRoot         string `mapstructure:"local_root"`
		Endpoint          string `mapstructure:"endpoint"`
		Region            string `mapstructure:"region"`
		KeyID             string `mapstructure:"key_id"`
		AppKey            string `mapstructure:"app_key"`
		Bucket            string `mapstructure:"bucket"`
		PublishNowPlaying bool   `mapstructure:"publish_now_playing"`
	} `mapstructure:"storage"`
	Database struct {
		Driver   string `mapstructure:"driver"`
		Path     string `mapstructure:"path"`
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
	} `mapstructure:"database"`
	Player struct {
		Backend       string        `mapstructure:"backend"`
		MPVPath       string        `mapstructure:"mpv_path"`
		MPVSocket     string        `mapstructure:"mpv_socket"`
		PollInterval  time.Duration `mapstructure:"poll_interval"`
		StallTimeout  time.Duration `mapstructure:"stall_timeout"`
		StartMuted    bool          `mapstructure:"start_muted"`
		SkipSeconds   float64       `mapstructure:"skip_seconds"`
		PrefetchCount int           `mapstructure:"prefetch_count"`
		CacheDir      string        `mapstructure:"cache_dir"`
		SimDuration   time.Duration `mapstructure:"sim_duration"`
		DryRun        bool          `mapstructure:"dry_run"`
	} `mapstructure:"player"`
}

var keys = []string{
	"server.addr",
	"server.log_level",
	"server.jwt_secret",
	"server.allowed_origins",

	"catalog.path",
	"catalog.key",
	"catalog.category",

	"storage.provider",
	"storage.local_root",
	"storage.endpoint",
	"storage.region",
	"storage.key_id",
	"storage.app_key",
	"storage.bucket",
	"storage.publish_now_playing",

	"database.driver",
	"database.path",
	"database.host",
	"database.port",
	"database.user",
	"database.password",
	"database.name",

	"player.backend",
	"player.mpv_path",
	"player.mpv_socket",
	"player.poll_interval",
	"player.stall_timeout",
	"player.start_muted",
	"player.skip_seconds",
	"player.prefetch_count",
	"player.cache_dir",
	"player.sim_duration",
	"player.dry_run",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8081")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("catalog.path", "./catalog.yaml")

	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local_root", "./data")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "media")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./player.db")
	v.SetDefault("database.port", "5432")

	v.SetDefault("player.backend", "sim")
	v.SetDefault("player.mpv_path", "mpv")
	v.SetDefault("player.mpv_socket", "/tmp/momo-player.sock")
	v.SetDefault("player.poll_interval", time.Second)
	v.SetDefault("player.stall_timeout", 15*time.Second)
	v.SetDefault("player.start_muted", true)
	v.SetDefault("player.skip_seconds", 5.0)
	v.SetDefault("player.prefetch_count", 2)
	v.SetDefault("player.cache_dir", "/tmp/momo-player")
	v.SetDefault("player.sim_duration", 2*time.Minute)
}

// Load reads the configuration from PLAYER_* environment variables and an
// optional config.yaml in the working directory or its parent.
func Load() (*Config, error) {
	return load(viper.New(), []string{".", "../"})
}

func load(v *viper.Viper, paths []string) (*Config, error) {
	v.SetEnvPrefix("PLAYER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings and numeric bounds.
func (c *Config) Validate() error {
	switch c.Player.Backend {
	case "sim", "mpv":
	default:
		return fmt.Errorf("%w: unknown player backend %q", ErrInvalid, c.Player.Backend)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalid, c.Database.Driver)
	}
	switch c.Storage.Provider {
	case "local", "s3":
	default:
		return fmt.Errorf("%w: unknown storage provider %q", ErrInvalid, c.Storage.Provider)
	}
	if c.Storage.Provider == "s3" && c.Storage.KeyID == "" {
		return fmt.Errorf("%w: storage key id is missing (PLAYER_STORAGE_KEY_ID)", ErrInvalid)
	}
	if c.Player.PollInterval <= 0 {
		return fmt.Errorf("%w: player poll interval must be positive", ErrInvalid)
	}
	if c.Player.SkipSeconds <= 0 {
		return fmt.Errorf("%w: player skip seconds must be positive", ErrInvalid)
	}
	return nil
}
