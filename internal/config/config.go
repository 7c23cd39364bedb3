package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type StorageConfig struct {
	Backend      string `mapstructure:"backend"` // "sqlite", "redis", "postgres" or "memory"
	DatabasePath string `mapstructure:"database_path"`
	RedisURL     string `mapstructure:"redis_url"`
	RedisPrefix  string `mapstructure:"redis_prefix"`
	PostgresURL  string `mapstructure:"postgres_url"`
}

type PomodoroConfig struct {
	WorkMinutes       int `mapstructure:"work_minutes"`
	ShortBreakMinutes int `mapstructure:"short_break_minutes"`
	LongBreakMinutes  int `mapstructure:"long_break_minutes"`
	MaxCycles         int `mapstructure:"max_cycles"`
}

type NotifyConfig struct {
	Desktop bool   `mapstructure:"desktop"`
	Icon    string `mapstructure:"icon"`
}

type SoundConfig struct {
	File   string  `mapstructure:"file"` // WAV; empty disables sound
	Repeat int     `mapstructure:"repeat"`
	Volume float64 `mapstructure:"volume"` // beep volume exponent, 0 is unchanged
}

type FocusConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	WindowClasses []string `mapstructure:"window_classes"`
}

type Config struct {
	Storage            StorageConfig  `mapstructure:"storage"`
	SocketPath         string         `mapstructure:"socket_path"`
	HTTPAddr           string         `mapstructure:"http_addr"` // empty disables the HTTP API
	CORSOrigins        []string       `mapstructure:"cors_origins"`
	TimerTickMillis    int            `mapstructure:"timer_tick_ms"`
	ScheduleTickMillis int            `mapstructure:"schedule_tick_ms"`
	Pomodoro           PomodoroConfig `mapstructure:"pomodoro"`
	Notify             NotifyConfig   `mapstructure:"notify"`
	Sound              SoundConfig    `mapstructure:"sound"`
	Focus              FocusConfig    `mapstructure:"focus"`
}

// LoadConfig reads configPath, or searches the default locations when it is
// empty. A .env file in the working directory is loaded into the
// environment first; STUDYTIMER_* variables override file values.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/studytimer")
		v.AddConfigPath("/etc/studytimer/")
	}

	v.SetEnvPrefix("STUDYTIMER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Config file not found, using defaults.")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.sanitize()

	log.Printf("Configuration loaded: %+v", cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.database_path", "studytimer.db")
	v.SetDefault("storage.redis_url", "redis://localhost:6379/0")
	v.SetDefault("storage.redis_prefix", "studytimer:")
	v.SetDefault("storage.postgres_url", "")
	v.SetDefault("socket_path", DefaultSocketPath())
	v.SetDefault("http_addr", "127.0.0.1:7420")
	v.SetDefault("cors_origins", []string{})
	v.SetDefault("timer_tick_ms", 200)
	v.SetDefault("schedule_tick_ms", 1000)
	v.SetDefault("pomodoro.work_minutes", 25)
	v.SetDefault("pomodoro.short_break_minutes", 5)
	v.SetDefault("pomodoro.long_break_minutes", 15)
	v.SetDefault("pomodoro.max_cycles", 4)
	v.SetDefault("notify.desktop", true)
	v.SetDefault("notify.icon", "")
	v.SetDefault("sound.file", "")
	v.SetDefault("sound.repeat", 3)
	v.SetDefault("sound.volume", 0)
	v.SetDefault("focus.enabled", false)
	v.SetDefault("focus.window_classes", []string{"studytimer"})
}

func (c *Config) sanitize() {
	switch c.Storage.Backend {
	case "sqlite", "redis", "postgres", "memory":
	default:
		log.Printf("Warning: invalid storage.backend '%s', defaulting to 'sqlite'", c.Storage.Backend)
		c.Storage.Backend = "sqlite"
	}
	if c.Storage.Backend == "postgres" && c.Storage.PostgresURL == "" {
		log.Println("Warning: storage.postgres_url is empty, falling back to sqlite")
		c.Storage.Backend = "sqlite"
	}
	if c.TimerTickMillis < 50 {
		log.Println("Warning: timer_tick_ms too low, setting to 50")
		c.TimerTickMillis = 50
	}
	if c.ScheduleTickMillis < 100 {
		log.Println("Warning: schedule_tick_ms too low, setting to 100")
		c.ScheduleTickMillis = 100
	}
	if c.Pomodoro.WorkMinutes <= 0 || c.Pomodoro.ShortBreakMinutes <= 0 ||
		c.Pomodoro.LongBreakMinutes <= 0 || c.Pomodoro.MaxCycles <= 0 {
		log.Printf("Warning: invalid pomodoro defaults %+v, using 25/5/15/4", c.Pomodoro)
		c.Pomodoro = PomodoroConfig{WorkMinutes: 25, ShortBreakMinutes: 5, LongBreakMinutes: 15, MaxCycles: 4}
	}
	if c.Sound.Repeat < 1 {
		c.Sound.Repeat = 1
	}
}

func (c Config) TimerTick() time.Duration {
	return time.Duration(c.TimerTickMillis) * time.Millisecond
}

func (c Config) ScheduleTick() time.Duration {
	return time.Duration(c.ScheduleTickMillis) * time.Millisecond
}

// DefaultSocketPath is shared by the daemon and the CLI.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "studytimer.sock")
	}
	return filepath.Join(os.TempDir(), "studytimer.sock")
}
