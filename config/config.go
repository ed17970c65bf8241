package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Security  SecurityConfig  `mapstructure:"security"`
	Community CommunityConfig `mapstructure:"community"`
	Mail      MailConfig      `mapstructure:"mail"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port  int  `mapstructure:"port"`
	Debug bool `mapstructure:"debug"`
	// MetricsAllowIPs restricts /metrics. Empty allows every client.
	MetricsAllowIPs []string `mapstructure:"metrics_allow_ips"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql | memory
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

// StorageConfig selects where the community snapshot is persisted.
type StorageConfig struct {
	Mode     string `mapstructure:"mode"` // sql | cache | memory
	CacheKey string `mapstructure:"cache_key"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	PasswordHasher string        `mapstructure:"password_hasher"` // argon2id | bcrypt
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
}

type CommunityConfig struct {
	Guilds            []string      `mapstructure:"guilds"`
	MinPasswordLen    int           `mapstructure:"min_password_len"`
	ResetTokenTTL     time.Duration `mapstructure:"reset_token_ttl"`
	ChatHistory       int           `mapstructure:"chat_history"`
	LeaderboardSize   int           `mapstructure:"leaderboard_size"`
	PointsPerProblem  int           `mapstructure:"points_per_problem"`
	SolveRespectAward int           `mapstructure:"solve_respect_award"`
}

type MailConfig struct {
	Mode         string `mapstructure:"mode"` // log | smtp
	From         string `mapstructure:"from"`
	ResetURL     string `mapstructure:"reset_url"`
	SMTPAddr     string `mapstructure:"smtp_addr"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
}

type SchedulerConfig struct {
	AutoSaveInterval   time.Duration `mapstructure:"auto_save_interval"`
	ResetSweepInterval time.Duration `mapstructure:"reset_sweep_interval"`
}

// DefaultGuilds are the six Bay Code guilds.
var DefaultGuilds = []string{
	"Blue Guild", "Red Guild", "Green Guild",
	"Yellow Guild", "Pink Guild", "Magenta Guild",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/baycode.db")
	v.SetDefault("database.mysql_max_open", 20)
	v.SetDefault("database.mysql_max_idle", 5)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("storage.mode", "sql")
	v.SetDefault("storage.cache_key", "bayCodeData")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_secret", "change-me")
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 20)
	v.SetDefault("security.rate_limit_burst", 40)
	v.SetDefault("security.password_hasher", "argon2id")
	v.SetDefault("security.bcrypt_cost", 12)
	v.SetDefault("community.guilds", DefaultGuilds)
	v.SetDefault("community.min_password_len", 6)
	v.SetDefault("community.reset_token_ttl", "1h")
	v.SetDefault("community.chat_history", 100)
	v.SetDefault("community.leaderboard_size", 20)
	v.SetDefault("community.points_per_problem", 10)
	v.SetDefault("community.solve_respect_award", 1)
	v.SetDefault("mail.mode", "log")
	v.SetDefault("mail.from", "noreply@baycode.org")
	v.SetDefault("mail.reset_url", "https://baycode.org/reset-password.html")
	v.SetDefault("scheduler.auto_save_interval", "5m")
	v.SetDefault("scheduler.reset_sweep_interval", "10m")
}

// Load reads config from the given YAML file path. A missing file is not
// an error: defaults and BAYCODE_* environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("baycode")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if len(cfg.Community.Guilds) == 0 {
		cfg.Community.Guilds = append([]string(nil), DefaultGuilds...)
	}
	return cfg, nil
}

// Default returns the configuration produced by Load with no file present.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}
