package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port               int      `mapstructure:"port"`
		Timezone           string   `mapstructure:"timezone"`
		CorsAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
		CorsAllowedMethods []string `mapstructure:"cors_allowed_methods"`
		CorsAllowedHeaders []string `mapstructure:"cors_allowed_headers"`
		RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`
	} `mapstructure:"server"`

	Store struct {
		Path     string `mapstructure:"path"`
		InMemory bool   `mapstructure:"in_memory"`
	} `mapstructure:"store"`

	// Database is the optional remote store. When it is unreachable at startup
	// the service keeps running on the local store only.
	Database struct {
		Enabled               bool   `mapstructure:"enabled"`
		Host                  string `mapstructure:"host"`
		Port                  int    `mapstructure:"port"`
		User                  string `mapstructure:"user"`
		Password              string `mapstructure:"password"`
		Name                  string `mapstructure:"name"`
		ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
		SyncIntervalSeconds   int    `mapstructure:"sync_interval_seconds"`
	} `mapstructure:"database"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	JWT struct {
		Secret           string `mapstructure:"secret"`
		AccessTTLMinutes int    `mapstructure:"access_ttl_minutes"`
		RefreshTTLHours  int    `mapstructure:"refresh_ttl_hours"`
		TempTTLMinutes   int    `mapstructure:"temp_ttl_minutes"`
		Issuer           string `mapstructure:"issuer"`
		ResetTTLHours    int    `mapstructure:"reset_ttl_hours"`
	} `mapstructure:"jwt"`

	TOTP struct {
		Issuer string `mapstructure:"issuer"`
		Period uint   `mapstructure:"period"`
		Skew   uint   `mapstructure:"skew"`
	} `mapstructure:"totp"`

	Password struct {
		MinLength        int  `mapstructure:"min_length"`
		RequireUppercase bool `mapstructure:"require_uppercase"`
		RequireLowercase bool `mapstructure:"require_lowercase"`
		RequireDigit     bool `mapstructure:"require_digit"`
		RequireSpecial   bool `mapstructure:"require_special"`
	} `mapstructure:"password"`

	Upload struct {
		Dir               string   `mapstructure:"dir"`
		MaxBytes          int64    `mapstructure:"max_bytes"`
		AllowedExtensions []string `mapstructure:"allowed_extensions"`
		TempMaxAgeHours   int      `mapstructure:"temp_max_age_hours"`
	} `mapstructure:"upload"`

	Analytics struct {
		CacheSeconds int `mapstructure:"cache_seconds"`
	} `mapstructure:"analytics"`

	Notifications struct {
		QueueMaxAgeHours     int    `mapstructure:"queue_max_age_hours"`
		SweepIntervalMinutes int    `mapstructure:"sweep_interval_minutes"`
		NatsURL              string `mapstructure:"nats_url"`
		NatsSubject          string `mapstructure:"nats_subject"`
	} `mapstructure:"notifications"`

	Backup struct {
		Enabled       bool   `mapstructure:"enabled"`
		IntervalHours int    `mapstructure:"interval_hours"`
		Endpoint      string `mapstructure:"endpoint"`
		Region        string `mapstructure:"region"`
		Bucket        string `mapstructure:"bucket"`
		AccessKey     string `mapstructure:"access_key"`
		SecretKey     string `mapstructure:"secret_key"`
		Prefix        string `mapstructure:"prefix"`
	} `mapstructure:"backup"`

	Mail struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		From     string `mapstructure:"from"`
	} `mapstructure:"mail"`

	Seed struct {
		AdminEmail    string `mapstructure:"admin_email"`
		AdminPassword string `mapstructure:"admin_password"`
		DemoData      bool   `mapstructure:"demo_data"`
	} `mapstructure:"seed"`

	Automation struct {
		Enabled         bool `mapstructure:"enabled"`
		IntervalMinutes int  `mapstructure:"interval_minutes"`
		AutoAssignLeads bool `mapstructure:"auto_assign_leads"`
	} `mapstructure:"automation"`

	Monitoring struct {
		Enabled         bool    `mapstructure:"enabled"`
		IntervalSeconds int     `mapstructure:"interval_seconds"`
		AlertThreshold  float64 `mapstructure:"alert_threshold"`
	} `mapstructure:"monitoring"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// Load reads configuration from .env, configs/config.yaml and the environment.
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile("configs/config.yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		log.Info().Str("component", "config").Msg("no config file found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}

	applyEnvOverrides(&cfg)

	if cfg.JWT.Secret == "" || cfg.JWT.Secret == "${JWT_SECRET}" {
		return nil, fmt.Errorf("JWT_SECRET not set")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timezone", "Asia/Kolkata")
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Authorization", "Content-Type"})
	v.SetDefault("server.rate_limit_per_minute", 100)

	v.SetDefault("store.path", "data/badger")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "erp_db")
	v.SetDefault("database.connect_timeout_seconds", 5)
	v.SetDefault("database.sync_interval_seconds", 30)

	v.SetDefault("jwt.access_ttl_minutes", 60)
	v.SetDefault("jwt.refresh_ttl_hours", 720)
	v.SetDefault("jwt.temp_ttl_minutes", 5)
	v.SetDefault("jwt.reset_ttl_hours", 24)
	v.SetDefault("jwt.issuer", "erp-backend")

	v.SetDefault("totp.issuer", "Trivanta Edge ERP")
	v.SetDefault("totp.period", 30)
	v.SetDefault("totp.skew", 1)

	v.SetDefault("password.min_length", 8)
	v.SetDefault("password.require_uppercase", true)
	v.SetDefault("password.require_lowercase", true)
	v.SetDefault("password.require_digit", true)
	v.SetDefault("password.require_special", true)

	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.max_bytes", 16*1024*1024)
	v.SetDefault("upload.allowed_extensions", []string{"txt", "pdf", "png", "jpg", "jpeg", "gif", "doc", "docx", "xls", "xlsx"})
	v.SetDefault("upload.temp_max_age_hours", 24)

	v.SetDefault("analytics.cache_seconds", 300)

	v.SetDefault("notifications.queue_max_age_hours", 24)
	v.SetDefault("notifications.sweep_interval_minutes", 60)
	v.SetDefault("notifications.nats_subject", "erp.notifications")

	v.SetDefault("backup.interval_hours", 24)
	v.SetDefault("backup.region", "auto")
	v.SetDefault("backup.prefix", "erp")

	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "noreply@erp.local")

	v.SetDefault("seed.admin_email", "admin@erp.local")

	v.SetDefault("automation.enabled", true)
	v.SetDefault("automation.interval_minutes", 60)
	v.SetDefault("automation.auto_assign_leads", true)

	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.interval_seconds", 60)
	v.SetDefault("monitoring.alert_threshold", 90.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func applyEnvOverrides(cfg *Config) {
	// Override database settings from DB_* environment variables
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
		cfg.Database.Enabled = true
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Database.Port = n
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if pass := os.Getenv("DB_PASSWORD"); pass != "" {
		cfg.Database.Password = pass
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Database.Name = name
	}

	if cfg.JWT.Secret == "" || cfg.JWT.Secret == "${JWT_SECRET}" {
		cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}

	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.Notifications.NatsURL = url
	}

	// Object storage credentials only ever come from the environment or config file
	if ep := os.Getenv("S3_ENDPOINT"); ep != "" {
		cfg.Backup.Endpoint = ep
	}
	if bucket := os.Getenv("S3_BUCKET"); bucket != "" {
		cfg.Backup.Bucket = bucket
	}
	if key := os.Getenv("S3_ACCESS_KEY"); key != "" {
		cfg.Backup.AccessKey = key
	}
	if secret := os.Getenv("S3_SECRET_KEY"); secret != "" {
		cfg.Backup.SecretKey = secret
	}

	if pass := os.Getenv("SEED_ADMIN_PASSWORD"); pass != "" {
		cfg.Seed.AdminPassword = pass
	}
}

// DSN builds the pgx connection string for the remote store.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Name)
}

// BackupConfigured reports whether object storage credentials are present.
func (c *Config) BackupConfigured() bool {
	return c.Backup.Endpoint != "" && c.Backup.Bucket != "" && c.Backup.AccessKey != "" && c.Backup.SecretKey != ""
}

func (c *Config) AccessTTL() time.Duration  { return time.Duration(c.JWT.AccessTTLMinutes) * time.Minute }
func (c *Config) RefreshTTL() time.Duration { return time.Duration(c.JWT.RefreshTTLHours) * time.Hour }
func (c *Config) TempTTL() time.Duration    { return time.Duration(c.JWT.TempTTLMinutes) * time.Minute }
func (c *Config) ResetTTL() time.Duration   { return time.Duration(c.JWT.ResetTTLHours) * time.Hour }

func (c *Config) AnalyticsCacheDuration() time.Duration {
	return time.Duration(c.Analytics.CacheSeconds) * time.Second
}
