package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	App      AppConfig      `json:"app"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	Search   SearchConfig   `json:"search"`
	Alerts   AlertsConfig   `json:"alerts"`
	Email    EmailConfig    `json:"email"`
	Security SecurityConfig `json:"security"`
}

// AppConfig carries service-level settings.
type AppConfig struct {
	Env             string        `json:"env"`               // local / prod
	LogLevel        string        `json:"log_level"`         // debug / info / warn / error
	HTTPAddr        string        `json:"http_addr"`         // API listen address
	CheckInterval   time.Duration `json:"check_interval"`    // how often a keyword is due for a refresh
	ScheduleTick    time.Duration `json:"schedule_tick"`     // scheduler poll interval
	WorkerPoolSize  int           `json:"worker_pool_size"`  // concurrent refresh workers
	QueueCapacity   int           `json:"queue_capacity"`    // refresh queue capacity
	MaxKeywordsUser int           `json:"max_keywords_user"` // per-user keyword cap
	APIRateLimit    float64       `json:"api_rate_limit"`    // per-user requests per second, 0 disables
	APIRateBurst    float64       `json:"api_rate_burst"`    // per-user burst size
}

// MySQLConfig holds the database connection settings.
type MySQLConfig struct {
	DSN string `json:"dsn"`
}

// RedisConfig holds the cache connection settings.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
}

// SearchConfig configures the external search API client. An empty
// APIKey selects demo mode: positions are synthesized deterministically
// instead of fetched live.
type SearchConfig struct {
	APIKey      string        `json:"api_key"`
	Engine      string        `json:"engine"`       // search engine identifier, e.g. "google"
	BaseURL     string        `json:"base_url"`     // API endpoint
	Timeout     time.Duration `json:"timeout"`      // per-call timeout
	MinInterval time.Duration `json:"min_interval"` // minimum spacing between live calls
	ResultCount int           `json:"result_count"` // organic results requested per query
}

// AlertsConfig controls rank-change alerting.
type AlertsConfig struct {
	ImprovementThreshold int           `json:"improvement_threshold"` // positions gained to trigger an improvement alert
	DeclineThreshold     int           `json:"decline_threshold"`     // positions lost to trigger a decline alert
	NotifyImprovements   bool          `json:"notify_improvements"`
	NotifyDeclines       bool          `json:"notify_declines"`
	DedupWindow          time.Duration `json:"dedup_window"` // suppress repeat alerts per keyword within this window
}

// EmailConfig holds SMTP settings for alert mail.
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// SecurityConfig holds auth settings.
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// Load reads configs/config.json (or the given path) and applies
// defaults plus environment overrides. A missing file is not an error;
// defaults and environment variables alone are enough to run in demo
// mode.
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := defaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:             "local",
			LogLevel:        "info",
			HTTPAddr:        ":8082",
			CheckInterval:   24 * time.Hour,
			ScheduleTick:    15 * time.Minute,
			WorkerPoolSize:  8,
			QueueCapacity:   500,
			MaxKeywordsUser: 100,
			APIRateLimit:    20,
			APIRateBurst:    40,
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/sellerhub?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Search: SearchConfig{
			APIKey:      "",
			Engine:      "google",
			BaseURL:     "https://serpapi.com/search.json",
			Timeout:     20 * time.Second,
			MinInterval: time.Second,
			ResultCount: 100,
		},
		Alerts: AlertsConfig{
			ImprovementThreshold: 5,
			DeclineThreshold:     10,
			NotifyImprovements:   true,
			NotifyDeclines:       true,
			DedupWindow:          12 * time.Hour,
		},
		Email: EmailConfig{
			SMTPHost:  "smtp.gmail.com",
			SMTPPort:  587,
			SMTPUser:  "",
			SMTPPass:  "",
			FromEmail: "",
		},
		Security: SecurityConfig{
			JWTSecret: "dev_secret_change_me",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := defaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.CheckInterval == 0 {
		cfg.App.CheckInterval = defaults.App.CheckInterval
	}
	if cfg.App.ScheduleTick == 0 {
		cfg.App.ScheduleTick = defaults.App.ScheduleTick
	}
	if cfg.App.WorkerPoolSize == 0 {
		cfg.App.WorkerPoolSize = defaults.App.WorkerPoolSize
	}
	if cfg.App.QueueCapacity == 0 {
		cfg.App.QueueCapacity = defaults.App.QueueCapacity
	}
	if cfg.App.MaxKeywordsUser == 0 {
		cfg.App.MaxKeywordsUser = defaults.App.MaxKeywordsUser
	}
	if cfg.App.APIRateLimit == 0 {
		cfg.App.APIRateLimit = defaults.App.APIRateLimit
	}
	if cfg.App.APIRateBurst == 0 {
		cfg.App.APIRateBurst = defaults.App.APIRateBurst
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Search.Engine == "" {
		cfg.Search.Engine = defaults.Search.Engine
	}
	if cfg.Search.BaseURL == "" {
		cfg.Search.BaseURL = defaults.Search.BaseURL
	}
	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = defaults.Search.Timeout
	}
	if cfg.Search.MinInterval == 0 {
		cfg.Search.MinInterval = defaults.Search.MinInterval
	}
	if cfg.Search.ResultCount == 0 {
		cfg.Search.ResultCount = defaults.Search.ResultCount
	}
	if cfg.Alerts.ImprovementThreshold == 0 {
		cfg.Alerts.ImprovementThreshold = defaults.Alerts.ImprovementThreshold
	}
	if cfg.Alerts.DeclineThreshold == 0 {
		cfg.Alerts.DeclineThreshold = defaults.Alerts.DeclineThreshold
	}
	if cfg.Alerts.DedupWindow == 0 {
		cfg.Alerts.DedupWindow = defaults.Alerts.DedupWindow
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("serp_api_key", "SERP_API_KEY")
	_ = viper.BindEnv("db_dsn", "DB_DSN")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.CheckInterval = d
		}
	}
	if v := os.Getenv("APP_SCHEDULE_TICK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.ScheduleTick = d
		}
	}
	if v := os.Getenv("APP_WORKER_POOL_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.WorkerPoolSize = i
		}
	}
	if v := os.Getenv("APP_QUEUE_CAPACITY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.QueueCapacity = i
		}
	}
	if v := os.Getenv("APP_MAX_KEYWORDS_PER_USER"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.MaxKeywordsUser = i
		}
	}

	if v := viper.GetString("serp_api_key"); v != "" {
		cfg.Search.APIKey = v
	}
	if v := os.Getenv("SEARCH_ENGINE"); v != "" {
		cfg.Search.Engine = v
	}
	if v := os.Getenv("SEARCH_BASE_URL"); v != "" {
		cfg.Search.BaseURL = v
	}
	if v := os.Getenv("SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.Timeout = d
		}
	}
	if v := os.Getenv("SEARCH_MIN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.MinInterval = d
		}
	}

	if v := os.Getenv("ALERT_IMPROVEMENT_THRESHOLD"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Alerts.ImprovementThreshold = i
		}
	}
	if v := os.Getenv("ALERT_DECLINE_THRESHOLD"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Alerts.DeclineThreshold = i
		}
	}
	if v := os.Getenv("ALERT_DEDUP_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Alerts.DedupWindow = d
		}
	}

	if v := viper.GetString("db_dsn"); v != "" {
		cfg.MySQL.DSN = v
	} else if v := viper.GetString("db_password"); v != "" {
		if parsed, err := mysql.ParseDSN(cfg.MySQL.DSN); err == nil {
			parsed.Passwd = v
			cfg.MySQL.DSN = parsed.FormatDSN()
		}
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
}

// UnmarshalJSON parses duration fields given as strings like "15m".
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		CheckInterval string `json:"check_interval"`
		ScheduleTick  string `json:"schedule_tick"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.CheckInterval != "" {
		d, err := time.ParseDuration(aux.CheckInterval)
		if err != nil {
			return fmt.Errorf("invalid check_interval format: %w", err)
		}
		a.CheckInterval = d
	}
	if aux.ScheduleTick != "" {
		d, err := time.ParseDuration(aux.ScheduleTick)
		if err != nil {
			return fmt.Errorf("invalid schedule_tick format: %w", err)
		}
		a.ScheduleTick = d
	}
	return nil
}

// UnmarshalJSON parses duration fields given as strings like "20s".
func (s *SearchConfig) UnmarshalJSON(data []byte) error {
	type Alias SearchConfig
	aux := &struct {
		Timeout     string `json:"timeout"`
		MinInterval string `json:"min_interval"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Timeout != "" {
		d, err := time.ParseDuration(aux.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout format: %w", err)
		}
		s.Timeout = d
	}
	if aux.MinInterval != "" {
		d, err := time.ParseDuration(aux.MinInterval)
		if err != nil {
			return fmt.Errorf("invalid min_interval format: %w", err)
		}
		s.MinInterval = d
	}
	return nil
}

// UnmarshalJSON parses the dedup window given as a string like "12h".
func (a *AlertsConfig) UnmarshalJSON(data []byte) error {
	type Alias AlertsConfig
	aux := &struct {
		DedupWindow string `json:"dedup_window"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.DedupWindow != "" {
		d, err := time.ParseDuration(aux.DedupWindow)
		if err != nil {
			return fmt.Errorf("invalid dedup_window format: %w", err)
		}
		a.DedupWindow = d
	}
	return nil
}
