package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	LinkAuth     LinkAuthConfig     `mapstructure:"linkauth"`
	SessionCache SessionCacheConfig `mapstructure:"session_cache"`
	Directory    DirectoryConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`

	// PublicURL — внешний адрес сервиса; из него строится callback URL,
	// передаваемый провайдеру, и service URL в directory-операциях.
	PublicURL string `mapstructure:"public_url"`
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт). Используется для всех режимов.
	Addrs []string `mapstructure:"addrs"`

	// Addr: Альтернативный адрес для режима 'single' (для обратной совместимости).
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	MaxRetries      int `mapstructure:"max_retries"`
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`
}

// JWTConfig содержит настройки локальных учетных данных (access/refresh)
type JWTConfig struct {
	Secret           string `mapstructure:"secret"`
	AccessExpiryMins int    `mapstructure:"access_expiry_mins"`
	RefreshExpiryHrs int    `mapstructure:"refresh_expiry_hrs"`
}

// LinkAuthConfig содержит настройки линковки внешних идентичностей.
type LinkAuthConfig struct {
	// Enabled выключает все эндпоинты линковки целиком.
	Enabled bool `mapstructure:"enabled"`

	// ProviderBaseURL — базовый адрес внешнего провайдера. Hostname этого
	// адреса служит ключом провайдера в identity_mappings.
	ProviderBaseURL string `mapstructure:"provider_base_url"`

	// AllowAll — операторский trust switch: принимать payload'ы,
	// помеченные провайдером как одобренные, без криптографической
	// проверки. Без него анонимный login/callback отклоняется.
	AllowAll bool `mapstructure:"allow_all"`

	// AllowCreate разрешает создание нового аккаунта, когда маппинга нет
	// и вызывающий анонимен.
	AllowCreate bool `mapstructure:"allow_create"`

	// HandleDomains — суффиксы хендлов этого сервиса; первый используется
	// при аллокации.
	HandleDomains []string `mapstructure:"handle_domains"`

	// RecoveryDIDKey — опциональный recovery-ключ, добавляемый первым в
	// rotation keys directory-операции.
	RecoveryDIDKey string `mapstructure:"recovery_did_key"`
}

// SessionCacheConfig выбирает бэкенд кеша сессий линковки.
type SessionCacheConfig struct {
	// Backend: "memory" (один инстанс) или "redis" (общий кеш).
	Backend string `mapstructure:"backend"`

	// MaxEntries ограничивает memory-бэкенд.
	MaxEntries int `mapstructure:"max_entries"`
}

// DirectoryConfig содержит настройки identity directory.
type DirectoryConfig struct {
	URL        string `mapstructure:"url"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Timeout возвращает таймаут directory-клиента.
func (d *DirectoryConfig) Timeout() time.Duration {
	if d.TimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(d.TimeoutSec) * time.Second
}

var schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// NormalizedProviderBaseURL приводит базовый адрес провайдера к абсолютному
// URL (https по умолчанию) и валидирует его.
func (l *LinkAuthConfig) NormalizedProviderBaseURL() (string, error) {
	trimmed := strings.TrimSpace(l.ProviderBaseURL)
	if trimmed == "" {
		return "", fmt.Errorf("linkauth provider base url is required")
	}
	if !schemeRe.MatchString(trimmed) {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("invalid linkauth provider base url %q", l.ProviderBaseURL)
	}
	return strings.TrimRight(parsed.String(), "/"), nil
}

// PrimaryHandleDomain возвращает суффикс хендлов по умолчанию.
func (l *LinkAuthConfig) PrimaryHandleDomain() string {
	if len(l.HandleDomains) > 0 && l.HandleDomains[0] != "" {
		return l.HandleDomains[0]
	}
	return ".test"
}

// Load загружает конфигурацию из файла
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Используем новый экземпляр Viper, чтобы избежать глобального состояния

	// Значения по умолчанию
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.read_timeout", 15)
	vip.SetDefault("server.write_timeout", 15)
	vip.SetDefault("session_cache.backend", "memory")
	vip.SetDefault("session_cache.max_entries", 10000)
	vip.SetDefault("linkauth.allow_create", true)
	vip.SetDefault("jwt.access_expiry_mins", 120)
	vip.SetDefault("jwt.refresh_expiry_hrs", 2160)

	// Привязываем переменные окружения ЯВНО
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("jwt.secret", "JWT_SECRET")
	vip.BindEnv("jwt.access_expiry_mins", "JWT_ACCESS_EXPIRY_MINS")
	vip.BindEnv("jwt.refresh_expiry_hrs", "JWT_REFRESH_EXPIRY_HRS")

	vip.BindEnv("server.port", "SERVER_PORT")
	vip.BindEnv("server.public_url", "SERVER_PUBLIC_URL")

	vip.BindEnv("linkauth.enabled", "LINKAUTH_ENABLED")
	vip.BindEnv("linkauth.provider_base_url", "LINKAUTH_PROVIDER_BASE_URL")
	vip.BindEnv("linkauth.allow_all", "LINKAUTH_ALLOW_ALL")
	vip.BindEnv("linkauth.allow_create", "LINKAUTH_ALLOW_CREATE")
	vip.BindEnv("linkauth.recovery_did_key", "LINKAUTH_RECOVERY_DID_KEY")

	vip.BindEnv("session_cache.backend", "SESSION_CACHE_BACKEND")
	vip.BindEnv("directory.url", "DIRECTORY_URL")

	// Путь к файлу конфигурации; отсутствие файла не фатально, есть BindEnv
	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Логирование конфигурации (только в debug режиме)
	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("Server Public URL: %s", cfg.Server.PublicURL)
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Addr: %s", cfg.Redis.Addr)
		log.Printf("LinkAuth Enabled: %t", cfg.LinkAuth.Enabled)
		log.Printf("LinkAuth Provider: %s", cfg.LinkAuth.ProviderBaseURL)
		log.Printf("LinkAuth AllowAll: %t", cfg.LinkAuth.AllowAll)
		log.Printf("Session Cache Backend: %s", cfg.SessionCache.Backend)
		log.Printf("Directory URL: %s", cfg.Directory.URL)
		log.Printf("JWT Secret Set: %t", cfg.JWT.Secret != "")
		log.Printf("-----------------------------------------")
	}

	// Проверка обязательных параметров
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT secret is required in config (check JWT_SECRET env var)")
	}
	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return nil, fmt.Errorf("database configuration (host, dbname, user) is incomplete in config (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if cfg.Server.PublicURL == "" {
		return nil, fmt.Errorf("server public_url is required in config (check SERVER_PUBLIC_URL env var)")
	}
	if cfg.LinkAuth.Enabled {
		if _, err := cfg.LinkAuth.NormalizedProviderBaseURL(); err != nil {
			return nil, err
		}
	}
	switch cfg.SessionCache.Backend {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("unsupported session cache backend: %s", cfg.SessionCache.Backend)
	}

	return &cfg, nil
}
