// Пакет config — загрузка и валидация конфигурации сервиса документов
// из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// Окружение: development, production, test
	Env string
	// Хост и порт HTTP-сервера
	Host string
	Port int
	// Публичный базовый URL для ссылок view/download (пусто = из запроса)
	BaseURL string

	// Корневой каталог хранилища
	StorageDir string
	// Каталог временных файлов загрузки
	TempDir string
	// Каталог журнала сохранений
	WALDir string
	// Максимальный размер файла в байтах
	MaxFileSize int64
	// Разрешить загрузку изображений (jpeg, png, gif, webp)
	AllowImages bool

	// Ссылка, выдаваемая клиенту: token или id
	ReferenceMode string
	// Способ поиска: memory (индекс) или scan (обход + LRU)
	IndexMode string
	// Параметры LRU-кэша в режиме scan
	ResolveCacheSize int
	ResolveCacheTTL  time.Duration

	// Ограничение частоты запросов с одного IP
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitUploads  int
	RateLimitWindow   time.Duration

	// Access-Control-Allow-Origin: *
	CORSEnabled bool

	// Интервал автоматической сверки
	ReconcileInterval time.Duration
	// Пересчитывать SHA-256 при сверке
	ReconcileChecksum bool
	// Интервал очистки временных файлов и журнала
	GCInterval time.Duration
	// Временные файлы старше этого возраста удаляются
	StagingMaxAge time.Duration
	// Незавершённые сохранения моложе этого возраста не откатываются
	RecoverGrace time.Duration

	// TLS (опционально, оба параметра вместе)
	TLSCert string
	TLSKey  string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
//
// Если существует файл DS_ENV_FILE (по умолчанию .env), его переменные
// добавляются в окружение. Уже заданные переменные не перекрываются.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	envFile := getEnvDefault("DS_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("DS_ENV_FILE: ошибка чтения %s: %w", envFile, err)
	}

	// DS_ENV — окружение (по умолчанию development)
	cfg.Env = getEnvDefault("DS_ENV", "development")
	switch cfg.Env {
	case "development", "production", "test":
	default:
		return nil, fmt.Errorf("DS_ENV: недопустимое значение %q, допустимые: development, production, test", cfg.Env)
	}

	cfg.Host = getEnvDefault("DS_HOST", "")

	// DS_PORT — порт HTTP-сервера (по умолчанию 3000)
	cfg.Port, err = getEnvInt("DS_PORT", 3000)
	if err != nil {
		return nil, fmt.Errorf("DS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("DS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.BaseURL = strings.TrimSuffix(getEnvDefault("DS_BASE_URL", ""), "/")

	// DS_STORAGE_DIR — корень хранилища (по умолчанию ./storage)
	cfg.StorageDir = getEnvDefault("DS_STORAGE_DIR", "./storage")
	cfg.TempDir = getEnvDefault("DS_TEMP_DIR", filepath.Join(cfg.StorageDir, "temp"))
	cfg.WALDir = getEnvDefault("DS_WAL_DIR", filepath.Join(cfg.StorageDir, ".wal"))

	// DS_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 10 MB)
	cfg.MaxFileSize, err = getEnvInt64("DS_MAX_FILE_SIZE", 10*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("DS_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("DS_MAX_FILE_SIZE: значение должно быть положительным")
	}

	cfg.AllowImages, err = getEnvBool("DS_ALLOW_IMAGES", false)
	if err != nil {
		return nil, fmt.Errorf("DS_ALLOW_IMAGES: %w", err)
	}

	// DS_REFERENCE_MODE — token или id (по умолчанию token)
	cfg.ReferenceMode = getEnvDefault("DS_REFERENCE_MODE", "token")
	if cfg.ReferenceMode != "token" && cfg.ReferenceMode != "id" {
		return nil, fmt.Errorf("DS_REFERENCE_MODE: недопустимое значение %q, допустимые: token, id", cfg.ReferenceMode)
	}

	// DS_INDEX_MODE — memory или scan (по умолчанию memory)
	cfg.IndexMode = getEnvDefault("DS_INDEX_MODE", "memory")
	if cfg.IndexMode != "memory" && cfg.IndexMode != "scan" {
		return nil, fmt.Errorf("DS_INDEX_MODE: недопустимое значение %q, допустимые: memory, scan", cfg.IndexMode)
	}

	cfg.ResolveCacheSize, err = getEnvInt("DS_RESOLVE_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("DS_RESOLVE_CACHE_SIZE: %w", err)
	}
	if cfg.ResolveCacheSize <= 0 {
		return nil, fmt.Errorf("DS_RESOLVE_CACHE_SIZE: значение должно быть положительным")
	}
	cfg.ResolveCacheTTL, err = getEnvDuration("DS_RESOLVE_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DS_RESOLVE_CACHE_TTL: %w", err)
	}

	// Ограничение частоты: 100 запросов и 10 загрузок за 15 минут
	cfg.RateLimitEnabled, err = getEnvBool("DS_RATE_LIMIT_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("DS_RATE_LIMIT_ENABLED: %w", err)
	}
	cfg.RateLimitRequests, err = getEnvInt("DS_RATE_LIMIT_REQUESTS", 100)
	if err != nil {
		return nil, fmt.Errorf("DS_RATE_LIMIT_REQUESTS: %w", err)
	}
	cfg.RateLimitUploads, err = getEnvInt("DS_RATE_LIMIT_UPLOADS", 10)
	if err != nil {
		return nil, fmt.Errorf("DS_RATE_LIMIT_UPLOADS: %w", err)
	}
	cfg.RateLimitWindow, err = getEnvDuration("DS_RATE_LIMIT_WINDOW", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DS_RATE_LIMIT_WINDOW: %w", err)
	}
	if cfg.RateLimitEnabled && (cfg.RateLimitRequests <= 0 || cfg.RateLimitUploads <= 0 || cfg.RateLimitWindow <= 0) {
		return nil, fmt.Errorf("DS_RATE_LIMIT_*: лимиты и окно должны быть положительными")
	}

	// DS_CORS_ENABLED — по умолчанию выключен в production
	cfg.CORSEnabled, err = getEnvBool("DS_CORS_ENABLED", cfg.Env != "production")
	if err != nil {
		return nil, fmt.Errorf("DS_CORS_ENABLED: %w", err)
	}

	// DS_RECONCILE_INTERVAL — интервал сверки (по умолчанию 6h)
	cfg.ReconcileInterval, err = getEnvDuration("DS_RECONCILE_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("DS_RECONCILE_INTERVAL: %w", err)
	}

	cfg.ReconcileChecksum, err = getEnvBool("DS_RECONCILE_CHECKSUM", true)
	if err != nil {
		return nil, fmt.Errorf("DS_RECONCILE_CHECKSUM: %w", err)
	}

	// DS_GC_INTERVAL — интервал очистки (по умолчанию 1h)
	cfg.GCInterval, err = getEnvDuration("DS_GC_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("DS_GC_INTERVAL: %w", err)
	}

	cfg.StagingMaxAge, err = getEnvDuration("DS_STAGING_MAX_AGE", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("DS_STAGING_MAX_AGE: %w", err)
	}

	// DS_RECOVER_GRACE — возраст, после которого незавершённое сохранение
	// считается брошенным (по умолчанию 10m)
	cfg.RecoverGrace, err = getEnvDuration("DS_RECOVER_GRACE", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DS_RECOVER_GRACE: %w", err)
	}

	if cfg.ReconcileInterval <= 0 || cfg.GCInterval <= 0 || cfg.StagingMaxAge <= 0 || cfg.RecoverGrace <= 0 {
		return nil, fmt.Errorf("интервалы сверки, очистки, DS_STAGING_MAX_AGE и DS_RECOVER_GRACE должны быть положительными")
	}

	// DS_TLS_CERT / DS_TLS_KEY — задаются вместе
	cfg.TLSCert = getEnvDefault("DS_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("DS_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("DS_TLS_CERT и DS_TLS_KEY должны задаваться вместе")
	}

	// DS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("DS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// DS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DS_LOG_LEVEL: %w", err)
	}

	// DS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	return cfg, nil
}

// TLSEnabled сообщает, настроен ли TLS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// Addr возвращает адрес для http.Server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (используйте true/false)", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
