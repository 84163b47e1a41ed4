// Пакет config — загрузка и валидация конфигурации BlockEvidence
// из переменных окружения (опционально из файла .env).
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации BlockEvidence.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Публичный URL клиентского приложения (ссылки верификации в QR-кодах)
	AppPublicURL string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Количество попыток подключения к PostgreSQL при старте
	DBConnectAttempts int

	// --- JWT ---

	// Issuer локально выпускаемых токенов
	JWTIssuer string
	// Время жизни локально выпускаемых токенов
	JWTTTL time.Duration
	// Путь к PEM-файлу RSA-ключа подписи (пусто — эфемерный ключ)
	JWTPrivateKeyPath string
	// URL JWKS внешнего IdP (опционально)
	JWTRemoteJWKSURL string
	// Issuer токенов внешнего IdP
	JWTRemoteIssuer string
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал обновления удалённого JWKS
	JWKSRefreshInterval time.Duration
	// Сколько держать в кэше подтверждённый статус активности пользователя
	AuthStatusTTL time.Duration
	// Доверять X-Forwarded-For/X-Real-IP (сервис за обратным прокси)
	TrustProxy bool

	// --- Хранилище файлов ---

	// Каталог хранения файлов улик
	DataDir string
	// Максимальный размер загружаемого файла в байтах
	MaxUploadSize int64

	// --- Верификация ---

	// Размер LRU-кэша результатов верификации
	VerifyCacheSize int
	// TTL записей кэша верификации
	VerifyCacheTTL time.Duration
	// Лимит запросов к публичным endpoints на один IP (запросов в секунду)
	RateLimitRPS float64
	// Burst лимитера
	RateLimitBurst int

	// --- Фоновые задачи ---

	// Доставка уведомлений через очередь River (false — запись в той же транзакции)
	OutboxEnabled bool
	// Количество воркеров очереди уведомлений
	OutboxWorkers int
	// Интервал проверки сроков хранения улик
	RetentionSweepInterval time.Duration
	// Группа topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- API ---

	// Валидация входящих запросов по OpenAPI-контракту
	OpenAPIValidate bool

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
//
//nolint:funlen,cyclop // линейный разбор переменных окружения
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("BE_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("BE_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("BE_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("BE_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("BE_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("BE_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("BE_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.AppPublicURL = strings.TrimRight(getEnvDefault("BE_APP_PUBLIC_URL", "http://localhost:3000"), "/")
	if _, err := url.ParseRequestURI(cfg.AppPublicURL); err != nil {
		return nil, fmt.Errorf("BE_APP_PUBLIC_URL: некорректный URL %q", cfg.AppPublicURL)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("BE_DB_HOST")
	if err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("BE_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("BE_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("BE_DB_NAME")
	if err != nil {
		return nil, err
	}

	cfg.DBUser, err = getEnvRequired("BE_DB_USER")
	if err != nil {
		return nil, err
	}

	cfg.DBPassword, err = getEnvRequired("BE_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("BE_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("BE_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBConnectAttempts, err = getEnvInt("BE_DB_CONNECT_ATTEMPTS", 5)
	if err != nil {
		return nil, fmt.Errorf("BE_DB_CONNECT_ATTEMPTS: %w", err)
	}
	if cfg.DBConnectAttempts < 1 {
		return nil, fmt.Errorf("BE_DB_CONNECT_ATTEMPTS: значение должно быть >= 1")
	}

	// --- JWT ---

	cfg.JWTIssuer = getEnvDefault("BE_JWT_ISSUER", "blockevidence")

	cfg.JWTTTL, err = getEnvDuration("BE_JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("BE_JWT_TTL: %w", err)
	}

	cfg.JWTPrivateKeyPath = getEnvDefault("BE_JWT_PRIVATE_KEY_PATH", "")
	cfg.JWTRemoteJWKSURL = getEnvDefault("BE_JWT_REMOTE_JWKS_URL", "")
	cfg.JWTRemoteIssuer = getEnvDefault("BE_JWT_REMOTE_ISSUER", "")
	if cfg.JWTRemoteJWKSURL != "" && cfg.JWTRemoteIssuer == "" {
		return nil, fmt.Errorf("BE_JWT_REMOTE_ISSUER: обязателен, если задан BE_JWT_REMOTE_JWKS_URL")
	}

	cfg.JWTLeeway, err = getEnvDuration("BE_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BE_JWT_LEEWAY: %w", err)
	}

	cfg.JWKSRefreshInterval, err = getEnvDuration("BE_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("BE_JWKS_REFRESH_INTERVAL: %w", err)
	}

	cfg.AuthStatusTTL, err = getEnvDuration("BE_AUTH_STATUS_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BE_AUTH_STATUS_TTL: %w", err)
	}
	if cfg.AuthStatusTTL <= 0 {
		return nil, fmt.Errorf("BE_AUTH_STATUS_TTL: значение должно быть положительным")
	}

	cfg.TrustProxy, err = getEnvBool("BE_TRUST_PROXY", false)
	if err != nil {
		return nil, fmt.Errorf("BE_TRUST_PROXY: %w", err)
	}

	// --- Хранилище файлов ---

	cfg.DataDir = getEnvDefault("BE_DATA_DIR", "./data/evidence")

	maxUploadMB, err := getEnvInt("BE_MAX_UPLOAD_SIZE_MB", 100)
	if err != nil {
		return nil, fmt.Errorf("BE_MAX_UPLOAD_SIZE_MB: %w", err)
	}
	if maxUploadMB < 1 || maxUploadMB > 10240 {
		return nil, fmt.Errorf("BE_MAX_UPLOAD_SIZE_MB: значение %d вне допустимого диапазона 1-10240", maxUploadMB)
	}
	cfg.MaxUploadSize = int64(maxUploadMB) << 20

	// --- Верификация ---

	cfg.VerifyCacheSize, err = getEnvInt("BE_VERIFY_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("BE_VERIFY_CACHE_SIZE: %w", err)
	}
	if cfg.VerifyCacheSize < 1 {
		return nil, fmt.Errorf("BE_VERIFY_CACHE_SIZE: значение должно быть >= 1")
	}

	cfg.VerifyCacheTTL, err = getEnvDuration("BE_VERIFY_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("BE_VERIFY_CACHE_TTL: %w", err)
	}

	cfg.RateLimitRPS, err = getEnvFloat("BE_RATE_LIMIT_RPS", 5)
	if err != nil {
		return nil, fmt.Errorf("BE_RATE_LIMIT_RPS: %w", err)
	}
	if cfg.RateLimitRPS <= 0 {
		return nil, fmt.Errorf("BE_RATE_LIMIT_RPS: значение должно быть положительным")
	}

	cfg.RateLimitBurst, err = getEnvInt("BE_RATE_LIMIT_BURST", 10)
	if err != nil {
		return nil, fmt.Errorf("BE_RATE_LIMIT_BURST: %w", err)
	}

	// --- Фоновые задачи ---

	cfg.OutboxEnabled, err = getEnvBool("BE_OUTBOX_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("BE_OUTBOX_ENABLED: %w", err)
	}

	cfg.OutboxWorkers, err = getEnvInt("BE_OUTBOX_WORKERS", 5)
	if err != nil {
		return nil, fmt.Errorf("BE_OUTBOX_WORKERS: %w", err)
	}
	if cfg.OutboxWorkers < 1 || cfg.OutboxWorkers > 100 {
		return nil, fmt.Errorf("BE_OUTBOX_WORKERS: значение %d вне допустимого диапазона 1-100", cfg.OutboxWorkers)
	}

	cfg.RetentionSweepInterval, err = getEnvDuration("BE_RETENTION_SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("BE_RETENTION_SWEEP_INTERVAL: %w", err)
	}

	cfg.DephealthGroup = getEnvDefault("BE_DEPHEALTH_GROUP", "blockevidence")

	cfg.DephealthCheckInterval, err = getEnvDuration("BE_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BE_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- API ---

	cfg.OpenAPIValidate, err = getEnvBool("BE_OPENAPI_VALIDATE", false)
	if err != nil {
		return nil, fmt.Errorf("BE_OPENAPI_VALIDATE: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("BE_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BE_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL без пароля
// (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
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

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

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

// getEnvFloat возвращает дробное значение переменной окружения или значение по умолчанию.
func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
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
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
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
