// Пакет config — загрузка и валидация конфигурации SmartTalk
// из переменных окружения.
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

// Config содержит все параметры конфигурации SmartTalk.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Имя чат-бота в заголовке UI
	ChatbotName string
	// Выставлять флаг Secure у cookie (включать за TLS)
	SecureCookie bool
	// Ключ шифрования cookie клиента (пусто — генерируется при старте)
	SessionSecret string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Gemini ---

	// API-ключ generateContent (хранится только на сервере)
	GeminiAPIKey string
	// Базовый URL API (без trailing slash)
	GeminiBaseURL string
	// Имя модели
	GeminiModel string
	// Таймаут одного запроса генерации
	GeminiTimeout time.Duration

	// --- Аутентификация ---

	// Issuer id-токенов
	AuthIssuer string
	// Время жизни id-токена
	AuthTokenTTL time.Duration
	// Путь к PEM-файлу RSA-ключа подписи (пусто — ключ генерируется при старте)
	AuthSigningKeyPath string
	// Стоимость bcrypt
	BcryptCost int
	// Минимальная длина пароля
	MinPasswordLength int
	// Email-адреса, получающие роль admin при старте (через запятую)
	BootstrapAdmins []string

	// --- Клиентские сессии ---

	// Таймаут проверки записи авторизации (admin lookup)
	AuthzLookupTimeout time.Duration
	// Максимальное число одновременно удерживаемых клиентов
	ClientCacheSize int
	// Время простоя, после которого клиент освобождается
	ClientIdleTTL time.Duration
	// Интервал keepalive-комментариев SSE
	SSEKeepalive time.Duration
	// Максимальная длина сообщения в символах
	MaxMessageLength int

	// --- Мониторинг ---

	// Группа сервиса для topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// ST_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("ST_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("ST_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("ST_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// ST_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("ST_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("ST_LOG_LEVEL: %w", err)
	}

	// ST_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("ST_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("ST_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ChatbotName = getEnvDefault("ST_CHATBOT_NAME", "SmartTalk")

	cfg.SecureCookie, err = getEnvBool("ST_SECURE_COOKIE", false)
	if err != nil {
		return nil, fmt.Errorf("ST_SECURE_COOKIE: %w", err)
	}

	// ST_SESSION_SECRET — ключ AES-256 для cookie (base64 или произвольная строка)
	cfg.SessionSecret = os.Getenv("ST_SESSION_SECRET")

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("ST_DB_HOST")
	if err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("ST_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("ST_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("ST_DB_NAME")
	if err != nil {
		return nil, err
	}

	cfg.DBUser, err = getEnvRequired("ST_DB_USER")
	if err != nil {
		return nil, err
	}

	cfg.DBPassword, err = getEnvRequired("ST_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("ST_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("ST_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Gemini ---

	// ST_GEMINI_API_KEY — обязательный
	cfg.GeminiAPIKey, err = getEnvRequired("ST_GEMINI_API_KEY")
	if err != nil {
		return nil, err
	}

	cfg.GeminiBaseURL = strings.TrimRight(
		getEnvDefault("ST_GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"), "/")
	if u, perr := url.Parse(cfg.GeminiBaseURL); perr != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ST_GEMINI_BASE_URL: некорректный URL %q", cfg.GeminiBaseURL)
	}

	cfg.GeminiModel = getEnvDefault("ST_GEMINI_MODEL", "gemini-pro")

	cfg.GeminiTimeout, err = getEnvDuration("ST_GEMINI_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ST_GEMINI_TIMEOUT: %w", err)
	}

	// --- Аутентификация ---

	cfg.AuthIssuer = getEnvDefault("ST_AUTH_ISSUER", "smarttalk")

	cfg.AuthTokenTTL, err = getEnvDuration("ST_AUTH_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("ST_AUTH_TOKEN_TTL: %w", err)
	}
	if cfg.AuthTokenTTL < time.Minute {
		return nil, fmt.Errorf("ST_AUTH_TOKEN_TTL: значение %s меньше минимального 1m", cfg.AuthTokenTTL)
	}

	cfg.AuthSigningKeyPath = getEnvDefault("ST_AUTH_SIGNING_KEY_PATH", "")

	// ST_BCRYPT_COST — стоимость bcrypt (4-31, по умолчанию 10)
	cfg.BcryptCost, err = getEnvInt("ST_BCRYPT_COST", 10)
	if err != nil {
		return nil, fmt.Errorf("ST_BCRYPT_COST: %w", err)
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, fmt.Errorf("ST_BCRYPT_COST: значение %d вне допустимого диапазона 4-31", cfg.BcryptCost)
	}

	cfg.MinPasswordLength, err = getEnvInt("ST_MIN_PASSWORD_LENGTH", 6)
	if err != nil {
		return nil, fmt.Errorf("ST_MIN_PASSWORD_LENGTH: %w", err)
	}
	if cfg.MinPasswordLength < 1 {
		return nil, fmt.Errorf("ST_MIN_PASSWORD_LENGTH: значение %d должно быть положительным", cfg.MinPasswordLength)
	}

	cfg.BootstrapAdmins = parseCSV(getEnvDefault("ST_BOOTSTRAP_ADMINS", ""))

	// --- Клиентские сессии ---

	cfg.AuthzLookupTimeout, err = getEnvDuration("ST_AUTHZ_LOOKUP_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ST_AUTHZ_LOOKUP_TIMEOUT: %w", err)
	}

	cfg.ClientCacheSize, err = getEnvInt("ST_CLIENT_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("ST_CLIENT_CACHE_SIZE: %w", err)
	}
	if cfg.ClientCacheSize < 1 {
		return nil, fmt.Errorf("ST_CLIENT_CACHE_SIZE: значение %d должно быть положительным", cfg.ClientCacheSize)
	}

	cfg.ClientIdleTTL, err = getEnvDuration("ST_CLIENT_IDLE_TTL", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("ST_CLIENT_IDLE_TTL: %w", err)
	}

	cfg.SSEKeepalive, err = getEnvDuration("ST_SSE_KEEPALIVE", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ST_SSE_KEEPALIVE: %w", err)
	}

	cfg.MaxMessageLength, err = getEnvInt("ST_MAX_MESSAGE_LENGTH", 8000)
	if err != nil {
		return nil, fmt.Errorf("ST_MAX_MESSAGE_LENGTH: %w", err)
	}
	if cfg.MaxMessageLength < 1 {
		return nil, fmt.Errorf("ST_MAX_MESSAGE_LENGTH: значение %d должно быть положительным", cfg.MaxMessageLength)
	}

	// --- Мониторинг ---

	cfg.DephealthGroup = getEnvDefault("ST_DEPHEALTH_GROUP", "smarttalk")

	cfg.DephealthCheckInterval, err = getEnvDuration("ST_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ST_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("ST_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ST_SHUTDOWN_TIMEOUT: %w", err)
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

// DatabaseURL возвращает URL PostgreSQL без пароля (для topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
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

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
