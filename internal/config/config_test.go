package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"ST_DB_HOST":        "localhost",
		"ST_DB_NAME":        "smarttalk",
		"ST_DB_USER":        "smarttalk",
		"ST_DB_PASSWORD":    "secret",
		"ST_GEMINI_API_KEY": "test-key",
	}
}

// resetEnvs очищает обязательные переменные, оставшиеся от других тестов.
func resetEnvs() {
	for k := range minimalEnvs() {
		os.Unsetenv(k)
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	// Проверяем значения по умолчанию
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, ожидается 8080", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.ChatbotName != "SmartTalk" {
		t.Errorf("ChatbotName = %q, ожидается SmartTalk", cfg.ChatbotName)
	}
	if cfg.SecureCookie {
		t.Error("SecureCookie = true, ожидается false")
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.DBSSLMode != "disable" {
		t.Errorf("DBSSLMode = %q, ожидается disable", cfg.DBSSLMode)
	}
	if cfg.GeminiBaseURL != "https://generativelanguage.googleapis.com" {
		t.Errorf("GeminiBaseURL = %q", cfg.GeminiBaseURL)
	}
	if cfg.GeminiModel != "gemini-pro" {
		t.Errorf("GeminiModel = %q, ожидается gemini-pro", cfg.GeminiModel)
	}
	if cfg.GeminiTimeout != 30*time.Second {
		t.Errorf("GeminiTimeout = %v, ожидается 30s", cfg.GeminiTimeout)
	}
	if cfg.AuthIssuer != "smarttalk" {
		t.Errorf("AuthIssuer = %q, ожидается smarttalk", cfg.AuthIssuer)
	}
	if cfg.AuthTokenTTL != 24*time.Hour {
		t.Errorf("AuthTokenTTL = %v, ожидается 24h", cfg.AuthTokenTTL)
	}
	if cfg.AuthSigningKeyPath != "" {
		t.Errorf("AuthSigningKeyPath = %q, ожидается пустая строка", cfg.AuthSigningKeyPath)
	}
	if cfg.BcryptCost != 10 {
		t.Errorf("BcryptCost = %d, ожидается 10", cfg.BcryptCost)
	}
	if cfg.MinPasswordLength != 6 {
		t.Errorf("MinPasswordLength = %d, ожидается 6", cfg.MinPasswordLength)
	}
	if cfg.BootstrapAdmins != nil {
		t.Errorf("BootstrapAdmins = %v, ожидается nil", cfg.BootstrapAdmins)
	}
	if cfg.AuthzLookupTimeout != 3*time.Second {
		t.Errorf("AuthzLookupTimeout = %v, ожидается 3s", cfg.AuthzLookupTimeout)
	}
	if cfg.ClientCacheSize != 1000 {
		t.Errorf("ClientCacheSize = %d, ожидается 1000", cfg.ClientCacheSize)
	}
	if cfg.ClientIdleTTL != 30*time.Minute {
		t.Errorf("ClientIdleTTL = %v, ожидается 30m", cfg.ClientIdleTTL)
	}
	if cfg.SSEKeepalive != 15*time.Second {
		t.Errorf("SSEKeepalive = %v, ожидается 15s", cfg.SSEKeepalive)
	}
	if cfg.MaxMessageLength != 8000 {
		t.Errorf("MaxMessageLength = %d, ожидается 8000", cfg.MaxMessageLength)
	}
	if cfg.DephealthGroup != "smarttalk" {
		t.Errorf("DephealthGroup = %q, ожидается smarttalk", cfg.DephealthGroup)
	}
	if cfg.DephealthCheckInterval != 15*time.Second {
		t.Errorf("DephealthCheckInterval = %v, ожидается 15s", cfg.DephealthCheckInterval)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	envs := minimalEnvs()
	envs["ST_PORT"] = "9090"
	envs["ST_LOG_LEVEL"] = "debug"
	envs["ST_LOG_FORMAT"] = "text"
	envs["ST_CHATBOT_NAME"] = "HelpBot"
	envs["ST_SECURE_COOKIE"] = "true"
	envs["ST_DB_PORT"] = "5433"
	envs["ST_DB_SSL_MODE"] = "require"
	envs["ST_GEMINI_BASE_URL"] = "http://gemini.local:9000/"
	envs["ST_GEMINI_MODEL"] = "gemini-1.5-flash"
	envs["ST_AUTH_TOKEN_TTL"] = "2h"
	envs["ST_BCRYPT_COST"] = "4"
	envs["ST_BOOTSTRAP_ADMINS"] = "root@example.com, ops@example.com"
	envs["ST_AUTHZ_LOOKUP_TIMEOUT"] = "500ms"
	envs["ST_CLIENT_IDLE_TTL"] = "10m"
	envs["ST_MAX_MESSAGE_LENGTH"] = "100"
	envs["ST_SHUTDOWN_TIMEOUT"] = "10s"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, ожидается 9090", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, ожидается text", cfg.LogFormat)
	}
	if cfg.ChatbotName != "HelpBot" {
		t.Errorf("ChatbotName = %q, ожидается HelpBot", cfg.ChatbotName)
	}
	if !cfg.SecureCookie {
		t.Error("SecureCookie = false, ожидается true")
	}
	if cfg.DBPort != 5433 {
		t.Errorf("DBPort = %d, ожидается 5433", cfg.DBPort)
	}
	if cfg.DBSSLMode != "require" {
		t.Errorf("DBSSLMode = %q, ожидается require", cfg.DBSSLMode)
	}
	if cfg.GeminiBaseURL != "http://gemini.local:9000" {
		t.Errorf("GeminiBaseURL = %q, ожидается без trailing slash", cfg.GeminiBaseURL)
	}
	if cfg.GeminiModel != "gemini-1.5-flash" {
		t.Errorf("GeminiModel = %q", cfg.GeminiModel)
	}
	if cfg.AuthTokenTTL != 2*time.Hour {
		t.Errorf("AuthTokenTTL = %v, ожидается 2h", cfg.AuthTokenTTL)
	}
	if cfg.BcryptCost != 4 {
		t.Errorf("BcryptCost = %d, ожидается 4", cfg.BcryptCost)
	}
	if len(cfg.BootstrapAdmins) != 2 || cfg.BootstrapAdmins[1] != "ops@example.com" {
		t.Errorf("BootstrapAdmins = %v", cfg.BootstrapAdmins)
	}
	if cfg.AuthzLookupTimeout != 500*time.Millisecond {
		t.Errorf("AuthzLookupTimeout = %v, ожидается 500ms", cfg.AuthzLookupTimeout)
	}
	if cfg.ClientIdleTTL != 10*time.Minute {
		t.Errorf("ClientIdleTTL = %v, ожидается 10m", cfg.ClientIdleTTL)
	}
	if cfg.MaxMessageLength != 100 {
		t.Errorf("MaxMessageLength = %d, ожидается 100", cfg.MaxMessageLength)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	requiredVars := []string{
		"ST_DB_HOST", "ST_DB_NAME", "ST_DB_USER", "ST_DB_PASSWORD", "ST_GEMINI_API_KEY",
	}

	for _, missing := range requiredVars {
		t.Run(missing, func(t *testing.T) {
			envs := minimalEnvs()
			delete(envs, missing)
			resetEnvs()
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Errorf("Load() не вернул ошибку при отсутствии %s", missing)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"порт не число", "ST_PORT", "abc"},
		{"порт вне диапазона", "ST_PORT", "70000"},
		{"уровень логирования", "ST_LOG_LEVEL", "verbose"},
		{"формат логов", "ST_LOG_FORMAT", "xml"},
		{"режим SSL", "ST_DB_SSL_MODE", "prefer"},
		{"secure cookie", "ST_SECURE_COOKIE", "maybe"},
		{"URL Gemini", "ST_GEMINI_BASE_URL", "not a url"},
		{"таймаут Gemini", "ST_GEMINI_TIMEOUT", "abc"},
		{"короткий TTL токена", "ST_AUTH_TOKEN_TTL", "30s"},
		{"bcrypt слишком низкий", "ST_BCRYPT_COST", "3"},
		{"bcrypt слишком высокий", "ST_BCRYPT_COST", "32"},
		{"длина пароля", "ST_MIN_PASSWORD_LENGTH", "0"},
		{"размер кэша клиентов", "ST_CLIENT_CACHE_SIZE", "0"},
		{"длина сообщения", "ST_MAX_MESSAGE_LENGTH", "-1"},
		{"интервал dephealth", "ST_DEPHEALTH_CHECK_INTERVAL", "often"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs[tt.key] = tt.value
			resetEnvs()
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Errorf("Load() не вернул ошибку при %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost:     "db.example.com",
		DBPort:     5432,
		DBName:     "smarttalk",
		DBUser:     "user",
		DBPassword: "pass",
		DBSSLMode:  "disable",
	}
	expected := "host=db.example.com port=5432 dbname=smarttalk user=user password=pass sslmode=disable"
	if dsn := cfg.DatabaseDSN(); dsn != expected {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", dsn, expected)
	}
	if u := cfg.DatabaseURL(); u != "postgres://db.example.com:5432/smarttalk" {
		t.Errorf("DatabaseURL() = %q", u)
	}
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{"json", "json"},
		{"text", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel:  slog.LevelInfo,
				LogFormat: tt.format,
			}
			logger := SetupLogger(cfg)
			if logger == nil {
				t.Error("SetupLogger() вернул nil")
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"", nil},
		{"a@example.com", []string{"a@example.com"}},
		{"a@example.com, b@example.com", []string{"a@example.com", "b@example.com"}},
		{"a@example.com,,b@example.com,", []string{"a@example.com", "b@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseCSV(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("parseCSV(%q) = %v (len %d), ожидается %v (len %d)",
					tt.input, result, len(result), tt.expected, len(tt.expected))
			}
			for i, v := range result {
				if v != tt.expected[i] {
					t.Errorf("parseCSV(%q)[%d] = %q, ожидается %q", tt.input, i, v, tt.expected[i])
				}
			}
		})
	}
}
