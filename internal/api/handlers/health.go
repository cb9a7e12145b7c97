// health.go — обработчики health endpoints SmartTalk.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (PostgreSQL доступен; Gemini API влияет только на degraded)
// /metrics — Prometheus метрики
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/smarttalk/internal/config"
)

// Имя сервиса в ответах health endpoints.
const serviceName = "smarttalk"

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	pgChecker     ReadinessChecker
	geminiChecker ReadinessChecker
	promHandler   http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// pgChecker — проверка PostgreSQL (nil → "fail"),
// geminiChecker — проверка Gemini API (nil → проверка пропускается).
func NewHealthHandler(pgChecker, geminiChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		pgChecker:     pgChecker,
		geminiChecker: geminiChecker,
		promHandler:   promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		PostgreSQL healthCheckResult  `json:"postgresql"`
		Gemini     *healthCheckResult `json:"gemini,omitempty"`
	} `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness probe.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}

	if h.pgChecker != nil {
		pgStatus, pgMsg := h.pgChecker.CheckReady()
		resp.Checks.PostgreSQL = healthCheckResult{Status: pgStatus, Message: pgMsg}
	} else {
		resp.Checks.PostgreSQL = healthCheckResult{Status: "fail", Message: "не инициализирован"}
	}
	statuses := []string{resp.Checks.PostgreSQL.Status}

	if h.geminiChecker != nil {
		gStatus, gMsg := h.geminiChecker.CheckReady()
		resp.Checks.Gemini = &healthCheckResult{Status: gStatus, Message: gMsg}
		statuses = append(statuses, gStatus)
	}

	resp.Status = overallStatus(statuses...)

	status := http.StatusOK
	if resp.Status == "fail" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == "fail" {
			return "fail"
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}

// DependencyChecker — ReadinessChecker некритичной зависимости по данным
// topologymetrics. Недоступность даёт "degraded", а не "fail".
type DependencyChecker struct {
	health func() map[string]bool
	prefix string
}

// NewDependencyChecker создаёт проверку по результатам dephealth.
// health — DephealthService.Health, prefix — имя зависимости.
func NewDependencyChecker(health func() map[string]bool, prefix string) *DependencyChecker {
	return &DependencyChecker{health: health, prefix: prefix}
}

// CheckReady возвращает статус зависимости.
func (c *DependencyChecker) CheckReady() (string, string) {
	healthy, found := findHealthByPrefix(c.health(), c.prefix)
	switch {
	case !found:
		return "degraded", "нет данных проверки"
	case !healthy:
		return "degraded", "зависимость недоступна"
	default:
		return "ok", "доступна"
	}
}

// findHealthByPrefix ищет статус зависимости по префиксу имени.
// Health() из topologymetrics SDK возвращает ключи формата "dependency:host:port".
func findHealthByPrefix(health map[string]bool, prefix string) (bool, bool) {
	for key, ok := range health {
		if key == prefix || strings.HasPrefix(key, prefix+":") {
			return ok, true
		}
	}
	return false, false
}
