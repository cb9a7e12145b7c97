// Пакет gemini — HTTP-клиент к generateContent API.
// Единственный запрос на сообщение, без повторов: любой сбой
// (сеть, статус, форма ответа) возвращается как *Error.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики generateContent.
var (
	generationRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "st_generation_requests_total",
		Help: "Количество запросов generateContent (по результату).",
	}, []string{"result"})

	generationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "st_generation_duration_seconds",
		Help:    "Длительность запроса generateContent.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})
)

// maxErrorBody — сколько байт тела ошибки сохраняется для логов.
const maxErrorBody = 2048

// Kind — категория сбоя генерации.
type Kind string

const (
	KindNetwork Kind = "network"
	KindStatus  Kind = "status"
	KindShape   Kind = "shape"
)

// Error — сбой запроса generateContent. Пользователю не показывается.
type Error struct {
	Kind Kind
	// StatusCode — HTTP-статус (для KindStatus)
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gemini: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gemini: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client — клиент generateContent.
type Client struct {
	baseURL string
	model   string
	apiKey  string

	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент.
// baseURL — базовый URL API (например, https://generativelanguage.googleapis.com).
// httpClient может быть nil: тогда используется клиент с timeout.
func New(baseURL, model, apiKey string, timeout time.Duration, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "gemini_client")),
	}
}

// endpoint возвращает URL generateContent для модели.
func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
}

// Generate отправляет prompt единственным сообщением и возвращает
// текст candidates[0].content.parts[0].
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := c.generate(ctx, prompt)
	generationDuration.Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		result = "error"
		var gerr *Error
		if errors.As(err, &gerr) {
			result = string(gerr.Kind)
		}
		c.logger.Warn("Запрос generateContent завершился ошибкой",
			slog.String("model", c.model),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
	}
	generationRequestsTotal.WithLabelValues(result).Inc()
	return text, err
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: &prompt}}}},
	})
	if err != nil {
		return "", &Error{Kind: KindShape, Message: "сериализация запроса", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindNetwork, Message: "создание запроса", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL из конфигурации
	if err != nil {
		return "", &Error{Kind: KindNetwork, Message: "запрос не выполнен", Err: redact(err, c.apiKey)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &Error{Kind: KindStatus, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &Error{Kind: KindShape, Message: "ответ не является JSON", Err: err}
	}

	if len(decoded.Candidates) == 0 {
		return "", &Error{Kind: KindShape, Message: "нет candidates"}
	}
	first := decoded.Candidates[0].Content
	if first == nil || len(first.Parts) == 0 {
		return "", &Error{Kind: KindShape, Message: "нет candidates[0].content.parts"}
	}
	text := first.Parts[0].Text
	if text == nil {
		return "", &Error{Kind: KindShape, Message: "нет candidates[0].content.parts[0].text"}
	}
	return *text, nil
}

// errorMessage извлекает сообщение из тела ошибки Google API.
func errorMessage(raw []byte) string {
	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	if len(raw) == 0 {
		return "пустое тело ответа"
	}
	return strconv.Quote(string(raw))
}

// redact убирает API-ключ из текста сетевой ошибки (он входит в URL).
func redact(err error, apiKey string) error {
	if apiKey == "" {
		return err
	}
	msg := err.Error()
	redacted := strings.ReplaceAll(msg, url.QueryEscape(apiKey), "REDACTED")
	redacted = strings.ReplaceAll(redacted, apiKey, "REDACTED")
	if redacted == msg {
		return err
	}
	return errors.New(redacted)
}
