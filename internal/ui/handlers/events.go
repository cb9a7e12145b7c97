// events.go — SSE-потоки живых обновлений чата и панели администратора.
// Каждое событие — полный снимок состояния; поток открыт, пока клиент
// не отключится или экран не сменится.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/smarttalk/internal/api/dto"
	"github.com/bigkaa/smarttalk/internal/domain/view"
	"github.com/bigkaa/smarttalk/internal/service"
	uimiddleware "github.com/bigkaa/smarttalk/internal/ui/middleware"
)

// Имена SSE-событий.
const (
	eventSession   = "session"
	eventMessages  = "messages"
	eventComposing = "composing"
	eventAdmin     = "admin"
)

// sessionEvent — экран, выбранный маршрутизатором для текущей сессии.
type sessionEvent struct {
	View view.View `json:"view"`
	Path string    `json:"path"`
}

type messagesEvent struct {
	Messages []dto.Message `json:"messages"`
}

type composingEvent struct {
	Composing bool `json:"composing"`
}

// sseWriter пишет события в ответ и сбрасывает буфер после каждого.
type sseWriter struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	logger *slog.Logger
}

// startSSE настраивает заголовки SSE. Таймаут записи сервера снимается
// для этого соединения: поток живёт дольше WriteTimeout.
func (h *Handler) startSSE(w http.ResponseWriter) (*sseWriter, error) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// ResponseController находит http.Flusher через Unwrap() обёрток middleware.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return nil, err
	}
	return &sseWriter{w: w, rc: rc, logger: h.logger}, nil
}

// send отправляет событие. Ошибка означает, что клиент отключился.
func (s *sseWriter) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Ошибка сериализации SSE-события",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return s.rc.Flush()
}

// keepalive отправляет комментарий, чтобы прокси не закрыли соединение.
func (s *sseWriter) keepalive() error {
	if _, err := fmt.Fprint(s.w, ": keepalive\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

func routedEvent(st service.SessionState, page view.Page) sessionEvent {
	v := view.Route(st.HasSession(), st.IsAdmin, page)
	return sessionEvent{View: v, Path: v.Path()}
}

// HandleChatEvents обрабатывает GET /chat/events.
// События: session (смена экрана), messages (снимок разговора),
// composing (индикатор набора ответа).
func (h *Handler) HandleChatEvents(w http.ResponseWriter, r *http.Request) {
	h.serveEvents(w, r, view.PageChat, func(client *service.Client) (eventSource, func()) {
		conv := client.Conversation().Updates()
		composing := client.Dispatcher().Composing()
		return eventSource{
				messages:  conv.C(),
				composing: composing.C(),
			}, func() {
				conv.Close()
				composing.Close()
			}
	})
}

// HandleAdminEvents обрабатывает GET /admin/events?identity=...
// События: session и admin (снимок панели администратора).
func (h *Handler) HandleAdminEvents(w http.ResponseWriter, r *http.Request) {
	client := uimiddleware.ClientFromContext(r.Context())
	if client != nil {
		if q := r.URL.Query(); q.Has("identity") {
			client.Admin().SelectIdentity(q.Get("identity"))
		}
	}
	h.serveEvents(w, r, view.PageAdmin, func(client *service.Client) (eventSource, func()) {
		admin := client.Admin().Updates()
		return eventSource{admin: admin.C()}, admin.Close
	})
}

// eventSource — каналы снимков, транслируемых в SSE. nil-канал не читается.
type eventSource struct {
	messages  <-chan service.Conversation
	composing <-chan bool
	admin     <-chan service.AdminView
}

func (h *Handler) serveEvents(
	w http.ResponseWriter,
	r *http.Request,
	page view.Page,
	subscribe func(*service.Client) (eventSource, func()),
) {
	client := uimiddleware.ClientFromContext(r.Context())
	if client == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sse, err := h.startSSE(w)
	if err != nil {
		http.Error(w, "SSE не поддерживается", http.StatusInternalServerError)
		return
	}

	sessions := client.SessionUpdates()
	defer sessions.Close()

	current := routedEvent(uimiddleware.StateFromContext(r.Context()), page)
	if err := sse.send(eventSession, current); err != nil {
		return
	}
	// Экран уже не совпадает с запрошенным: клиент перейдёт по path.
	if current.View != view.View(page) {
		return
	}

	src, unsubscribe := subscribe(client)
	defer unsubscribe()

	ctx := r.Context()
	h.logger.Debug("SSE клиент подключён",
		slog.String("page", string(page)),
		slog.String("remote_addr", r.RemoteAddr),
	)

	ticker := time.NewTicker(h.sseKeepalive)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE клиент отключён", slog.String("page", string(page)))
			return
		case st, ok := <-sessions.C():
			if !ok {
				return
			}
			ev := routedEvent(st, page)
			if err := sse.send(eventSession, ev); err != nil {
				return
			}
			if ev.View != current.View {
				return
			}
		case conv, ok := <-src.messages:
			if !ok {
				return
			}
			err = sse.send(eventMessages, messagesEvent{Messages: dto.FromMessages(conv.Messages)})
		case composing, ok := <-src.composing:
			if !ok {
				return
			}
			err = sse.send(eventComposing, composingEvent{Composing: composing})
		case av, ok := <-src.admin:
			if !ok {
				return
			}
			err = sse.send(eventAdmin, dto.FromAdminView(av))
		case <-ticker.C:
			err = sse.keepalive()
		}
		if err != nil {
			return
		}
	}
}
