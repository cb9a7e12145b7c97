package pages

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	"github.com/bigkaa/smarttalk/internal/domain/model"
	"github.com/bigkaa/smarttalk/internal/service"
	"github.com/bigkaa/smarttalk/internal/ui/i18n"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	bundle, err := i18n.Load(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	if err != nil {
		t.Fatal(err)
	}
	return NewRenderer(bundle)
}

func render(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := newTestRenderer(t).Render(ctx, rec, http.StatusOK, c); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	return rec.Body.String()
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name    string
		lang    string
		data    LoginData
		want    []string
		notWant []string
	}{
		{
			name: "вход",
			lang: "en",
			data: LoginData{Layout: LayoutData{Lang: "en", ChatbotName: "SmartTalk", Active: PageLogin}},
			want: []string{`<html lang="en"`, "Login to SmartTalk", `action="/login"`, `data-view="login"`},
			// верхняя панель на экране входа не выводится
			notWant: []string{`class="topbar"`, `class="error"`},
		},
		{
			name: "регистрация с ошибкой",
			lang: "ru",
			data: LoginData{
				Layout: LayoutData{Lang: "ru", Theme: "dark", ChatbotName: "SmartTalk", Active: PageLogin},
				SignUp: true,
				Email:  `a"b@example.com`,
				Error:  "Email already in use",
			},
			want: []string{`class="dark"`, `action="/signup"`, "Email already in use", `value="a&#34;b@example.com"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := render(t, i18n.WithLang(context.Background(), tt.lang), Login(tt.data))
			for _, s := range tt.want {
				if !strings.Contains(body, s) {
					t.Errorf("нет %q в\n%s", s, body)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(body, s) {
					t.Errorf("лишнее %q в\n%s", s, body)
				}
			}
		})
	}
}

func TestChat(t *testing.T) {
	now := time.Now()
	data := ChatData{
		Layout: LayoutData{Lang: "en", ChatbotName: "SmartTalk", Active: PageChat, Email: "a@example.com"},
		Messages: []model.Message{
			{ID: "m1", Text: "<script>alert(1)</script>", Sender: model.SenderUser, CreatedAt: &now},
			{ID: "m2", Text: "Hello!", Sender: model.SenderAssistant, CreatedAt: &now},
		},
	}

	body := render(t, context.Background(), Chat(data))
	for _, s := range []string{
		`id="messages"`,
		`class="row row-user" data-id="m1"`,
		`class="row row-assistant" data-id="m2"`,
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		`<div id="typing" class="row row-assistant" hidden>`,
		`class="topbar"`,
	} {
		if !strings.Contains(body, s) {
			t.Errorf("нет %q", s)
		}
	}
	if strings.Contains(body, "<script>alert") {
		t.Error("текст сообщения не экранирован")
	}
	// ссылки на экраны видит только администратор
	if strings.Contains(body, `href="/admin"`) {
		t.Error("ссылка на панель администратора для обычного пользователя")
	}

	data.Composing = true
	data.Layout.IsAdmin = true
	body = render(t, context.Background(), Chat(data))
	if !strings.Contains(body, `<div id="typing" class="row row-assistant">`) {
		t.Error("индикатор печати скрыт при Composing")
	}
	if !strings.Contains(body, `class="btn btn-blue active" href="/chat"`) || !strings.Contains(body, `href="/admin"`) {
		t.Error("нет навигации администратора")
	}
}

func TestChat_Empty(t *testing.T) {
	body := render(t, i18n.WithLang(context.Background(), "ru"), Chat(ChatData{
		Layout: LayoutData{Lang: "ru", ChatbotName: "SmartTalk", Active: PageChat},
	}))
	if !strings.Contains(body, "Поздоровайтесь, чтобы начать разговор.") {
		t.Errorf("нет приглашения к разговору:\n%s", body)
	}
}

func TestAdmin(t *testing.T) {
	ts := time.Date(2026, 1, 2, 10, 30, 0, 0, time.Local)
	view := service.AdminView{
		Identities: []model.Identity{
			{ID: "0123456789abcdef", Email: "a@example.com"},
			{ID: "fedcba9876543210", Email: "b@example.com"},
		},
		Selected: "0123456789abcdef",
		Transcript: []model.Message{
			{ID: "m1", Text: "Hi", Sender: model.SenderUser, CreatedAt: &ts},
		},
		Stats: service.Stats{TotalIdentities: 2, MessageCount: 1},
	}

	body := render(t, context.Background(), Admin(AdminData{
		Layout: LayoutData{Lang: "en", ChatbotName: "SmartTalk", Active: PageAdmin, IsAdmin: true},
		View:   view,
	}))
	for _, s := range []string{
		`data-selected="0123456789abcdef"`,
		`<li class="selected">`,
		`href="/admin?identity=0123456789abcdef"`,
		">0123456789<",
		`id="stat-total" class="stat">2<`,
		`id="stat-messages" class="stat">1<`,
		`class="log log-user"`,
		"10:30",
		"Total Users",
	} {
		if !strings.Contains(body, s) {
			t.Errorf("нет %q", s)
		}
	}
}

func TestRenderer_Error(t *testing.T) {
	failing := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, _ = io.WriteString(w, "<p>половина")
		return errors.New("render failed")
	})

	rec := httptest.NewRecorder()
	if err := newTestRenderer(t).Render(context.Background(), rec, http.StatusTeapot, failing); err == nil {
		t.Fatal("ошибка рендеринга потеряна")
	}
	if rec.Body.Len() != 0 || rec.Code == http.StatusTeapot {
		t.Errorf("частичный ответ записан: код %d, тело %q", rec.Code, rec.Body.String())
	}
}
