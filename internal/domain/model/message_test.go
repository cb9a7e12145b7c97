package model

import (
	"testing"
	"time"
)

func TestParseSender(t *testing.T) {
	tests := []struct {
		input   string
		want    Sender
		wantErr bool
	}{
		{"user", SenderUser, false},
		{"assistant", SenderAssistant, false},
		{"ai", SenderAssistant, false},
		{"bot", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSender(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSender(%q) ошибка = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSender(%q) = %q, хотели %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewMessage(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("MSK", 3*3600))
	m := NewMessage("u1", "Hi", SenderUser, now)
	if m.ID != "" {
		t.Errorf("ID = %q, ожидается пустой (назначает хранилище)", m.ID)
	}
	if m.CreatedAt == nil || !m.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, ожидается %v", m.CreatedAt, now)
	}
	if m.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt в зоне %v, ожидается UTC", m.CreatedAt.Location())
	}
}

func TestIdentity_ShortID(t *testing.T) {
	id := Identity{ID: "0123456789abcdef"}
	if got := id.ShortID(); got != "0123456789" {
		t.Errorf("ShortID() = %q", got)
	}
	short := Identity{ID: "abc"}
	if got := short.ShortID(); got != "abc" {
		t.Errorf("ShortID() = %q", got)
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	if s.Expired(now) {
		t.Error("сессия не должна быть истёкшей")
	}
	if !s.Expired(now.Add(time.Minute)) {
		t.Error("сессия должна быть истёкшей в момент ExpiresAt")
	}
}
