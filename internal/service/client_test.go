package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/smarttalk/internal/domain/view"
)

type clientEnv struct {
	sessions *fakeSessions
	authz    *fakeAuthz
	store    *fakeStore
	gen      *fakeGenerator
}

func newClientEnv() *clientEnv {
	return &clientEnv{
		sessions: newFakeSessions(),
		authz:    newFakeAuthz("admin"),
		store:    newFakeStore(),
		gen:      &fakeGenerator{},
	}
}

func (e *clientEnv) deps() Deps {
	return Deps{
		Sessions:      e.sessions,
		Authz:         e.authz,
		Messages:      e.store,
		Store:         e.store,
		Generator:     e.gen,
		Identities:    &fakeLister{identities: testIdentities()},
		LookupTimeout: time.Second,
		MaxMessageLen: 100,
	}
}

func awaitSession(t *testing.T, c *Client, seq uint64) SessionState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := c.AwaitSession(ctx, seq)
	if err != nil {
		t.Fatalf("AwaitSession: %v", err)
	}
	return st
}

func TestClient_Route(t *testing.T) {
	env := newClientEnv()
	c := NewClient("c1", env.deps(), testLogger())
	defer c.Close()

	awaitSession(t, c, 0)
	if got := c.Route(view.PageAdmin); got != view.Unauthenticated {
		t.Errorf("без сессии Route = %v", got)
	}

	awaitSession(t, c, env.sessions.set("c1", "u1"))
	if got := c.Route(view.PageAdmin); got != view.Chat {
		t.Errorf("пользователь Route(admin) = %v", got)
	}

	awaitSession(t, c, env.sessions.set("c1", "admin"))
	if got := c.Route(view.PageAdmin); got != view.Admin {
		t.Errorf("администратор Route(admin) = %v", got)
	}
	if got := c.Route(view.PageChat); got != view.Chat {
		t.Errorf("администратор Route(chat) = %v", got)
	}
}

func TestClient_SendFollowsSession(t *testing.T) {
	env := newClientEnv()
	c := NewClient("c1", env.deps(), testLogger())
	defer c.Close()

	if _, _, err := c.Send(context.Background(), "Hi"); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("без сессии ожидалась ErrNoIdentity, получено %v", err)
	}

	awaitSession(t, c, env.sessions.set("c1", "u1"))
	if _, _, err := c.Send(context.Background(), "Hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "переписка u1", func() bool {
		snap := c.Conversation().Snapshot()
		return snap.Identity == "u1" && len(snap.Messages) == 2
	})

	// Выход освобождает подписку на переписку.
	awaitSession(t, c, env.sessions.set("c1", ""))
	waitFor(t, "освобождение подписки", func() bool { return env.store.hub.Count("u1") == 0 })
}

func TestClient_AdminSelectionClearedOnDemotion(t *testing.T) {
	env := newClientEnv()
	c := NewClient("c1", env.deps(), testLogger())
	defer c.Close()

	awaitSession(t, c, env.sessions.set("c1", "admin"))
	c.Admin().SelectIdentity("a")

	awaitSession(t, c, env.sessions.set("c1", "u1"))
	waitFor(t, "снятие выбора", func() bool { return c.Admin().Selected() == "" })
}

func TestClient_Theme(t *testing.T) {
	env := newClientEnv()
	c := NewClient("c1", env.deps(), testLogger())
	defer c.Close()

	if c.Theme() != ThemeLight {
		t.Errorf("тема по умолчанию = %s", c.Theme())
	}
	c.SetTheme(ParseTheme("dark"))
	if c.Theme() != ThemeDark {
		t.Errorf("тема = %s", c.Theme())
	}
	if ParseTheme("neon") != ThemeLight {
		t.Error("неизвестная тема должна быть светлой")
	}
}

func TestClientRegistry(t *testing.T) {
	env := newClientEnv()
	forgotten := make(chan string, 4)
	r := NewClientRegistry(2, time.Minute, func(id string) *Client {
		return NewClient(id, env.deps(), testLogger())
	}, func(id string) { forgotten <- id }, testLogger())

	c1 := r.Get("c1")
	if r.Get("c1") != c1 {
		t.Fatal("повторный Get вернул другого клиента")
	}
	r.Get("c2")
	r.Get("c3")

	if r.Len() != 2 {
		t.Errorf("Len = %d", r.Len())
	}
	if _, ok := r.Peek("c1"); ok {
		t.Error("c1 должен быть вытеснен")
	}
	select {
	case id := <-forgotten:
		if id != "c1" {
			t.Errorf("вытеснен %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onForget не вызван")
	}
	waitFor(t, "отписка c1", func() bool { return env.sessions.hub.Count("c1") == 0 })

	r.Remove("c2")
	r.Close()
	if r.Len() != 0 {
		t.Errorf("после Close Len = %d", r.Len())
	}
	waitFor(t, "отписка всех", func() bool {
		return env.sessions.hub.Count("c2") == 0 && env.sessions.hub.Count("c3") == 0
	})
}
