package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/smarttalk/internal/domain/model"
	"github.com/bigkaa/smarttalk/internal/feed"
)

// testLogger создаёт логгер для тестов (только ошибки).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// waitFor ждёт выполнения условия.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("не дождались: %s", what)
}

// --- сессии ---

type fakeSessions struct {
	mu  sync.Mutex
	seq map[string]uint64
	cur map[string]*model.Session
	hub *feed.Hub[string, model.SessionChange]
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		seq: make(map[string]uint64),
		cur: make(map[string]*model.Session),
		hub: feed.NewHub[string, model.SessionChange](),
	}
}

func (f *fakeSessions) Subscribe(clientID string) *feed.Stream[model.SessionChange] {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.hub.Subscribe(clientID)
	s.Publish(model.SessionChange{Seq: f.seq[clientID], Session: f.cur[clientID]})
	return s
}

// set публикует смену сессии; identity "" — выход.
func (f *fakeSessions) set(clientID, identity string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var session *model.Session
	if identity != "" {
		session = &model.Session{IdentityID: identity, Email: identity + "@example.com"}
	}
	f.seq[clientID]++
	f.cur[clientID] = session
	f.hub.Publish(clientID, model.SessionChange{Seq: f.seq[clientID], Session: session})
	return f.seq[clientID]
}

// --- авторизация ---

type fakeAuthz struct {
	mu     sync.Mutex
	admins map[string]bool
	delay  map[string]time.Duration
	fail   error
}

func newFakeAuthz(admins ...string) *fakeAuthz {
	a := &fakeAuthz{admins: make(map[string]bool), delay: make(map[string]time.Duration)}
	for _, id := range admins {
		a.admins[id] = true
	}
	return a
}

func (a *fakeAuthz) Exists(ctx context.Context, identityID string) (bool, error) {
	a.mu.Lock()
	delay, fail, isAdmin := a.delay[identityID], a.fail, a.admins[identityID]
	a.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	if fail != nil {
		return false, fail
	}
	return isAdmin, nil
}

// --- хранилище сообщений с живым потоком ---

type fakeStore struct {
	mu       sync.Mutex
	seq      int
	messages map[string][]model.Message
	hub      *feed.Hub[string, []model.Message]
	failFor  map[model.Sender]error
	panicFor map[model.Sender]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages: make(map[string][]model.Message),
		hub:      feed.NewHub[string, []model.Message](),
		failFor:  make(map[model.Sender]error),
		panicFor: make(map[model.Sender]bool),
	}
}

func (s *fakeStore) Append(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicFor[m.Sender] {
		panic("store: запись невозможна")
	}
	if err := s.failFor[m.Sender]; err != nil {
		return err
	}
	s.seq++
	m.ID = fmt.Sprintf("m%04d", s.seq)
	s.messages[m.IdentityID] = append(s.messages[m.IdentityID], *m)
	s.hub.Publish(m.IdentityID, s.snapshotLocked(m.IdentityID))
	return nil
}

func (s *fakeStore) Subscribe(identityID string) *feed.Stream[[]model.Message] {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.hub.Subscribe(identityID)
	st.Publish(s.snapshotLocked(identityID))
	return st
}

// emit рассылает произвольный снимок подписчикам identity.
func (s *fakeStore) emit(identityID string, snapshot []model.Message) {
	s.hub.Publish(identityID, snapshot)
}

func (s *fakeStore) list(identityID string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(identityID)
}

func (s *fakeStore) snapshotLocked(identityID string) []model.Message {
	// Снимок в обратном порядке: порядок потока не гарантирован.
	src := s.messages[identityID]
	out := make([]model.Message, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out
}

// --- генератор ---

type fakeGenerator struct {
	mu      sync.Mutex
	reply   func(prompt string) (string, error)
	prompts []string
	calls   int
	release chan struct{}
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.prompts = append(g.prompts, prompt)
	reply, release := g.reply, g.release
	g.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if reply == nil {
		return "Hello!", nil
	}
	return reply(prompt)
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

var errUpstream = errors.New("upstream unavailable")

// --- список учётных записей ---

type fakeLister struct {
	identities []*model.Identity
	err        error
}

func (l *fakeLister) List(context.Context) ([]*model.Identity, error) {
	return l.identities, l.err
}
