// session_watcher.go — наблюдатель сессии одного браузерного клиента.
//
// На каждое уведомление о смене сессии SessionWatcher определяет identity
// и проверяет запись авторизации (роль admin). Каждое уведомление
// увеличивает номер поколения; результат проверки применяется, только
// если за время проверки не пришло более новое уведомление.
// Сбой или таймаут проверки означают isAdmin=false.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/smarttalk/internal/domain/model"
	"github.com/bigkaa/smarttalk/internal/feed"
)

// SessionState — разрешённое состояние сессии клиента.
type SessionState struct {
	// Seq — номер уведомления, по которому получено состояние
	Seq uint64
	// Session — nil, если пользователь не вошёл
	Session *model.Session
	// IsAdmin — наличие записи авторизации
	IsAdmin bool
}

// HasSession сообщает, вошёл ли пользователь.
func (s SessionState) HasSession() bool {
	return s.Session != nil
}

// Identity возвращает identity или пустую строку без сессии.
func (s SessionState) Identity() string {
	if s.Session == nil {
		return ""
	}
	return s.Session.IdentityID
}

// SessionWatcher — наблюдатель сессии клиента.
type SessionWatcher struct {
	stream        *feed.Stream[model.SessionChange]
	authz         AuthorizationLookup
	lookupTimeout time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	gen     uint64
	state   SessionState
	ready   bool
	changed chan struct{}
	updates *feed.Broadcast[SessionState]

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	lookups sync.WaitGroup
	once    sync.Once
}

// NewSessionWatcher подписывается на смену сессий клиента clientID.
// Обработка начинается после Start.
func NewSessionWatcher(
	source SessionSource,
	clientID string,
	authz AuthorizationLookup,
	lookupTimeout time.Duration,
	logger *slog.Logger,
) *SessionWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionWatcher{
		stream:        source.Subscribe(clientID),
		authz:         authz,
		lookupTimeout: lookupTimeout,
		logger:        logger.With(slog.String("component", "session_watcher"), slog.String("client", clientID)),
		changed:       make(chan struct{}),
		updates:       feed.NewBroadcast[SessionState](),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
}

// Start запускает обработку уведомлений.
func (w *SessionWatcher) Start() {
	go func() {
		defer close(w.done)
		for change := range w.stream.C() {
			w.handle(change)
		}
	}()
}

// Close отписывается от уведомлений и ждёт завершения проверок.
// Повторный вызов безопасен.
func (w *SessionWatcher) Close() {
	w.once.Do(func() {
		w.cancel()
		w.stream.Close()
		<-w.done
		w.lookups.Wait()
		w.updates.Close()
	})
}

// Current возвращает последнее разрешённое состояние.
func (w *SessionWatcher) Current() SessionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Await ждёт, пока будет разрешено уведомление с номером не меньше seq.
func (w *SessionWatcher) Await(ctx context.Context, seq uint64) (SessionState, error) {
	for {
		w.mu.Lock()
		if w.ready && w.state.Seq >= seq {
			st := w.state
			w.mu.Unlock()
			return st, nil
		}
		changed := w.changed
		w.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return w.Current(), ctx.Err()
		case <-w.ctx.Done():
			return w.Current(), context.Canceled
		}
	}
}

// Updates подписывает на разрешённые состояния; текущее доставляется сразу.
func (w *SessionWatcher) Updates() *feed.Stream[SessionState] {
	return w.updates.Subscribe()
}

func (w *SessionWatcher) handle(change model.SessionChange) {
	w.mu.Lock()
	w.gen++
	gen := w.gen
	if change.Session == nil {
		w.resolveLocked(SessionState{Seq: change.Seq})
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.lookups.Add(1)
	go func() {
		defer w.lookups.Done()
		isAdmin := w.lookup(change.Session.IdentityID)

		w.mu.Lock()
		defer w.mu.Unlock()
		if gen != w.gen || w.ctx.Err() != nil {
			w.logger.Debug("Устаревший результат проверки авторизации отброшен",
				slog.Uint64("seq", change.Seq),
			)
			return
		}
		w.resolveLocked(SessionState{Seq: change.Seq, Session: change.Session, IsAdmin: isAdmin})
	}()
}

// lookup проверяет запись авторизации; при сбое возвращает false.
func (w *SessionWatcher) lookup(identity string) bool {
	ctx, cancel := context.WithTimeout(w.ctx, w.lookupTimeout)
	defer cancel()

	exists, err := w.authz.Exists(ctx, identity)
	if err != nil {
		if w.ctx.Err() == nil {
			lookupErr := &AuthorizationLookupError{Identity: identity, Err: err}
			w.logger.Warn("Роль admin не подтверждена", slog.String("error", lookupErr.Error()))
		}
		return false
	}
	return exists
}

// resolveLocked публикует состояние. Вызывается под w.mu.
func (w *SessionWatcher) resolveLocked(st SessionState) {
	w.state = st
	w.ready = true
	close(w.changed)
	w.changed = make(chan struct{})
	w.updates.Set(st)
}
