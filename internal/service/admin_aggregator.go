// admin_aggregator.go — данные панели администратора.
//
// Список учётных записей загружается разово (ListIdentities) и не
// обновляется сам. Для выбранной учётной записи открывается подписка на
// её переписку; при смене выбора старая подписка закрывается раньше,
// чем открывается новая.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bigkaa/smarttalk/internal/domain/model"
	"github.com/bigkaa/smarttalk/internal/feed"
)

// Stats — счётчики панели администратора.
type Stats struct {
	// TotalIdentities — размер снимка списка учётных записей («Total users»)
	TotalIdentities int
	// MessageCount — число сообщений выбранной переписки
	MessageCount int
}

// AdminView — состояние панели администратора.
type AdminView struct {
	Identities []model.Identity
	// Selected — выбранная identity или пустая строка
	Selected   string
	Transcript []model.Message
	Stats      Stats
}

// AdminAggregator — агрегатор панели администратора одного клиента.
type AdminAggregator struct {
	lister IdentityLister
	conv   *ConversationSync
	logger *slog.Logger

	mu         sync.Mutex
	identities []model.Identity
	transcript []model.Message
	updates    *feed.Broadcast[AdminView]

	relay *feed.Stream[Conversation]
	done  chan struct{}
	once  sync.Once
}

// NewAdminAggregator создаёт агрегатор панели администратора.
func NewAdminAggregator(lister IdentityLister, messages MessageSubscriber, logger *slog.Logger) *AdminAggregator {
	a := &AdminAggregator{
		lister:  lister,
		conv:    NewConversationSync(messages, logger),
		logger:  logger.With(slog.String("component", "admin_aggregator")),
		updates: feed.NewBroadcast[AdminView](),
		done:    make(chan struct{}),
	}
	a.updates.Set(AdminView{})
	a.relay = a.conv.Updates()
	go a.run()
	return a
}

// ListIdentities загружает снимок списка учётных записей.
func (a *AdminAggregator) ListIdentities(ctx context.Context) ([]model.Identity, error) {
	list, err := a.lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("список учётных записей: %w", err)
	}

	identities := make([]model.Identity, 0, len(list))
	for _, id := range list {
		identities = append(identities, *id)
	}

	a.mu.Lock()
	a.identities = identities
	a.publishLocked()
	a.mu.Unlock()

	return append([]model.Identity(nil), identities...), nil
}

// SelectIdentity выбирает переписку для просмотра. Пустая строка
// снимает выбор.
func (a *AdminAggregator) SelectIdentity(identity string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if identity == a.conv.Identity() {
		return
	}
	a.conv.SetIdentity(identity)
	a.transcript = nil
	a.publishLocked()

	a.logger.Debug("Выбрана переписка", slog.String("identity", identity))
}

// Selected возвращает выбранную identity.
func (a *AdminAggregator) Selected() string {
	return a.conv.Identity()
}

// Snapshot возвращает текущее состояние панели.
func (a *AdminAggregator) Snapshot() AdminView {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewLocked()
}

// Updates подписывает на изменения панели; текущее состояние доставляется сразу.
func (a *AdminAggregator) Updates() *feed.Stream[AdminView] {
	return a.updates.Subscribe()
}

// Close закрывает подписку на переписку и поток изменений.
func (a *AdminAggregator) Close() {
	a.once.Do(func() {
		a.conv.Close()
		<-a.done
		a.updates.Close()
	})
}

func (a *AdminAggregator) run() {
	defer close(a.done)
	for c := range a.relay.C() {
		a.mu.Lock()
		// Снимок предыдущего выбора, уже снятого, не учитывается.
		if c.Identity == a.conv.Identity() {
			a.transcript = c.Messages
			a.publishLocked()
		}
		a.mu.Unlock()
	}
}

// viewLocked собирает состояние. Вызывается под a.mu.
func (a *AdminAggregator) viewLocked() AdminView {
	return AdminView{
		Identities: append([]model.Identity(nil), a.identities...),
		Selected:   a.conv.Identity(),
		Transcript: append([]model.Message(nil), a.transcript...),
		Stats: Stats{
			TotalIdentities: len(a.identities),
			MessageCount:    len(a.transcript),
		},
	}
}

func (a *AdminAggregator) publishLocked() {
	a.updates.Set(a.viewLocked())
}
