// client_registry.go — реестр браузерных клиентов.
//
// Клиенты хранятся в LRU с временем жизни: клиент, к которому не
// обращались ClientIdleTTL, или вытесненный из-за размера, закрывается.
package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var activeClients = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "st_active_clients",
	Help: "Количество браузерных клиентов в реестре.",
})

// ClientFactory создаёт клиента по идентификатору.
type ClientFactory func(id string) *Client

// ClientRegistry — реестр клиентов.
type ClientRegistry struct {
	factory  ClientFactory
	onForget func(id string)
	logger   *slog.Logger

	mu      sync.Mutex
	clients *expirable.LRU[string, *Client]
	closing sync.WaitGroup
}

// NewClientRegistry создаёт реестр. onForget вызывается для каждого
// удалённого клиента (например, auth.Service.Forget); может быть nil.
func NewClientRegistry(size int, ttl time.Duration, factory ClientFactory, onForget func(id string), logger *slog.Logger) *ClientRegistry {
	r := &ClientRegistry{
		factory:  factory,
		onForget: onForget,
		logger:   logger.With(slog.String("component", "client_registry")),
	}
	r.clients = expirable.NewLRU[string, *Client](size, r.evicted, ttl)
	return r
}

// Get возвращает клиента, создавая его при отсутствии.
// Обращение продлевает время жизни клиента.
func (r *ClientRegistry) Get(id string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients.Get(id)
	if !ok {
		c = r.factory(id)
		activeClients.Inc()
		r.logger.Debug("Клиент создан", slog.String("client", id))
	}
	r.clients.Add(id, c)
	return c
}

// Peek возвращает клиента без продления времени жизни.
func (r *ClientRegistry) Peek(id string) (*Client, bool) {
	return r.clients.Peek(id)
}

// Remove удаляет и закрывает клиента.
func (r *ClientRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients.Remove(id)
}

// Len возвращает число клиентов в реестре.
func (r *ClientRegistry) Len() int {
	return r.clients.Len()
}

// Close закрывает всех клиентов и ждёт их завершения.
func (r *ClientRegistry) Close() {
	r.mu.Lock()
	r.clients.Purge()
	r.mu.Unlock()
	r.closing.Wait()
	r.logger.Info("Реестр клиентов закрыт")
}

// evicted вызывается LRU под его блокировкой; закрытие идёт в фоне.
func (r *ClientRegistry) evicted(id string, c *Client) {
	activeClients.Dec()
	r.closing.Add(1)
	go func() {
		defer r.closing.Done()
		c.Close()
		if r.onForget != nil {
			r.onForget(id)
		}
		r.logger.Debug("Клиент удалён", slog.String("client", id))
	}()
}
