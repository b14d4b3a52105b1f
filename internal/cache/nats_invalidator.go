package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/flight-telemetry/internal/logging"
	"github.com/nats-io/nats.go"
)

// NATSInvalidator реализует CacheInvalidator используя NATS Pub/Sub.
// Обеспечивает распределённую инвалидацию кеша телеметрии между узлами,
// когда за один кластер симуляции отвечает несколько серверов.
//
// Особенности:
// - Автоматическое переподключение при сбоях
// - Дедупликация сообщений по кораблю
// - Graceful shutdown
type NATSInvalidator struct {
	conn    *nats.Conn
	config  *InvalidatorConfig
	subject string
	nodeID  string

	subscription *nats.Subscription
	handler      InvalidationHandler

	stopCh chan struct{}
	wg     sync.WaitGroup

	// Дедупликация
	recentVessels map[string]time.Time
	vesselsMutex  sync.RWMutex

	// Метрики (atomic для thread safety)
	publishedCount int64
	receivedCount  int64
	errorsCount    int64
}

// InvalidatorConfig содержит конфигурацию для NATS invalidator.
type InvalidatorConfig struct {
	NATSURL string `yaml:"nats_url" env:"TELEMETRY_CACHE_NATS_URL"`
	Subject string `yaml:"subject" env:"TELEMETRY_CACHE_NATS_SUBJECT"`

	MaxReconnects int           `yaml:"max_reconnects" env:"TELEMETRY_CACHE_NATS_MAX_RECONNECTS"`
	ReconnectWait time.Duration `yaml:"reconnect_wait" env:"TELEMETRY_CACHE_NATS_RECONNECT_WAIT"`

	DedupeWindow time.Duration `yaml:"dedupe_window" env:"TELEMETRY_CACHE_NATS_DEDUPE_WINDOW"`

	PublishTimeout time.Duration `yaml:"publish_timeout" env:"TELEMETRY_CACHE_NATS_PUBLISH_TIMEOUT"`
}

// InvalidationMessage представляет сообщение об инвалидации кеша.
type InvalidationMessage struct {
	VesselID  string    `json:"vessel_id"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
	Reason    string    `json:"reason,omitempty"`
}

// NewNATSInvalidator создаёт новый NATS invalidator.
//
// Параметры:
//
//	config - конфигурация NATS соединения
//	nodeID - уникальный идентификатор узла
func NewNATSInvalidator(config *InvalidatorConfig, nodeID string) (*NATSInvalidator, error) {
	// Настройки по умолчанию
	if config.Subject == "" {
		config.Subject = "telemetry.cache.invalidate"
	}
	if config.MaxReconnects == 0 {
		config.MaxReconnects = 10
	}
	if config.ReconnectWait == 0 {
		config.ReconnectWait = 2 * time.Second
	}
	if config.DedupeWindow == 0 {
		config.DedupeWindow = 5 * time.Second
	}
	if config.PublishTimeout == 0 {
		config.PublishTimeout = 5 * time.Second
	}

	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(config.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	invalidator := &NATSInvalidator{
		conn:          conn,
		config:        config,
		subject:       config.Subject,
		nodeID:        nodeID,
		stopCh:        make(chan struct{}),
		recentVessels: make(map[string]time.Time),
	}

	invalidator.startDedupeCleanup()

	logging.Info("NATS invalidator initialized: %s (subject: %s)", config.NATSURL, config.Subject)
	return invalidator, nil
}

// PublishInvalidation отправляет уведомление об инвалидации корабля.
func (n *NATSInvalidator) PublishInvalidation(ctx context.Context, vesselID string) error {
	// Проверяем дедупликацию
	if n.isDuplicate(vesselID) {
		logging.Debug("Skipping duplicate invalidation for vessel: %s", vesselID)
		return nil
	}

	msg := &InvalidationMessage{
		VesselID:  vesselID,
		Timestamp: time.Now(),
		NodeID:    n.nodeID,
		Reason:    "cache_invalidation",
	}

	data, err := json.Marshal(msg)
	if err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		logging.Error("Failed to publish invalidation for vessel %s: %v", vesselID, err)
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}

	n.recordVessel(vesselID)
	atomic.AddInt64(&n.publishedCount, 1)

	logging.Debug("Published invalidation for vessel: %s", vesselID)
	return nil
}

// SubscribeInvalidations подписывается на уведомления об инвалидации.
func (n *NATSInvalidator) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	if n.subscription != nil {
		return fmt.Errorf("already subscribed to invalidations")
	}

	n.handler = handler

	sub, err := n.conn.Subscribe(n.subject, n.handleInvalidationMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to invalidations: %w", err)
	}

	n.subscription = sub

	// Мониторим контекст для graceful shutdown
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		select {
		case <-ctx.Done():
			n.unsubscribe()
		case <-n.stopCh:
			n.unsubscribe()
		}
	}()

	logging.Info("Subscribed to cache invalidations on subject: %s", n.subject)
	return nil
}

// Close закрывает соединение с NATS.
func (n *NATSInvalidator) Close() error {
	close(n.stopCh)
	n.wg.Wait()

	if n.subscription != nil {
		n.subscription.Unsubscribe()
	}

	n.conn.Close()
	logging.Info("NATS invalidator closed")
	return nil
}

// GetMetrics возвращает метрики invalidator.
func (n *NATSInvalidator) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"published_count": atomic.LoadInt64(&n.publishedCount),
		"received_count":  atomic.LoadInt64(&n.receivedCount),
		"errors_count":    atomic.LoadInt64(&n.errorsCount),
		"connected":       n.conn.IsConnected(),
		"status":          n.conn.Status(),
	}
}

// handleInvalidationMessage обрабатывает входящие сообщения об инвалидации.
func (n *NATSInvalidator) handleInvalidationMessage(msg *nats.Msg) {
	atomic.AddInt64(&n.receivedCount, 1)

	var im InvalidationMessage
	if err := json.Unmarshal(msg.Data, &im); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		logging.Error("Failed to unmarshal invalidation message: %v", err)
		return
	}

	// Собственные сообщения игнорируем
	if im.NodeID == n.nodeID {
		logging.Debug("Ignoring own invalidation message for vessel: %s", im.VesselID)
		return
	}

	if n.isDuplicate(im.VesselID) {
		logging.Debug("Ignoring duplicate invalidation for vessel: %s", im.VesselID)
		return
	}

	n.recordVessel(im.VesselID)

	if n.handler != nil {
		if err := n.handler(im.VesselID); err != nil {
			atomic.AddInt64(&n.errorsCount, 1)
			logging.Error("Invalidation handler failed for vessel %s: %v", im.VesselID, err)
		} else {
			logging.Debug("Processed invalidation for vessel: %s", im.VesselID)
		}
	}
}

// unsubscribe отписывается от уведомлений.
func (n *NATSInvalidator) unsubscribe() {
	if n.subscription != nil {
		if err := n.subscription.Unsubscribe(); err != nil {
			logging.Error("Failed to unsubscribe from invalidations: %v", err)
		} else {
			logging.Info("Unsubscribed from cache invalidations")
		}
		n.subscription = nil
	}
}

// isDuplicate проверяет, не рассылали ли мы недавно этот корабль.
func (n *NATSInvalidator) isDuplicate(vesselID string) bool {
	n.vesselsMutex.RLock()
	defer n.vesselsMutex.RUnlock()

	lastSeen, exists := n.recentVessels[vesselID]
	if !exists {
		return false
	}

	return time.Since(lastSeen) < n.config.DedupeWindow
}

// recordVessel записывает корабль в окно дедупликации.
func (n *NATSInvalidator) recordVessel(vesselID string) {
	n.vesselsMutex.Lock()
	defer n.vesselsMutex.Unlock()

	n.recentVessels[vesselID] = time.Now()
}

// startDedupeCleanup запускает периодическую очистку окна дедупликации.
func (n *NATSInvalidator) startDedupeCleanup() {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ticker := time.NewTicker(n.config.DedupeWindow)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				n.cleanupDedupe()
			case <-n.stopCh:
				return
			}
		}
	}()
}

// cleanupDedupe удаляет устаревшие записи дедупликации.
func (n *NATSInvalidator) cleanupDedupe() {
	n.vesselsMutex.Lock()
	defer n.vesselsMutex.Unlock()

	now := time.Now()
	for vesselID, timestamp := range n.recentVessels {
		if now.Sub(timestamp) > n.config.DedupeWindow {
			delete(n.recentVessels, vesselID)
		}
	}
}
