package domain

import "time"

// ReservationItem — пара товар/количество для операций со складским остатком.
type ReservationItem struct {
	ProductID int64
	Qty       int32
}

// ReservationItems собирает пары товар/количество из позиций заказа.
func ReservationItems(items []OrderItem) []ReservationItem {
	out := make([]ReservationItem, 0, len(items))
	for _, item := range items {
		out = append(out, ReservationItem{ProductID: item.ProductID, Qty: item.Qty})
	}
	return out
}

// StockLedger — авторитетный учёт складских остатков.
type StockLedger interface {
	// Reserve атомарно списывает остаток по всем позициям сразу:
	// либо каждая позиция списана, либо ни одна. При нехватке возвращает
	// *InsufficientStockError, не меняя ни одного остатка.
	Reserve(items []ReservationItem) error
	// Release атомарно возвращает остаток по позициям (компенсация).
	// Только увеличивает остатки, поэтому считается всегда успешным.
	Release(items []ReservationItem) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID int64) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
