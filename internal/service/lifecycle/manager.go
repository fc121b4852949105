package lifecycle

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	eventTypeOrderCreated   = "order.created"
	eventTypeOrderConfirmed = "order.confirmed"
	eventTypeOrderShipped   = "order.shipped"
	eventTypeOrderCancelled = "order.cancelled"

	timelineEventOrderCreated       = "OrderCreated"
	timelineEventOrderStatusChanged = "OrderStatusChanged"

	aggregateTypeOrder = "order"
)

// Manager владеет машиной состояний заказа и протоколом атомарного
// изменения стока вместе со сменой статуса.
type Manager struct {
	orders   domain.OrderRepository
	products domain.ProductRepository
	users    domain.UserRepository
	ledger   domain.StockLedger
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
	metrics  *metrics.LifecycleMetrics
}

// NewManager создаёт рабочий экземпляр менеджера жизненного цикла.
func NewManager(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	users domain.UserRepository,
	ledger domain.StockLedger,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Manager {
	m := newManager(orders, products, users, ledger, outbox, timeline, logger)
	m.metrics = metrics.NewLifecycleMetrics()
	return m
}

// NewManagerWithoutMetrics создаёт менеджер без метрик (для тестов).
func NewManagerWithoutMetrics(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	users domain.UserRepository,
	ledger domain.StockLedger,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Manager {
	return newManager(orders, products, users, ledger, outbox, timeline, logger)
}

func newManager(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	users domain.UserRepository,
	ledger domain.StockLedger,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Manager {
	if logger == nil {
		logger = log.New().WithField("component", "lifecycle")
	}
	return &Manager{
		orders:   orders,
		products: products,
		users:    users,
		ledger:   ledger,
		outbox:   outbox,
		timeline: timeline,
		logger:   logger,
	}
}

// Create создаёт заказ в статусе PENDING. Сток на этом шаге не трогается:
// резервирование откладывается до подтверждения, чтобы сборка корзины не
// конкурировала за остатки. Цена каждой позиции снимается с актуальной
// цены каталога и после создания не пересчитывается.
func (m *Manager) Create(req domain.CreateOrderRequest) (domain.Order, error) {
	start := time.Now()
	defer m.observe("create", start)

	if req.UserID <= 0 {
		return domain.Order{}, domain.ErrUserRequired
	}
	if len(req.Items) == 0 {
		return domain.Order{}, domain.ErrEmptyCart
	}

	user, err := m.users.Get(req.UserID)
	if err != nil {
		return domain.Order{}, err
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Qty <= 0 {
			return domain.Order{}, domain.ErrItemQtyInvalid
		}
		product, err := m.products.Get(item.ProductID)
		if err != nil {
			return domain.Order{}, err
		}
		items = append(items, domain.OrderItem{
			ProductID:  product.ID,
			Qty:        item.Qty,
			PriceMinor: product.PriceMinor,
		})
	}

	now := time.Now().UTC()
	order := domain.Order{
		UserID:      user.ID,
		UserName:    user.Name,
		Status:      domain.OrderStatusPending,
		AmountMinor: domain.ItemsTotalMinor(items),
		Items:       items,
		CreatedAt:   now,
	}
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		return domain.Order{}, fmt.Errorf("order invariants violated: %v", errs)
	}

	created, err := m.orders.Create(order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	m.appendTimeline(created.ID, timelineEventOrderCreated, "")
	m.enqueueEvent(created, eventTypeOrderCreated, false)
	if m.metrics != nil {
		m.metrics.RecordOrderCreated()
	}

	m.logger.WithFields(log.Fields{
		"order_id": created.ID,
		"user_id":  created.UserID,
		"amount":   created.AmountMinor,
	}).Info("заказ создан")

	return created, nil
}

// Confirm резервирует сток по всем позициям заказа как единое целое и
// переводит заказ в CONFIRMED. При нехватке хотя бы одной позиции ни один
// остаток не меняется, заказ остаётся PENDING; повторной попытки нет.
func (m *Manager) Confirm(orderID int64) (domain.Order, error) {
	start := time.Now()
	defer m.observe(string(domain.EventConfirm), start)

	order, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.Status.CanApply(domain.EventConfirm) {
		return domain.Order{}, m.rejectTransition(order, domain.EventConfirm)
	}

	reservation := domain.ReservationItems(order.Items)
	if err := m.ledger.Reserve(reservation); err != nil {
		if m.metrics != nil {
			m.metrics.RecordInsufficientStock()
		}
		m.logger.WithError(err).WithField("order_id", orderID).Warn("резервирование отклонено")
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatusConfirmed
	if err := m.orders.Save(order); err != nil {
		// Конкурентный переход успел раньше: возвращаем резерв и отдаём конфликт.
		if releaseErr := m.ledger.Release(reservation); releaseErr != nil {
			m.logger.WithError(releaseErr).WithField("order_id", orderID).
				Error("не удалось вернуть резерв после конфликта версий")
		}
		return domain.Order{}, fmt.Errorf("save confirmed order: %w", err)
	}

	m.appendTimeline(order.ID, timelineEventOrderStatusChanged, "confirmed, stock reserved")
	m.enqueueEvent(order, eventTypeOrderConfirmed, true)
	if m.metrics != nil {
		m.metrics.RecordOrderConfirmed()
	}

	m.logger.WithField("order_id", orderID).Info("заказ подтверждён, сток зарезервирован")
	return m.orders.Get(orderID)
}

// Ship переводит подтверждённый заказ в SHIPPED. Сток не меняется.
func (m *Manager) Ship(orderID int64) (domain.Order, error) {
	start := time.Now()
	defer m.observe(string(domain.EventShip), start)

	order, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.Status.CanApply(domain.EventShip) {
		return domain.Order{}, m.rejectTransition(order, domain.EventShip)
	}

	order.Status = domain.OrderStatusShipped
	if err := m.orders.Save(order); err != nil {
		return domain.Order{}, fmt.Errorf("save shipped order: %w", err)
	}

	m.appendTimeline(order.ID, timelineEventOrderStatusChanged, "shipped")
	m.enqueueEvent(order, eventTypeOrderShipped, false)
	if m.metrics != nil {
		m.metrics.RecordOrderShipped()
	}

	m.logger.WithField("order_id", orderID).Info("заказ отгружен")
	return m.orders.Get(orderID)
}

// Cancel отменяет заказ. Для PENDING сток не трогается (резерва ещё не было);
// для CONFIRMED возвращается ровно то, что было списано при подтверждении.
// Возврат выполняется после того, как смена статуса выиграла optimistic
// locking, поэтому двойная отмена не может вернуть сток дважды.
func (m *Manager) Cancel(orderID int64) (domain.Order, error) {
	start := time.Now()
	defer m.observe(string(domain.EventCancel), start)

	order, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.Status.CanApply(domain.EventCancel) {
		return domain.Order{}, m.rejectTransition(order, domain.EventCancel)
	}

	wasConfirmed := order.Status == domain.OrderStatusConfirmed
	order.Status = domain.OrderStatusCancelled
	if err := m.orders.Save(order); err != nil {
		return domain.Order{}, fmt.Errorf("save cancelled order: %w", err)
	}

	if wasConfirmed {
		if err := m.ledger.Release(domain.ReservationItems(order.Items)); err != nil {
			// Release только увеличивает остатки и считается всегда успешным;
			// ошибка здесь означает рассинхронизацию каталога.
			m.logger.WithError(err).WithField("order_id", orderID).
				Error("не удалось вернуть сток при отмене")
		}
	}

	reason := "cancelled while pending, no stock reserved"
	if wasConfirmed {
		reason = "cancelled after confirmation, stock restored"
	}
	m.appendTimeline(order.ID, timelineEventOrderStatusChanged, reason)
	m.enqueueEvent(order, eventTypeOrderCancelled, wasConfirmed)
	if m.metrics != nil {
		m.metrics.RecordOrderCancelled()
	}

	m.logger.WithFields(log.Fields{
		"order_id":       orderID,
		"stock_restored": wasConfirmed,
	}).Info("заказ отменён")
	return m.orders.Get(orderID)
}

// Get возвращает заказ по идентификатору.
func (m *Manager) Get(orderID int64) (domain.Order, error) {
	return m.orders.Get(orderID)
}

// List возвращает заказы от новых к старым по идентификатору.
func (m *Manager) List(limit int) ([]domain.Order, error) {
	return m.orders.List(limit)
}

// ListByUser возвращает заказы пользователя от новых к старым.
func (m *Manager) ListByUser(userID int64, limit int) ([]domain.Order, error) {
	return m.orders.ListByUser(userID, limit)
}

// Timeline возвращает события жизненного цикла заказа.
func (m *Manager) Timeline(orderID int64) ([]domain.TimelineEvent, error) {
	if _, err := m.orders.Get(orderID); err != nil {
		return nil, err
	}
	return m.timeline.List(orderID)
}

func (m *Manager) rejectTransition(order domain.Order, event domain.TransitionEvent) error {
	if m.metrics != nil {
		m.metrics.RecordInvalidTransition()
	}
	return &domain.InvalidTransitionError{From: order.Status, Event: event}
}

func (m *Manager) appendTimeline(orderID int64, eventType, reason string) {
	err := m.timeline.Append(domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	})
	if err != nil {
		m.logger.WithError(err).WithField("order_id", orderID).Warn("timeline append failed")
		return
	}
	if m.metrics != nil {
		m.metrics.RecordTimelineEvent()
	}
}

// orderEventPayload — payload события order-updated для внешних потребителей.
type orderEventPayload struct {
	OrderID      int64  `json:"order_id"`
	UserID       int64  `json:"user_id"`
	Status       string `json:"status"`
	AmountMinor  int64  `json:"amount_minor"`
	StockChanged bool   `json:"stock_changed"`
	OccurredAt   string `json:"occurred_at"`
}

func (m *Manager) enqueueEvent(order domain.Order, eventType string, stockChanged bool) {
	payload, err := json.Marshal(orderEventPayload{
		OrderID:      order.ID,
		UserID:       order.UserID,
		Status:       string(order.Status),
		AmountMinor:  order.AmountMinor,
		StockChanged: stockChanged,
		OccurredAt:   time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Warn("event payload marshal failed")
		return
	}

	_, err = m.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: aggregateTypeOrder,
		AggregateID:   strconv.FormatInt(order.ID, 10),
		EventType:     eventType,
		Payload:       payload,
	})
	if err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Warn("outbox enqueue failed")
		return
	}
	if m.metrics != nil {
		m.metrics.RecordOutboxEvent()
	}
}

func (m *Manager) observe(event string, start time.Time) {
	if m.metrics != nil {
		m.metrics.RecordTransitionDuration(event, time.Since(start))
	}
}
