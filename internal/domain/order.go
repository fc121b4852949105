package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, сток ещё не зарезервирован.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusConfirmed — подтверждение выполнено, сток списан под заказ.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusShipped — заказ отгружен; терминальный статус.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusCancelled — заказ отменён; терминальный статус.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// TransitionEvent — событие перехода в машине состояний заказа.
type TransitionEvent string

const (
	EventConfirm TransitionEvent = "confirm"
	EventShip    TransitionEvent = "ship"
	EventCancel  TransitionEvent = "cancel"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, является ли статус конечным.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusShipped || s == OrderStatusCancelled
}

// ParseOrderStatus разбирает строковый литерал статуса.
// Любое неизвестное значение — ошибка формата.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(raw)
	if !s.Valid() {
		return "", ErrUnknownStatus
	}
	return s, nil
}

// CanApply проверяет допустимость события перехода из текущего статуса.
// Таблица переходов: PENDING -confirm-> CONFIRMED, PENDING -cancel-> CANCELLED,
// CONFIRMED -ship-> SHIPPED, CONFIRMED -cancel-> CANCELLED.
func (s OrderStatus) CanApply(event TransitionEvent) bool {
	switch event {
	case EventConfirm:
		return s == OrderStatusPending
	case EventShip:
		return s == OrderStatusConfirmed
	case EventCancel:
		return s == OrderStatusPending || s == OrderStatusConfirmed
	default:
		return false
	}
}

// OrderItem представляет одну позицию заказа.
// Позиции неизменяемы после создания заказа: цена — снимок цены каталога
// на момент создания и не пересчитывается при изменении каталога.
type OrderItem struct {
	// ProductID — идентификатор товара в каталоге.
	ProductID int64
	// Qty — количество единиц товара.
	Qty int32
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor int64
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID          int64
	UserID      int64
	UserName    string
	Status      OrderStatus
	AmountMinor int64
	Items       []OrderItem
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemsTotalMinor возвращает сумму позиций: qty * price.
func ItemsTotalMinor(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += int64(item.Qty) * item.PriceMinor
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID <= 0 {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrUnknownStatus)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	// Сверяем сумму заказа с суммой позиций.
	if ItemsTotalMinor(o.Items) != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
