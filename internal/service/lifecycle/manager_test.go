package lifecycle

import (
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/stock"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type testEnv struct {
	manager  *Manager
	orders   domain.OrderRepository
	products *memory.ProductRepository
	users    domain.UserRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger.WithField("component", "test")
}

// newTestEnv собирает менеджер на in-memory зависимостях; каталог сам
// выполняет роль складского регистра.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	orders := memory.NewOrderRepository()
	products := memory.NewProductRepository()
	users := memory.NewUserRepository()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()

	manager := NewManagerWithoutMetrics(orders, products, users, products, outbox, timeline, testLogger())
	return &testEnv{
		manager:  manager,
		orders:   orders,
		products: products,
		users:    users,
		outbox:   outbox,
		timeline: timeline,
	}
}

func (e *testEnv) seedUser(t *testing.T) domain.User {
	t.Helper()
	user, err := e.users.Create(domain.User{Name: "Juan Pérez", Email: "juan@example.com"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (e *testEnv) seedProduct(t *testing.T, priceMinor int64, stockQty int32) domain.Product {
	t.Helper()
	product, err := e.products.Create(domain.Product{Name: "product", PriceMinor: priceMinor, Stock: stockQty})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func (e *testEnv) stockOf(t *testing.T, productID int64) int32 {
	t.Helper()
	product, err := e.products.Get(productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return product.Stock
}

func createOrder(t *testing.T, e *testEnv, userID int64, items ...domain.OrderItemRequest) domain.Order {
	t.Helper()
	order, err := e.manager.Create(domain.CreateOrderRequest{UserID: userID, Items: items})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func TestCreate_PendingWithPriceSnapshot(t *testing.T) {
	e := newTestEnv(t)
	user := e.seedUser(t)
	product := e.seedProduct(t, 1000, 5)

	order := createOrder(t, e, user.ID, domain.OrderItemRequest{ProductID: product.ID, Qty: 3})

	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected PENDING, got %s", order.Status)
	}
	if order.UserName != user.Name {
		t.Fatalf("expected user name attached, got %q", order.UserName)
	}
	if len(order.Items) != 1 || order.Items[0].PriceMinor != 1000 {
		t.Fatalf("expected price snapshot 1000, got %+v", order.Items)
	}
	if order.AmountMinor != 3000 {
		t.Fatalf("expected amount 3000, got %d", order.AmountMinor)
	}
	// Создание заказа не трогает сток.
	if got := e.stockOf(t, product.ID); got != 5 {
		t.Fatalf("create must not touch stock, got %d", got)
	}
}

func TestCreate_Validation(t *testing.T) {
	e := newTestEnv(t)
	user := e.seedUser(t)
	product := e.seedProduct(t, 1000, 5)

	cases := []struct {
		name string
		req  domain.CreateOrderRequest
		want error
	}{
		{
			name: "empty items",
			req:  domain.CreateOrderRequest{UserID: user.ID},
			want: domain.ErrEmptyCart,
		},
		{
			name: "unknown user",
			req: domain.CreateOrderRequest{UserID: 404, Items: []domain.OrderItemRequest{
				{ProductID: product.ID, Qty: 1},
			}},
			want: domain.ErrUserNotFound,
		},
		{
			name: "unknown product",
			req: domain.CreateOrderRequest{UserID: user.ID, Items: []domain.OrderItemRequest{
				{ProductID: 404, Qty: 1},
			}},
			want: domain.ErrProductNotFound,
		},
		{
			name: "zero qty",
			req: domain.CreateOrderRequest{UserID: user.ID, Items: []domain.OrderItemRequest{
				{ProductID: product.ID, Qty: 0},
			}},
			want: domain.ErrItemQtyInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.manager.Create(tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestConfirm_ReservesStock(t *testing.T) {
	e := newTestEnv(t)
	user := e.seedUser(t)
	first := e.seedProduct(t, 1000, 5)
	second := e.seedProduct(t, 500, 2)

	order := createOrder(t, e, user.ID,
		domain.OrderItemRequest{ProductID: first.ID, Qty: 3},
		domain.OrderItemRequest{ProductID: second.ID, Qty: 2},
	)

	confirmed, err := e.manager.Confirm(order.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", confirmed.Status)
	}
	if got := e.stockOf(t, first.ID); got != 2 {
		t.Fatalf("expected stock 2 for first product, got %d", got)
	}
	if got := e.stockOf(t, second.ID); got != 0 {
		t.Fatalf("expected stock 0 for second product, got %d", got)
	}
}

func TestConfirm_InsufficientStockLeavesEverythingUntouched(t *testing.T) {
	e := newTestEnv(t)
	user := e.seedUser(t)
	plenty := e.seedProduct(t, 1000, 10)
	scarce := e.seedProduct(t, 500, 1)

	order := createOrder(t, e, user.ID,
		domain.OrderItemRequest{ProductID: plenty.ID, Qty: 2},
		domain.OrderItemRequest{ProductID: scarce.ID, Qty: 3},
	)

	_, err := e.manager.Confirm(order.ID)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// Ни частичного списания, ни смены статуса.
	if got := e.stockOf(t, plenty.ID); got != 10 {
		t.Fatalf("plenty stock changed: %d", got)
	}
	if got := e.stockOf(t, scarce.ID); got != 1 {
		t.Fatalf("scarce stock changed: %d", got)
	}
	stored, err := e.manager.Get(order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.OrderStatusPending {
		t.Fatalf("order must stay PENDING, got %s", stored.Status)
	}
}

func TestConfirm_WrongState(t *testing.T) {
	e := newTestEnv(t)
	user := e.seedUser(t)
	product := e.seedProduct(t, 1000, 10)

	order := createOrder(t, e, user.ID, domain.OrderItemRequest{ProductID: product.ID, Qty: 1})
	if _, err := e.manager.Confirm(order.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	_, err := e.manager.Confirm(order.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	var invalid *domain.InvalidTransitionError
	if !errors.As(err, &invalid) || invalid.From != domain.OrderStatusConfirmed || invalid.Event != domain.EventConfirm {
		t.Fatalf("error must name state and event: %v", err)
	}
	// Повторное подтверждение не списывает сток ещё раз.
	if got := e.stockOf(t, product.ID); got != 9 {
		t.Fatalf("expected stock 9, got %d", got)
	}
}

func TestShip_Transitions(t *testing.T) {
	e := newTestEnv(t)
	user := e.seedUser(t)
	product := e.seedProduct(t, 1000, 10)

	pending := createOrder(t, e, user.ID, domain.OrderItemRequest{ProductID: product.ID, Qty: 1})
	if _, err := e.manager.Ship(pending.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("ship of pending order must be rejected, got %v", err)
	}

	if _, err := e.manager.Confirm(pending.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	shipped, err := e.manager.Ship(pending.ID)
	if err != nil {
		t.Fatalf("ship: %v", err)
	}
	if shipped.Status != domain.OrderStatusShipped {
		t.Fatalf("expected SHIPPED, got %s", shipped.Status)
	}
	// Отгрузка не меняет сток.
	if got := e.stockOf(t, product.ID); got != 9 {
		t.Fatalf("ship must not touch stock, got %d", got)
	}

	cancelled := createOrder(t, e, user.ID, domain.OrderItemRequest{ProductID: product.ID, Qty: 1})
	if _, err := e.manager.Cancel(cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := e.manager.Ship(cancelled.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("ship of cancelled order must be rejected, got %v", err)
	}
}

func TestCancel_PendingTouchesNoStock(t *testing.T) {
	e := newTestEnv(t)
	user := e.seedUser(t)
	product := e.seedProduct(t, 1000, 5)

	order := createOrder(t, e, user.ID, domain.OrderItemRequest{ProductID: product.ID, Qty: 3})
	cancelledOrder, err := e.manager.Cancel(order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelledOrder.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelledOrder.Status)
	}
	if got := e.stockOf(t, product.ID); got != 5 {
		t.Fatalf("cancel of pending order must not touch stock, got %d", got)
	}
}

func TestCancel_ConfirmedRestoresStock(t *testing.T) {
	e := newTestEnv(t)
	user := e.seedUser(t)
	product := e.seedProduct(t, 1000, 5)

	order := createOrder(t, e, user.ID, domain.OrderItemRequest{ProductID: product.ID, Qty: 3})
	if _, err := e.manager.Confirm(order.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got := e.stockOf(t, product.ID); got != 2 {
		t.Fatalf("expected stock 2 after confirm, got %d", got)
	}

	// Round-trip: сток до confirm == сток после confirm+cancel.
	if _, err := e.manager.Cancel(order.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := e.stockOf(t, product.ID); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}
}

func TestCancel_ShippedRejected(t *testing.T) {
	e := newTestEnv(t)
	user := e.seedUser(t)
	product := e.seedProduct(t, 1000, 5)

	order := createOrder(t, e, user.ID, domain.OrderItemRequest{ProductID: product.ID, Qty: 1})
	if _, err := e.manager.Confirm(order.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := e.manager.Ship(order.ID); err != nil {
		t.Fatalf("ship: %v", err)
	}

	_, err := e.manager.Cancel(order.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("cancel of shipped order must be rejected, got %v", err)
	}
	// Сток отгруженного заказа не возвращается.
	if got := e.stockOf(t, product.ID); got != 4 {
		t.Fatalf("expected stock 4, got %d", got)
	}
}

// Два конкурентных подтверждения, вместе превышающие остаток общего товара:
// ровно одно проходит, второе получает InsufficientStock, сток не уходит в минус.
func TestConfirm_ConcurrentOverSharedProduct(t *testing.T) {
	e := newTestEnv(t)
	user := e.seedUser(t)
	product := e.seedProduct(t, 1000, 5)

	first := createOrder(t, e, user.ID, domain.OrderItemRequest{ProductID: product.ID, Qty: 3})
	second := createOrder(t, e, user.ID, domain.OrderItemRequest{ProductID: product.ID, Qty: 3})

	results := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = e.manager.Confirm(first.ID)
	}()
	go func() {
		defer wg.Done()
		_, results[1] = e.manager.Confirm(second.ID)
	}()
	wg.Wait()

	var succeeded, short int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || short != 1 {
		t.Fatalf("expected exactly one success and one shortage, got %d/%d", succeeded, short)
	}
	if got := e.stockOf(t, product.ID); got != 2 {
		t.Fatalf("expected stock 2 after the race, got %d", got)
	}
}

// Сценарий из жизни: P со стоком 5, заказы A и B по 3×P.
func TestLifecycle_SharedProductScenario(t *testing.T) {
	e := newTestEnv(t)
	user := e.seedUser(t)
	product := e.seedProduct(t, 1000, 5)

	orderA := createOrder(t, e, user.ID, domain.OrderItemRequest{ProductID: product.ID, Qty: 3})
	orderB := createOrder(t, e, user.ID, domain.OrderItemRequest{ProductID: product.ID, Qty: 3})

	// A.confirm() → сток 2, A CONFIRMED.
	a, err := e.manager.Confirm(orderA.ID)
	if err != nil {
		t.Fatalf("confirm A: %v", err)
	}
	if a.Status != domain.OrderStatusConfirmed || e.stockOf(t, product.ID) != 2 {
		t.Fatalf("after A.confirm: status=%s stock=%d", a.Status, e.stockOf(t, product.ID))
	}

	// B.confirm() → InsufficientStock, сток 2, B PENDING.
	if _, err := e.manager.Confirm(orderB.ID); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("confirm B: expected shortage, got %v", err)
	}
	b, err := e.manager.Get(orderB.ID)
	if err != nil {
		t.Fatalf("get B: %v", err)
	}
	if b.Status != domain.OrderStatusPending || e.stockOf(t, product.ID) != 2 {
		t.Fatalf("after B.confirm: status=%s stock=%d", b.Status, e.stockOf(t, product.ID))
	}

	// A.cancel() → сток 5, A CANCELLED.
	a, err = e.manager.Cancel(orderA.ID)
	if err != nil {
		t.Fatalf("cancel A: %v", err)
	}
	if a.Status != domain.OrderStatusCancelled || e.stockOf(t, product.ID) != 5 {
		t.Fatalf("after A.cancel: status=%s stock=%d", a.Status, e.stockOf(t, product.ID))
	}

	// B.confirm() → сток 2, B CONFIRMED.
	b, err = e.manager.Confirm(orderB.ID)
	if err != nil {
		t.Fatalf("confirm B again: %v", err)
	}
	if b.Status != domain.OrderStatusConfirmed || e.stockOf(t, product.ID) != 2 {
		t.Fatalf("after B.confirm: status=%s stock=%d", b.Status, e.stockOf(t, product.ID))
	}
}

// conflictingOrderRepo подсовывает конфликт версий на первом Save.
type conflictingOrderRepo struct {
	domain.OrderRepository
	mu        sync.Mutex
	conflicts int
}

func (r *conflictingOrderRepo) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflicts > 0 {
		r.conflicts--
		return domain.ErrOrderVersionConflict
	}
	return r.OrderRepository.Save(order)
}

func TestConfirm_ReleasesReservationOnVersionConflict(t *testing.T) {
	orders := &conflictingOrderRepo{OrderRepository: memory.NewOrderRepository(), conflicts: 1}
	products := memory.NewProductRepository()
	users := memory.NewUserRepository()
	ledger := stock.NewMockLedger()
	manager := NewManagerWithoutMetrics(
		orders, products, users, ledger,
		memory.NewOutboxRepository(), memory.NewTimelineRepository(), testLogger(),
	)

	user, err := users.Create(domain.User{Name: "test", Email: "test@example.com"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	product, err := products.Create(domain.Product{Name: "product", PriceMinor: 100, Stock: 5})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}

	order, err := manager.Create(domain.CreateOrderRequest{
		UserID: user.ID,
		Items:  []domain.OrderItemRequest{{ProductID: product.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = manager.Confirm(order.ID)
	if !domain.IsVersionConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	// Резерв должен быть возвращён компенсацией.
	if ledger.ReserveCalls != 1 || ledger.ReleaseCalls != 1 {
		t.Fatalf("expected reserve+release, got %d/%d", ledger.ReserveCalls, ledger.ReleaseCalls)
	}
}

func TestList_NewestFirst(t *testing.T) {
	e := newTestEnv(t)
	user := e.seedUser(t)
	product := e.seedProduct(t, 1000, 10)

	for i := 0; i < 3; i++ {
		createOrder(t, e, user.ID, domain.OrderItemRequest{ProductID: product.ID, Qty: 1})
	}

	orders, err := e.manager.List(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}
	for i := 1; i < len(orders); i++ {
		if orders[i-1].ID < orders[i].ID {
			t.Fatalf("orders must be newest first by id: %+v", orders)
		}
	}
}

func TestTransitions_EmitTimelineAndOutboxEvents(t *testing.T) {
	e := newTestEnv(t)
	user := e.seedUser(t)
	product := e.seedProduct(t, 1000, 10)

	order := createOrder(t, e, user.ID, domain.OrderItemRequest{ProductID: product.ID, Qty: 1})
	if _, err := e.manager.Confirm(order.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	events, err := e.manager.Timeline(order.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 timeline events, got %d", len(events))
	}
	if events[0].Type != timelineEventOrderCreated {
		t.Fatalf("expected OrderCreated first, got %s", events[0].Type)
	}

	pending, err := e.outbox.PullPending(10)
	if err != nil {
		t.Fatalf("pull outbox: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 outbox events, got %d", len(pending))
	}
	if pending[0].EventType != eventTypeOrderCreated || pending[1].EventType != eventTypeOrderConfirmed {
		t.Fatalf("unexpected event types: %+v", pending)
	}
}
