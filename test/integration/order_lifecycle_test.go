package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type orderDTO struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount_minor"`
	Version     int64  `json:"version"`
	Items       []struct {
		ProductID  int64 `json:"product_id"`
		Qty        int32 `json:"qty"`
		PriceMinor int64 `json:"price_minor"`
	} `json:"items"`
}

type productDTO struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Stock      int32  `json:"stock"`
}

// OrderLifecycleTestSuite проверяет полный жизненный цикл заказов через HTTP API.
type OrderLifecycleTestSuite struct {
	suite.Suite
	deps   *app.Dependencies
	server *httptest.Server
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	s.deps = app.NewMemoryDependencies(logger)
	require.NoError(s.T(), s.deps.SeedDemoData())

	manager := lifecycle.NewManagerWithoutMetrics(
		s.deps.Orders,
		s.deps.Products,
		s.deps.Users,
		s.deps.Ledger,
		s.deps.OutboxRepo,
		s.deps.Timeline,
		logger,
	)

	apiServer := httpapi.NewServer(manager, s.deps.Products, s.deps.Users, s.deps.Idempotency, logger)
	s.server = httptest.NewServer(apiServer.Router())
}

func (s *OrderLifecycleTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *OrderLifecycleTestSuite) createOrder(userID, productID int64, qty int32, idempotencyKey string) (*http.Response, orderDTO) {
	body, err := json.Marshal(map[string]any{
		"user_id": userID,
		"items":   []map[string]any{{"product_id": productID, "qty": qty}},
	})
	require.NoError(s.T(), err)

	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/api/orders", bytes.NewReader(body))
	require.NoError(s.T(), err)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := s.server.Client().Do(req)
	require.NoError(s.T(), err)
	defer resp.Body.Close()

	var order orderDTO
	if resp.StatusCode == http.StatusCreated {
		require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&order))
	}
	return resp, order
}

func (s *OrderLifecycleTestSuite) transition(orderID int64, action string) (*http.Response, orderDTO) {
	req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/orders/%d/%s", s.server.URL, orderID, action), nil)
	require.NoError(s.T(), err)

	resp, err := s.server.Client().Do(req)
	require.NoError(s.T(), err)
	defer resp.Body.Close()

	var order orderDTO
	if resp.StatusCode == http.StatusOK {
		require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&order))
	}
	return resp, order
}

func (s *OrderLifecycleTestSuite) productStock(productID int64) int32 {
	resp, err := s.server.Client().Get(fmt.Sprintf("%s/api/products/%d", s.server.URL, productID))
	require.NoError(s.T(), err)
	defer resp.Body.Close()
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var product productDTO
	require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&product))
	return product.Stock
}

func (s *OrderLifecycleTestSuite) TestHappyPath() {
	resp, order := s.createOrder(1, 1, 2, "")
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)
	require.Equal(s.T(), "PENDING", order.Status)
	require.Equal(s.T(), int64(2*99999), order.AmountMinor)

	// Создание заказа не трогает остаток.
	require.Equal(s.T(), int32(5), s.productStock(1))

	resp, order = s.transition(order.ID, "confirm")
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	require.Equal(s.T(), "CONFIRMED", order.Status)
	require.Equal(s.T(), int32(3), s.productStock(1))

	resp, order = s.transition(order.ID, "ship")
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	require.Equal(s.T(), "SHIPPED", order.Status)
	require.Equal(s.T(), int32(3), s.productStock(1))
}

func (s *OrderLifecycleTestSuite) TestSharedProductContention() {
	// Остаток 5, два заказа по 3 единицы одного товара.
	respA, orderA := s.createOrder(1, 1, 3, "")
	require.Equal(s.T(), http.StatusCreated, respA.StatusCode)
	respB, orderB := s.createOrder(2, 1, 3, "")
	require.Equal(s.T(), http.StatusCreated, respB.StatusCode)

	resp, _ := s.transition(orderA.ID, "confirm")
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	require.Equal(s.T(), int32(2), s.productStock(1))

	// Второму заказу остатка уже не хватает, он остаётся PENDING.
	resp, _ = s.transition(orderB.ID, "confirm")
	require.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)
	require.Equal(s.T(), int32(2), s.productStock(1))

	// Отмена подтверждённого заказа возвращает остаток ровно один раз.
	resp, canceled := s.transition(orderA.ID, "cancel")
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	require.Equal(s.T(), "CANCELLED", canceled.Status)
	require.Equal(s.T(), int32(5), s.productStock(1))

	// Теперь второй заказ подтверждается.
	resp, confirmed := s.transition(orderB.ID, "confirm")
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	require.Equal(s.T(), "CONFIRMED", confirmed.Status)
	require.Equal(s.T(), int32(2), s.productStock(1))
}

func (s *OrderLifecycleTestSuite) TestCancelPendingDoesNotTouchStock() {
	resp, order := s.createOrder(1, 2, 5, "")
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)

	stockBefore := s.productStock(2)
	resp, canceled := s.transition(order.ID, "cancel")
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	require.Equal(s.T(), "CANCELLED", canceled.Status)
	require.Equal(s.T(), stockBefore, s.productStock(2))

	// Отменённый заказ нельзя подтвердить.
	resp, _ = s.transition(order.ID, "confirm")
	require.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)
}

func (s *OrderLifecycleTestSuite) TestIdempotentCreateReplay() {
	key := "integration-key-1"
	resp, first := s.createOrder(1, 1, 1, key)
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)

	resp, second := s.createOrder(1, 1, 1, key)
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)
	require.Equal(s.T(), first.ID, second.ID)

	// Тот же ключ с другим телом отклоняется.
	resp, _ = s.createOrder(1, 1, 2, key)
	require.Equal(s.T(), http.StatusConflict, resp.StatusCode)

	orders, err := s.deps.Orders.List(0)
	require.NoError(s.T(), err)
	require.Len(s.T(), orders, 1)
}

func (s *OrderLifecycleTestSuite) TestOutboxDrainedByWorker() {
	resp, order := s.createOrder(1, 1, 1, "")
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)
	resp, _ = s.transition(order.ID, "confirm")
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	stats, err := s.deps.OutboxRepo.Stats()
	require.NoError(s.T(), err)
	require.Equal(s.T(), 2, stats.PendingCount)

	published := make([]domain.OutboxMessage, 0)
	worker := outbox.NewWorker(s.deps.OutboxRepo, recordingPublisher{events: &published})
	worker.ProcessOnce(context.Background())

	require.Len(s.T(), published, 2)
	stats, err = s.deps.OutboxRepo.Stats()
	require.NoError(s.T(), err)
	require.Equal(s.T(), 0, stats.PendingCount)

	// Хронология заказа фиксирует создание и смену статуса.
	events, err := s.deps.Timeline.List(order.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), events, 2)
	require.Equal(s.T(), "OrderCreated", events[0].Type)
	require.Equal(s.T(), "OrderStatusChanged", events[1].Type)
	require.WithinDuration(s.T(), time.Now(), events[1].Occurred, time.Minute)
}

type recordingPublisher struct {
	events *[]domain.OutboxMessage
}

func (p recordingPublisher) Publish(event domain.OutboxMessage) error {
	*p.events = append(*p.events, event)
	return nil
}

func TestOrderLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
