package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func newOrderRepoMock(t *testing.T) (*OrderRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewOrderRepository(NewStoreWithDB(db)), mock
}

func TestOrderRepository_Create(t *testing.T) {
	repo, mock := newOrderRepoMock(t)

	order := domain.Order{
		UserID:      1,
		Status:      domain.OrderStatusPending,
		AmountMinor: 29997,
		Items: []domain.OrderItem{
			{ProductID: 10, Qty: 2, PriceMinor: 9999},
			{ProductID: 11, Qty: 1, PriceMinor: 9999},
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs(int64(1), "PENDING", int64(29997), int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(int64(42), int64(10), int32(2), int64(9999)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(int64(42), int64(11), int32(1), int64(9999)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	created, err := repo.Create(order)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID != 42 {
		t.Errorf("expected order id 42, got %d", created.ID)
	}
	if created.Version != 1 {
		t.Errorf("expected version 1, got %d", created.Version)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOrderRepository_Get(t *testing.T) {
	repo, mock := newOrderRepoMock(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT o.id, o.user_id, u.name").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "status", "amount_minor", "version", "created_at", "updated_at"}).
			AddRow(int64(7), int64(1), "Juan Pérez", "CONFIRMED", int64(29997), int64(2), now, now))
	mock.ExpectQuery("SELECT product_id, qty, price_minor").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "qty", "price_minor"}).
			AddRow(int64(10), int32(3), int64(9999)))

	order, err := repo.Get(7)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Errorf("expected status CONFIRMED, got %s", order.Status)
	}
	if order.UserName != "Juan Pérez" {
		t.Errorf("expected user name Juan Pérez, got %s", order.UserName)
	}
	if len(order.Items) != 1 || order.Items[0].Qty != 3 {
		t.Errorf("unexpected items: %+v", order.Items)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOrderRepository_Get_NotFound(t *testing.T) {
	repo, mock := newOrderRepoMock(t)

	mock.ExpectQuery("SELECT o.id, o.user_id, u.name").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "status", "amount_minor", "version", "created_at", "updated_at"}))

	_, err := repo.Get(99)
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOrderRepository_Save(t *testing.T) {
	repo, mock := newOrderRepoMock(t)

	mock.ExpectExec("UPDATE orders").
		WithArgs("CONFIRMED", int64(29997), int64(7), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(domain.Order{ID: 7, Status: domain.OrderStatusConfirmed, AmountMinor: 29997, Version: 1})
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOrderRepository_Save_VersionConflict(t *testing.T) {
	repo, mock := newOrderRepoMock(t)

	mock.ExpectExec("UPDATE orders").
		WithArgs("CONFIRMED", int64(29997), int64(7), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.Save(domain.Order{ID: 7, Status: domain.OrderStatusConfirmed, AmountMinor: 29997, Version: 1})
	if !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected ErrOrderVersionConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOrderRepository_Save_NotFound(t *testing.T) {
	repo, mock := newOrderRepoMock(t)

	mock.ExpectExec("UPDATE orders").
		WithArgs("SHIPPED", int64(100), int64(404), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.Save(domain.Order{ID: 404, Status: domain.OrderStatusShipped, AmountMinor: 100, Version: 3})
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOrderRepository_ListByUser(t *testing.T) {
	repo, mock := newOrderRepoMock(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT o.id, o.user_id, u.name").
		WithArgs(10, int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "status", "amount_minor", "version", "created_at", "updated_at"}).
			AddRow(int64(9), int64(1), "Juan Pérez", "PENDING", int64(100), int64(1), now, now).
			AddRow(int64(3), int64(1), "Juan Pérez", "SHIPPED", int64(200), int64(3), now, now))
	mock.ExpectQuery("SELECT product_id, qty, price_minor").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "qty", "price_minor"}).AddRow(int64(10), int32(1), int64(100)))
	mock.ExpectQuery("SELECT product_id, qty, price_minor").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "qty", "price_minor"}).AddRow(int64(11), int32(2), int64(100)))

	orders, err := repo.ListByUser(1, 10)
	if err != nil {
		t.Fatalf("ListByUser returned error: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].ID != 9 || orders[1].ID != 3 {
		t.Errorf("expected newest-first order, got %d then %d", orders[0].ID, orders[1].ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
