package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const opTimeout = 5 * time.Second

// OrderRepository хранит заказы и их позиции в PostgreSQL.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт репозиторий заказов поверх подключения Store.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{db: store.DB()}
}

// Create сохраняет заказ с позициями в одной транзакции и присваивает идентификатор.
func (r *OrderRepository) Create(order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin create order tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	if order.Version == 0 {
		order.Version = 1
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, status, amount_minor, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, order.UserID, string(order.Status), order.AmountMinor, order.Version, order.CreatedAt, order.UpdatedAt).Scan(&order.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, qty, price_minor)
			VALUES ($1, $2, $3, $4)
		`, order.ID, item.ProductID, item.Qty, item.PriceMinor); err != nil {
			return domain.Order{}, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit create order tx: %w", err)
	}

	return order, nil
}

// Get возвращает заказ с позициями или ErrOrderNotFound.
func (r *OrderRepository) Get(id int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		order  domain.Order
		status string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT o.id, o.user_id, u.name, o.status, o.amount_minor, o.version, o.created_at, o.updated_at
		FROM orders o
		JOIN users u ON u.id = o.user_id
		WHERE o.id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.UserName, &status, &order.AmountMinor, &order.Version, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order %d: %w", id, err)
	}
	order.Status = domain.OrderStatus(status)

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

// List возвращает заказы от новых к старым с опциональным лимитом.
func (r *OrderRepository) List(limit int) ([]domain.Order, error) {
	return r.list(`
		SELECT o.id, o.user_id, u.name, o.status, o.amount_minor, o.version, o.created_at, o.updated_at
		FROM orders o
		JOIN users u ON u.id = o.user_id
		ORDER BY o.id DESC
		LIMIT $1
	`, normalizeLimit(limit))
}

// ListByUser возвращает заказы пользователя от новых к старым.
func (r *OrderRepository) ListByUser(userID int64, limit int) ([]domain.Order, error) {
	return r.list(`
		SELECT o.id, o.user_id, u.name, o.status, o.amount_minor, o.version, o.created_at, o.updated_at
		FROM orders o
		JOIN users u ON u.id = o.user_id
		WHERE o.user_id = $2
		ORDER BY o.id DESC
		LIMIT $1
	`, normalizeLimit(limit), userID)
}

// Save применяет обновления заказа с optimistic locking: строка обновляется
// только при совпадении версии, иначе возвращается ErrOrderVersionConflict.
func (r *OrderRepository) Save(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, amount_minor = $2, version = version + 1, updated_at = NOW()
		WHERE id = $3 AND version = $4
	`, string(order.Status), order.AmountMinor, order.ID, order.Version)
	if err != nil {
		return fmt.Errorf("update order %d: %w", order.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for order %d: %w", order.ID, err)
	}
	if affected > 0 {
		return nil
	}

	// Строка не обновилась: отличаем отсутствующий заказ от конфликта версий.
	var exists bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)
	`, order.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check order %d existence: %w", order.ID, err)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrOrderVersionConflict
}

func (r *OrderRepository) list(query string, args ...any) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var (
			order  domain.Order
			status string
		)
		if err := rows.Scan(&order.ID, &order.UserID, &order.UserName, &status, &order.AmountMinor, &order.Version, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		order.Status = domain.OrderStatus(status)
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, qty, price_minor
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select items for order %d: %w", orderID, err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Qty, &item.PriceMinor); err != nil {
			return nil, fmt.Errorf("scan order item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order item rows: %w", err)
	}

	return items, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
