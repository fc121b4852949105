package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ProductRepository — каталог товаров в PostgreSQL, одновременно выполняющий
// роль складского регистра. Reserve держит блокировки строк до конца
// транзакции, поэтому два конкурентных резервирования не могут оба увидеть
// достаточный остаток и увести его ниже нуля.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт репозиторий каталога поверх подключения Store.
func NewProductRepository(store *Store) *ProductRepository {
	return &ProductRepository{db: store.DB()}
}

// Create сохраняет товар и присваивает ему идентификатор.
func (r *ProductRepository) Create(product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO products (name, price_minor, stock, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, product.Name, product.PriceMinor, product.Stock, product.CreatedAt).Scan(&product.ID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}

	return product, nil
}

// Get возвращает товар или ErrProductNotFound.
func (r *ProductRepository) Get(id int64) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var product domain.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price_minor, stock, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.PriceMinor, &product.Stock, &product.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("select product %d: %w", id, err)
	}

	return product, nil
}

// List возвращает товары каталога по возрастанию идентификатора.
func (r *ProductRepository) List() ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, price_minor, stock, created_at
		FROM products
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(&product.ID, &product.Name, &product.PriceMinor, &product.Stock, &product.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	return products, nil
}

// Reserve атомарно списывает остаток по всем позициям: сначала блокирует и
// проверяет каждую строку, и только затем списывает. При нехватке хотя бы
// одной позиции транзакция откатывается и остатки не меняются вовсе.
func (r *ProductRepository) Reserve(items []domain.ReservationItem) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reserve tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	required, ids := aggregateByProduct(items)

	// Фаза проверки: строки блокируются в порядке возрастания идентификатора,
	// чтобы конкурентные резервирования не взаимоблокировались.
	for _, id := range ids {
		var stock int32
		err := tx.QueryRowContext(ctx, `
			SELECT stock FROM products WHERE id = $1 FOR UPDATE
		`, id).Scan(&stock)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrProductNotFound
		}
		if err != nil {
			return fmt.Errorf("lock product %d: %w", id, err)
		}
		if stock < required[id] {
			return &domain.InsufficientStockError{ProductID: id}
		}
	}

	// Фаза списания.
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $1 WHERE id = $2
		`, required[id], id); err != nil {
			return fmt.Errorf("decrement stock for product %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reserve tx: %w", err)
	}
	return nil
}

// Release атомарно возвращает остаток по позициям (компенсация).
func (r *ProductRepository) Release(items []domain.ReservationItem) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin release tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	restored, ids := aggregateByProduct(items)
	for _, id := range ids {
		result, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock + $1 WHERE id = $2
		`, restored[id], id)
		if err != nil {
			return fmt.Errorf("increment stock for product %d: %w", id, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected for product %d: %w", id, err)
		}
		if affected == 0 {
			return domain.ErrProductNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit release tx: %w", err)
	}
	return nil
}

// aggregateByProduct суммирует количество по товару (повторные позиции одного
// товара учитываются совокупно) и возвращает идентификаторы по возрастанию.
func aggregateByProduct(items []domain.ReservationItem) (map[int64]int32, []int64) {
	totals := make(map[int64]int32, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, seen := totals[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		totals[item.ProductID] += item.Qty
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return totals, ids
}

var (
	_ domain.ProductRepository = (*ProductRepository)(nil)
	_ domain.StockLedger       = (*ProductRepository)(nil)
)
