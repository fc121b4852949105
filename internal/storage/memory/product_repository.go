package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ProductRepository — in-memory каталог, одновременно выполняющий роль
// складского регистра (StockLedger). Проверка достаточности и списание
// выполняются под одним мьютексом, поэтому два конкурентных Reserve не
// могут оба увидеть достаточный остаток и увести его ниже нуля.
type ProductRepository struct {
	mu     sync.RWMutex
	items  map[int64]domain.Product
	lastID int64
}

// NewProductRepository возвращает in-memory каталог для локальной разработки и тестов.
func NewProductRepository() *ProductRepository {
	return &ProductRepository{
		items: make(map[int64]domain.Product),
	}
}

// Create сохраняет товар и присваивает ему следующий идентификатор.
func (r *ProductRepository) Create(product domain.Product) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	product.ID = r.lastID
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	r.items[product.ID] = product
	return product, nil
}

// Get возвращает товар или ErrProductNotFound, если его нет.
func (r *ProductRepository) Get(id int64) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// List возвращает товары каталога по возрастанию идентификатора.
func (r *ProductRepository) List() ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(r.items))
	for _, product := range r.items {
		result = append(result, product)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Reserve атомарно списывает остаток по всем позициям: сначала проверяет
// достаточность каждой, и только затем списывает. Частичного списания не
// бывает — при нехватке хотя бы одной позиции остатки не меняются вовсе.
func (r *ProductRepository) Reserve(items []domain.ReservationItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Суммируем количество по товару: повторные позиции одного товара
	// должны проверяться совокупно, а не по отдельности.
	required := make(map[int64]int32, len(items))
	order := make([]int64, 0, len(items))
	for _, item := range items {
		if _, seen := required[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		required[item.ProductID] += item.Qty
	}

	// Фаза проверки: ни одного изменения до полной валидации.
	for _, id := range order {
		product, ok := r.items[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		if product.Stock < required[id] {
			return &domain.InsufficientStockError{ProductID: id}
		}
	}

	// Фаза списания.
	for _, id := range order {
		product := r.items[id]
		product.Stock -= required[id]
		r.items[id] = product
	}
	return nil
}

// Release атомарно возвращает остаток по позициям. Как и Reserve,
// сначала валидирует все товары, и только потом меняет остатки —
// неизвестный товар не оставляет частичного возврата.
func (r *ProductRepository) Release(items []domain.ReservationItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	returned := make(map[int64]int32, len(items))
	order := make([]int64, 0, len(items))
	for _, item := range items {
		if _, seen := returned[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		returned[item.ProductID] += item.Qty
	}

	for _, id := range order {
		if _, ok := r.items[id]; !ok {
			return domain.ErrProductNotFound
		}
	}

	for _, id := range order {
		product := r.items[id]
		product.Stock += returned[id]
		r.items[id] = product
	}
	return nil
}

var (
	_ domain.ProductRepository = (*ProductRepository)(nil)
	_ domain.StockLedger       = (*ProductRepository)(nil)
)
