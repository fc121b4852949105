package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

// Dependencies содержит хранилища, из которых собирается приложение.
type Dependencies struct {
	Orders      domain.OrderRepository
	Products    domain.ProductRepository
	Users       domain.UserRepository
	Ledger      domain.StockLedger
	OutboxRepo  domain.OutboxRepository
	Timeline    domain.TimelineRepository
	Idempotency domain.IdempotencyRepository
	Logger      *log.Entry
}

// NewMemoryDependencies собирает зависимости поверх in-memory хранилищ.
// Каталог товаров одновременно выполняет роль складского регистра.
func NewMemoryDependencies(logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	products := memory.NewProductRepository()
	return &Dependencies{
		Orders:      memory.NewOrderRepository(),
		Products:    products,
		Users:       memory.NewUserRepository(),
		Ledger:      products,
		OutboxRepo:  memory.NewOutboxRepository(),
		Timeline:    memory.NewTimelineRepository(),
		Idempotency: memory.NewIdempotencyRepository(),
		Logger:      logger,
	}
}

// NewPostgresDependencies собирает зависимости поверх PostgreSQL.
func NewPostgresDependencies(store *postgres.Store, logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	products := postgres.NewProductRepository(store)
	return &Dependencies{
		Orders:      postgres.NewOrderRepository(store),
		Products:    products,
		Users:       postgres.NewUserRepository(store),
		Ledger:      products,
		OutboxRepo:  postgres.NewOutboxRepository(store),
		Timeline:    postgres.NewTimelineRepository(store),
		Idempotency: postgres.NewIdempotencyRepository(store),
		Logger:      logger,
	}
}

// SeedDemoData наполняет пустой каталог демонстрационными пользователями
// и товарами; на непустом каталоге ничего не делает.
func (d *Dependencies) SeedDemoData() error {
	users, err := d.Users.List()
	if err != nil {
		return err
	}
	if len(users) == 0 {
		seedUsers := []domain.User{
			{Name: "Juan Pérez", Email: "juan.perez@example.com"},
			{Name: "María García", Email: "maria.garcia@example.com"},
			{Name: "Carlos López", Email: "carlos.lopez@example.com"},
		}
		for _, user := range seedUsers {
			if _, err := d.Users.Create(user); err != nil {
				return err
			}
		}
	}

	products, err := d.Products.List()
	if err != nil {
		return err
	}
	if len(products) == 0 {
		seedProducts := []domain.Product{
			{Name: "Laptop Dell XPS 13", PriceMinor: 99999, Stock: 5},
			{Name: "Mouse Logitech MX Master", PriceMinor: 8999, Stock: 20},
			{Name: "Keyboard Keychron K2", PriceMinor: 7999, Stock: 15},
			{Name: "Monitor LG UltraWide", PriceMinor: 34999, Stock: 8},
		}
		for _, product := range seedProducts {
			if _, err := d.Products.Create(product); err != nil {
				return err
			}
		}
	}

	return nil
}
