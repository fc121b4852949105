package stock

import (
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockLedger — конфигурируемая заглушка StockLedger для тестов.
type MockLedger struct {
	mu sync.Mutex

	ReserveErr error
	ReleaseErr error

	ReserveCalls int
	ReleaseCalls int

	// Reserved накапливает все позиции, переданные в Reserve.
	Reserved []domain.ReservationItem
	// Released накапливает все позиции, переданные в Release.
	Released []domain.ReservationItem
}

// NewMockLedger возвращает mock с успешным сценарием по умолчанию.
func NewMockLedger() *MockLedger {
	return &MockLedger{}
}

// Reserve возвращает заранее настроенную ошибку и запоминает вызов.
func (m *MockLedger) Reserve(items []domain.ReservationItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReserveCalls++
	if m.ReserveErr != nil {
		return m.ReserveErr
	}
	m.Reserved = append(m.Reserved, items...)
	return nil
}

// Release возвращает заранее настроенную ошибку и запоминает вызов.
func (m *MockLedger) Release(items []domain.ReservationItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReleaseCalls++
	if m.ReleaseErr != nil {
		return m.ReleaseErr
	}
	m.Released = append(m.Released, items...)
	return nil
}

var _ domain.StockLedger = (*MockLedger)(nil)
