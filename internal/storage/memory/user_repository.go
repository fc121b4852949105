package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// userRepositoryInMemory — in-memory справочник пользователей.
type userRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[int64]domain.User
	lastID int64
}

// NewUserRepository возвращает in-memory справочник для локальной разработки и тестов.
func NewUserRepository() domain.UserRepository {
	return &userRepositoryInMemory{
		items: make(map[int64]domain.User),
	}
}

// Create сохраняет пользователя и присваивает ему следующий идентификатор.
func (r *userRepositoryInMemory) Create(user domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	user.ID = r.lastID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	r.items[user.ID] = user
	return user, nil
}

// Get возвращает пользователя или ErrUserNotFound, если его нет.
func (r *userRepositoryInMemory) Get(id int64) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.items[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// List возвращает пользователей по возрастанию идентификатора.
func (r *userRepositoryInMemory) List() ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.User, 0, len(r.items))
	for _, user := range r.items {
		result = append(result, user)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

var _ domain.UserRepository = (*userRepositoryInMemory)(nil)
