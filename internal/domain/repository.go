package domain

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ и присваивает ему следующий идентификатор.
	Create(order Order) (Order, error)
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id int64) (Order, error)
	// List возвращает заказы от новых к старым по идентификатору,
	// с опциональным ограничением на количество.
	List(limit int) ([]Order, error)
	// ListByUser возвращает заказы пользователя от новых к старым.
	ListByUser(userID int64, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// ProductRepository описывает каталог товаров.
type ProductRepository interface {
	// Create сохраняет товар и присваивает ему идентификатор.
	Create(product Product) (Product, error)
	// Get возвращает товар или ErrProductNotFound, если его нет.
	Get(id int64) (Product, error)
	// List возвращает товары каталога по возрастанию идентификатора.
	List() ([]Product, error)
}

// UserRepository описывает справочник пользователей.
type UserRepository interface {
	Create(user User) (User, error)
	Get(id int64) (User, error)
	List() ([]User, error)
}
