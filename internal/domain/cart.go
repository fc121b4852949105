package domain

// CartLine — одна строка корзины: товар, количество и снимок цены
// на момент добавления. Строки хранятся как неизменяемые значения и
// заменяются целиком при любом обновлении.
type CartLine struct {
	ProductID  int64
	Qty        int32
	PriceMinor int64
}

// Cart — рабочий набор позиций будущего заказа до его оформления.
// Корзина живёт на стороне сессии и не переживает оформление заказа.
// Потокобезопасность не требуется: корзиной владеет создавший её контекст.
type Cart struct {
	lines []CartLine
}

// NewCart возвращает пустую корзину.
func NewCart() *Cart {
	return &Cart{}
}

// OrderItemRequest — позиция запроса на создание заказа.
// Цена не передаётся: сервер снимает её с актуальной цены каталога.
type OrderItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Qty       int32 `json:"qty" binding:"required,min=1"`
}

// CreateOrderRequest — неизменяемый payload оформления заказа.
type CreateOrderRequest struct {
	UserID int64              `json:"user_id" binding:"required"`
	Items  []OrderItemRequest `json:"items" binding:"required,dive"`
}

// AddItem добавляет qtyDelta единиц товара. Повторное добавление того же
// товара увеличивает количество существующей строки, а не создаёт новую.
// Товар с нулевым остатком отклоняется ещё на этапе корзины; проверка
// достаточности стока выполняется только при подтверждении заказа.
func (c *Cart) AddItem(product Product, qtyDelta int32) error {
	if qtyDelta <= 0 {
		return ErrInvalidQuantity
	}
	if !product.InStock() {
		return ErrOutOfStock
	}

	for i, line := range c.lines {
		if line.ProductID == product.ID {
			// Заменяем строку целиком, не мутируя существующее значение.
			c.lines[i] = CartLine{
				ProductID:  line.ProductID,
				Qty:        line.Qty + qtyDelta,
				PriceMinor: line.PriceMinor,
			}
			return nil
		}
	}

	c.lines = append(c.lines, CartLine{
		ProductID:  product.ID,
		Qty:        qtyDelta,
		PriceMinor: product.PriceMinor,
	})
	return nil
}

// SetQuantity устанавливает точное количество для строки.
// Удаление через нулевое количество запрещено — для этого есть RemoveItem.
func (c *Cart) SetQuantity(productID int64, qty int32) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	for i, line := range c.lines {
		if line.ProductID == productID {
			c.lines[i] = CartLine{
				ProductID:  line.ProductID,
				Qty:        qty,
				PriceMinor: line.PriceMinor,
			}
			return nil
		}
	}
	return ErrProductNotFound
}

// RemoveItem удаляет строку; отсутствие строки не считается ошибкой.
func (c *Cart) RemoveItem(productID int64) {
	for i, line := range c.lines {
		if line.ProductID == productID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}

// Clear опустошает корзину.
func (c *Cart) Clear() {
	c.lines = nil
}

// Len возвращает число строк корзины.
func (c *Cart) Len() int {
	return len(c.lines)
}

// Lines возвращает копию строк в порядке добавления.
func (c *Cart) Lines() []CartLine {
	out := make([]CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// TotalMinor возвращает сумму корзины: qty * price по всем строкам.
func (c *Cart) TotalMinor() int64 {
	var total int64
	for _, line := range c.lines {
		total += int64(line.Qty) * line.PriceMinor
	}
	return total
}

// ToOrderRequest собирает payload оформления заказа для пользователя.
// Снимки цен корзины в payload не попадают: авторитетная цена — у каталога.
func (c *Cart) ToOrderRequest(userID int64) (CreateOrderRequest, error) {
	if len(c.lines) == 0 {
		return CreateOrderRequest{}, ErrEmptyCart
	}

	items := make([]OrderItemRequest, 0, len(c.lines))
	for _, line := range c.lines {
		items = append(items, OrderItemRequest{
			ProductID: line.ProductID,
			Qty:       line.Qty,
		})
	}

	return CreateOrderRequest{UserID: userID, Items: items}, nil
}
