package domain

import "time"

// Product — позиция каталога. Остаток меняется только через StockLedger
// в ответ на переходы жизненного цикла заказа.
type Product struct {
	ID int64
	// Name — отображаемое имя товара.
	Name string
	// PriceMinor — актуальная цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	// Stock — доступный остаток; никогда не опускается ниже нуля.
	Stock     int32
	CreatedAt time.Time
}

// InStock сообщает, доступен ли товар для добавления в корзину.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// User — покупатель; используется только для привязки имени к заказу.
type User struct {
	ID        int64
	Name      string
	Email     string
	CreatedAt time.Time
}
