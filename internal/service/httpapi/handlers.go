package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

type productResponse struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	PriceMinor int64     `json:"price_minor"`
	Stock      int32     `json:"stock"`
	CreatedAt  time.Time `json:"created_at"`
}

type userResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type orderItemResponse struct {
	ProductID  int64 `json:"product_id"`
	Qty        int32 `json:"qty"`
	PriceMinor int64 `json:"price_minor"`
}

type orderResponse struct {
	ID          int64               `json:"id"`
	UserID      int64               `json:"user_id"`
	UserName    string              `json:"user_name,omitempty"`
	Status      string              `json:"status"`
	AmountMinor int64               `json:"amount_minor"`
	Items       []orderItemResponse `json:"items"`
	Version     int64               `json:"version"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:         p.ID,
		Name:       p.Name,
		PriceMinor: p.PriceMinor,
		Stock:      p.Stock,
		CreatedAt:  p.CreatedAt,
	}
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}
	return orderResponse{
		ID:          order.ID,
		UserID:      order.UserID,
		UserName:    order.UserName,
		Status:      string(order.Status),
		AmountMinor: order.AmountMinor,
		Items:       items,
		Version:     order.Version,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}

// statusFromError отображает доменные ошибки на HTTP-статусы:
// отсутствующие сущности — 404, конфликт версий — 409, нарушения
// валидации и правил перехода — 400, остальное — 500.
func statusFromError(err error) int {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsVersionConflict(err):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrUserRequired),
		errors.Is(err, domain.ErrItemQtyInvalid),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrUnknownStatus):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := statusFromError(err)
	if code == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(code, errorResponse{Error: "internal server error"})
		return
	}
	c.JSON(code, errorResponse{Error: err.Error()})
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid " + name})
		return 0, false
	}
	return id, true
}

func parseLimitQuery(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListOrdersLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListOrdersLimit
	}
	return limit
}

func (s *Server) listProducts(c *gin.Context) {
	products, err := s.products.List()
	if err != nil {
		s.writeError(c, err)
		return
	}
	result := make([]productResponse, 0, len(products))
	for _, p := range products {
		result = append(result, toProductResponse(p))
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getProduct(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	product, err := s.products.Get(id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(product))
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.users.List()
	if err != nil {
		s.writeError(c, err)
		return
	}
	result := make([]userResponse, 0, len(users))
	for _, u := range users {
		result = append(result, toUserResponse(u))
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listOrders(c *gin.Context) {
	orders, err := s.lifecycle.List(parseLimitQuery(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	result := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderResponse(order))
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listUserOrders(c *gin.Context) {
	userID, ok := parseIDParam(c, "userId")
	if !ok {
		return
	}
	if _, err := s.users.Get(userID); err != nil {
		s.writeError(c, err)
		return
	}
	orders, err := s.lifecycle.ListByUser(userID, parseLimitQuery(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	result := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderResponse(order))
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getOrder(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	order, err := s.lifecycle.Get(id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (s *Server) getOrderTimeline(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	events, err := s.lifecycle.Timeline(id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	result := make([]timelineEventResponse, 0, len(events))
	for _, event := range events {
		result = append(result, timelineEventResponse{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) confirmOrder(c *gin.Context) {
	s.applyTransition(c, s.lifecycle.Confirm)
}

func (s *Server) shipOrder(c *gin.Context) {
	s.applyTransition(c, s.lifecycle.Ship)
}

func (s *Server) cancelOrder(c *gin.Context) {
	s.applyTransition(c, s.lifecycle.Cancel)
}

func (s *Server) applyTransition(c *gin.Context, transition func(int64) (domain.Order, error)) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	order, err := transition(id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}
