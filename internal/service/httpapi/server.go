package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
)

const defaultListOrdersLimit = 100

// Server реализует REST API витрины поверх менеджера жизненного цикла заказов.
type Server struct {
	lifecycle *lifecycle.Manager
	products  domain.ProductRepository
	users     domain.UserRepository
	idem      domain.IdempotencyRepository
	logger    *log.Entry
}

// NewServer конструирует сервер с зависимостями. Репозиторий идемпотентности
// опционален: без него POST /api/orders обрабатывается без кэширования ответов.
func NewServer(
	manager *lifecycle.Manager,
	products domain.ProductRepository,
	users domain.UserRepository,
	idem domain.IdempotencyRepository,
	logger *log.Entry,
) *Server {
	if logger == nil {
		logger = log.New().WithField("component", "httpapi")
	}
	return &Server{
		lifecycle: manager,
		products:  products,
		users:     users,
		idem:      idem,
		logger:    logger,
	}
}

// Router собирает gin-маршрутизатор со всеми эндпоинтами API.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Idempotency-Key"},
		MaxAge:       12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		api.GET("/products", s.listProducts)
		api.GET("/products/:id", s.getProduct)

		api.GET("/users", s.listUsers)
		api.GET("/users/:userId/orders", s.listUserOrders)

		api.POST("/orders", s.createOrder)
		api.GET("/orders", s.listOrders)
		api.GET("/orders/:id", s.getOrder)
		api.GET("/orders/:id/timeline", s.getOrderTimeline)
		api.PUT("/orders/:id/confirm", s.confirmOrder)
		api.PUT("/orders/:id/ship", s.shipOrder)
		api.PUT("/orders/:id/cancel", s.cancelOrder)
	}

	return router
}
