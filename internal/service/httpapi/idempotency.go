package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyTTL       = 24 * time.Hour

	contentTypeJSON = "application/json; charset=utf-8"
)

// createOrder обрабатывает POST /api/orders. При наличии заголовка
// Idempotency-Key повтор с тем же ключом и телом возвращает закэшированный
// ответ первой попытки, а не создаёт второй заказ.
func (s *Server) createOrder(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "cannot read request body"})
		return
	}

	var req domain.CreateOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request payload"})
		return
	}

	key := strings.TrimSpace(c.GetHeader(idempotencyKeyHeader))
	if s.idem == nil || key == "" {
		code, payload := s.executeCreate(req)
		c.Data(code, contentTypeJSON, payload)
		return
	}

	hash := buildRequestHash(http.MethodPost, c.FullPath(), body)
	if _, err := s.idem.CreateProcessing(key, hash, time.Now().UTC().Add(idempotencyTTL)); err != nil {
		s.replayIdempotent(c, key, err)
		return
	}

	code, payload := s.executeCreate(req)
	if code >= http.StatusOK && code < http.StatusMultipleChoices {
		if err := s.idem.MarkDone(key, payload, code); err != nil {
			s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
		}
	} else {
		if err := s.idem.MarkFailed(key, payload, code); err != nil {
			s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent failure")
		}
	}
	c.Data(code, contentTypeJSON, payload)
}

// executeCreate выполняет создание заказа и возвращает готовую пару
// статус/тело — она же попадает в кэш идемпотентности.
func (s *Server) executeCreate(req domain.CreateOrderRequest) (int, []byte) {
	order, err := s.lifecycle.Create(req)
	if err != nil {
		code := statusFromError(err)
		msg := err.Error()
		if code == http.StatusInternalServerError {
			s.logger.WithError(err).Error("create order failed")
			msg = "internal server error"
		}
		payload, _ := json.Marshal(errorResponse{Error: msg})
		return code, payload
	}

	payload, err := json.Marshal(toOrderResponse(order))
	if err != nil {
		s.logger.WithError(err).Error("marshal order response failed")
		fallback, _ := json.Marshal(errorResponse{Error: "internal server error"})
		return http.StatusInternalServerError, fallback
	}
	return http.StatusCreated, payload
}

// replayIdempotent разбирает ошибку CreateProcessing и либо повторяет
// сохранённый ответ, либо отклоняет конфликтующий запрос.
func (s *Server) replayIdempotent(c *gin.Context, key string, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		c.JSON(http.StatusConflict, errorResponse{Error: domain.ErrIdempotencyHashMismatch.Error()})
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		record, err := s.idem.Get(key)
		if err != nil {
			s.logger.WithError(err).WithField("idempotency_key", key).Error("failed to load idempotency record")
			c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			return
		}
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			if record.HTTPStatus <= 0 || len(record.ResponseBody) == 0 {
				c.JSON(http.StatusInternalServerError, errorResponse{Error: "idempotency cache is empty"})
				return
			}
			c.Data(record.HTTPStatus, contentTypeJSON, record.ResponseBody)
		case domain.IdempotencyStatusProcessing:
			c.JSON(http.StatusConflict, errorResponse{Error: "request with the same idempotency key is already processing"})
		default:
			c.JSON(http.StatusInternalServerError, errorResponse{Error: "unknown idempotency record status"})
		}
	default:
		s.logger.WithError(createErr).WithField("idempotency_key", key).Error("failed to create idempotency record")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func buildRequestHash(method, path string, body []byte) string {
	payload := make([]byte, 0, len(method)+len(path)+len(body)+2)
	payload = append(payload, method...)
	payload = append(payload, ':')
	payload = append(payload, path...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
