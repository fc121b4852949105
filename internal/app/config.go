package app

import (
	"os"
	"strings"
)

// Config описывает настройки запуска приложения.
type Config struct {
	// HTTPAddr — адрес публичного REST API.
	HTTPAddr string
	// MetricsAddr — адрес служебного HTTP-сервера (метрики и health checks).
	MetricsAddr string
	// PostgresDSN — строка подключения к PostgreSQL; пустая строка включает
	// in-memory хранилище для локальной разработки и демо.
	PostgresDSN string
	// KafkaBrokers — список брокеров Kafka; пустой список отключает публикацию.
	KafkaBrokers []string
}

// DefaultConfig возвращает базовые адреса HTTP API и метрик.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
	}
}

// LoadConfig формирует конфигурацию, позволяя переопределить
// значения через переменные окружения.
func LoadConfig() Config {
	cfg := DefaultConfig()
	if v := strings.TrimSpace(os.Getenv("STOREFRONT_HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("STOREFRONT_METRICS_ADDR")); v != "" {
		cfg.MetricsAddr = v
	}
	cfg.PostgresDSN = strings.TrimSpace(os.Getenv("STOREFRONT_POSTGRES_DSN"))
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		for _, broker := range strings.Split(v, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}
	return cfg
}
