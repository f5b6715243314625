package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthChecker проверяет доступность зависимости (БД, redis)
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler обрабатывает HTTP запросы для метрик и проверки здоровья
type Handler struct {
	gatherer prometheus.Gatherer
	checks   map[string]HealthChecker
	logger   *zap.Logger
}

// NewHandler создает новый обработчик метрик
func NewHandler(gatherer prometheus.Gatherer, checks map[string]HealthChecker, logger *zap.Logger) *Handler {
	return &Handler{
		gatherer: gatherer,
		checks:   checks,
		logger:   logger,
	}
}

// MetricsHandler возвращает HTTP handler для Prometheus метрик
func (h *Handler) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})
}

// HealthHandler возвращает статус здоровья сервиса
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(h.checks))

	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("проверка здоровья не пройдена", zap.String("component", name), zap.Error(err))
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     status,
		"service":    "englishai",
		"components": components,
	})
}
