package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Metrics содержит все метрики приложения
type Metrics struct {
	logger *zap.Logger

	// Счетчики
	aiRequests       *prometheus.CounterVec
	aiFallbacks      *prometheus.CounterVec
	registrations    *prometheus.CounterVec
	testsCompleted   *prometheus.CounterVec
	plansGenerated   *prometheus.CounterVec
	topicsCompleted  *prometheus.CounterVec
	stageTransitions *prometheus.CounterVec

	// Гистограммы
	aiResponseTime *prometheus.HistogramVec

	// Gauge метрики
	aiInFlight prometheus.Gauge
}

// New создает метрики и регистрирует их в reg
func New(logger *zap.Logger, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logger: logger,

		aiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_requests_total",
				Help: "Общее количество запросов к ассистенту",
			},
			[]string{"kind", "status"}, // kind: questions, analysis, plan, lesson; status: success, failed
		),

		aiFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_fallbacks_total",
				Help: "Сколько раз вместо ответа ассистента использованы данные по умолчанию",
			},
			[]string{"kind"},
		),

		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registrations_total",
				Help: "Завершенные регистрации",
			},
			[]string{"phone_source"}, // text, contact
		),

		testsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "level_tests_completed_total",
				Help: "Завершенные тесты уровня",
			},
			[]string{"level"},
		),

		plansGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learning_plans_generated_total",
				Help: "Созданные учебные планы",
			},
			[]string{"source"}, // ai, fallback
		),

		topicsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topics_completed_total",
				Help: "Пройденные темы учебного плана",
			},
			[]string{"level"},
		),

		stageTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dialog_stage_transitions_total",
				Help: "Переходы диалога между этапами",
			},
			[]string{"stage"},
		),

		aiResponseTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ai_response_time_seconds",
				Help:    "Время ответа ассистента в секундах",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"kind"},
		),

		aiInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ai_requests_in_flight",
				Help: "Запросы к ассистенту, ожидающие ответа",
			},
		),
	}

	reg.MustRegister(
		m.aiRequests,
		m.aiFallbacks,
		m.registrations,
		m.testsCompleted,
		m.plansGenerated,
		m.topicsCompleted,
		m.stageTransitions,
		m.aiResponseTime,
		m.aiInFlight,
	)

	return m
}

// IncrementCounter увеличивает счетчик по имени
func (m *Metrics) IncrementCounter(name string, labels ...string) {
	var counter *prometheus.CounterVec

	switch name {
	case "ai_requests_total":
		counter = m.aiRequests
	case "ai_fallbacks_total":
		counter = m.aiFallbacks
	case "registrations_total":
		counter = m.registrations
	case "level_tests_completed_total":
		counter = m.testsCompleted
	case "learning_plans_generated_total":
		counter = m.plansGenerated
	case "topics_completed_total":
		counter = m.topicsCompleted
	case "dialog_stage_transitions_total":
		counter = m.stageTransitions
	default:
		m.logger.Error("неизвестная метрика", zap.String("name", name))
		return
	}

	counter.WithLabelValues(labels...).Inc()
}

// TrackAIRequest отмечает начало запроса к ассистенту.
// Возвращенную функцию нужно вызвать по завершении запроса.
func (m *Metrics) TrackAIRequest(kind string) func(success bool) {
	start := time.Now()
	m.aiInFlight.Inc()

	return func(success bool) {
		m.aiInFlight.Dec()

		status := "success"
		if !success {
			status = "failed"
		}
		m.IncrementCounter("ai_requests_total", kind, status)
		m.aiResponseTime.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}

// RecordFallback записывает использование данных по умолчанию
func (m *Metrics) RecordFallback(kind string) {
	m.IncrementCounter("ai_fallbacks_total", kind)
	m.logger.Debug("использованы данные по умолчанию", zap.String("kind", kind))
}

// RecordRegistration записывает завершенную регистрацию
func (m *Metrics) RecordRegistration(phoneSource string) {
	m.IncrementCounter("registrations_total", phoneSource)
}

// RecordTestCompleted записывает завершенный тест уровня
func (m *Metrics) RecordTestCompleted(level string) {
	m.IncrementCounter("level_tests_completed_total", level)
}

// RecordPlanGenerated записывает созданный учебный план
func (m *Metrics) RecordPlanGenerated(source string) {
	m.IncrementCounter("learning_plans_generated_total", source)
}

// RecordTopicCompleted записывает пройденную тему
func (m *Metrics) RecordTopicCompleted(level string) {
	m.IncrementCounter("topics_completed_total", level)
}

// RecordStage записывает переход диалога на этап
func (m *Metrics) RecordStage(stage string) {
	m.IncrementCounter("dialog_stage_transitions_total", stage)
}
