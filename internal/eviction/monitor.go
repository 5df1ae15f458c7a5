// Package eviction периодически проверяет живых лошадей владельцев в сети и
// сохраняет тех, кто ушел дальше допустимого расстояния.
package eviction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/horsestore/internal/engine"
	"github.com/annel0/horsestore/internal/logging"
	"github.com/annel0/horsestore/internal/ownership"
	"github.com/annel0/horsestore/internal/stable"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Значения по умолчанию
const (
	DefaultMaxDistance = 50.0
	DefaultInterval    = 10 * time.Second
)

var tracer = otel.Tracer("github.com/annel0/horsestore/internal/eviction")

// Storer сохраняет живую лошадь владельца
type Storer interface {
	Store(ctx context.Context, owner uuid.UUID, id engine.ObjectID, reason stable.Reason) (int, error)
}

// Config настраивает монитор
type Config struct {
	MaxDistance float64       // Порог расстояния до владельца
	Interval    time.Duration // Период проверки
}

// TickStats - итог одного прохода
type TickStats struct {
	Owners  int // Проверено владельцев в сети
	Checked int // Проверено живых лошадей
	Pruned  int // Удалено устаревших записей индекса
	Stored  int // Сохранено лошадей
	Failed  int // Ошибок сохранения и сбоев обработки
}

// Monitor - периодическая задача выселения. Проход, не успевший
// завершиться к следующему тику, приводит к пропуску тика.
type Monitor struct {
	storer  Storer
	engine  engine.Engine
	index   *ownership.Index
	cfg     Config
	metrics *Metrics
	logger  *logging.Logger

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewMonitor создает монитор. metrics может быть nil.
func NewMonitor(storer Storer, eng engine.Engine, index *ownership.Index, cfg Config, metrics *Metrics) *Monitor {
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = DefaultMaxDistance
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Monitor{
		storer:  storer,
		engine:  eng,
		index:   index,
		cfg:     cfg,
		metrics: metrics,
		logger:  logging.GetEvictionLogger(),
	}
}

// Run запускает проходы с периодом Interval до отмены ctx.
// Каждый проход выполняется в отдельной горутине; занятый монитор пропускает тик.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Info("Монитор выселения запущен: порог %.1f, период %s", m.cfg.MaxDistance, m.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			m.logger.Info("Монитор выселения остановлен")
			return
		case <-ticker.C:
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				m.Tick(ctx)
			}()
		}
	}
}

// Tick выполняет один проход. Возвращает false, если предыдущий проход
// еще идет и этот пропущен.
func (m *Monitor) Tick(ctx context.Context) (TickStats, bool) {
	if !m.running.CompareAndSwap(false, true) {
		m.metrics.ticks.WithLabelValues("skipped").Inc()
		m.logger.Debug("Предыдущий проход еще выполняется, тик пропущен")
		return TickStats{}, false
	}
	defer m.running.Store(false)

	ctx, span := tracer.Start(ctx, "eviction.Tick")
	defer span.End()

	started := time.Now()
	var stats TickStats
	for _, owner := range m.engine.ConnectedOwners() {
		if ctx.Err() != nil {
			break
		}
		stats.Owners++
		m.checkOwner(ctx, owner, &stats)
	}

	m.metrics.ticks.WithLabelValues("completed").Inc()
	m.metrics.duration.Observe(time.Since(started).Seconds())
	m.metrics.pruned.Add(float64(stats.Pruned))
	m.metrics.evicted.Add(float64(stats.Stored))

	span.SetAttributes(
		attribute.Int("owners", stats.Owners),
		attribute.Int("checked", stats.Checked),
		attribute.Int("pruned", stats.Pruned),
		attribute.Int("stored", stats.Stored),
	)
	if stats.Stored > 0 || stats.Failed > 0 {
		m.logger.Info("Проход выселения: владельцев %d, лошадей %d, сохранено %d, очищено %d, ошибок %d",
			stats.Owners, stats.Checked, stats.Stored, stats.Pruned, stats.Failed)
	}
	return stats, true
}

// checkOwner обрабатывает одного владельца. Паника или ошибка одного
// владельца не прерывает проход по остальным.
func (m *Monitor) checkOwner(ctx context.Context, owner uuid.UUID, stats *TickStats) {
	defer func() {
		if r := recover(); r != nil {
			stats.Failed++
			m.metrics.failures.Inc()
			m.logger.Error("Паника при проверке владельца %s: %v", owner, r)
		}
	}()

	ownerLoc, ok := m.engine.OwnerLocation(owner)
	if !ok {
		return // Вышел во время прохода; лошадей сохранит обработчик выхода
	}

	for _, id := range m.index.LiveObjectsOf(owner) {
		stats.Checked++

		loc, ok := m.engine.Resolve(id)
		if !ok {
			if m.index.Untrack(owner, id) {
				stats.Pruned++
				m.logger.Debug("Лошадь %s владельца %s больше не существует, запись удалена", id, owner)
			}
			continue
		}

		if m.engine.Distance(ownerLoc, loc) <= m.cfg.MaxDistance {
			continue
		}

		slot, err := m.storer.Store(ctx, owner, id, stable.ReasonDistance)
		if errors.Is(err, stable.ErrObjectGone) {
			// Лошадь успел забрать выход владельца или ручное сохранение
			stats.Pruned++
			m.logger.Debug("Лошадь %s владельца %s исчезла до сохранения", id, owner)
			continue
		}
		if err != nil {
			stats.Failed++
			m.metrics.failures.Inc()
			m.logger.Warn("Не удалось сохранить далекую лошадь %s владельца %s: %v", id, owner, err)
			continue
		}
		stats.Stored++
		m.logger.Debug("Лошадь %s ушла дальше %.1f блоков и сохранена в слот %d", id, m.cfg.MaxDistance, slot)
	}
}

// Metrics - Prometheus-метрики монитора
type Metrics struct {
	ticks    *prometheus.CounterVec
	duration prometheus.Histogram
	pruned   prometheus.Counter
	evicted  prometheus.Counter
	failures prometheus.Counter
}

// NewMetrics создает метрики монитора и регистрирует их в reg, если он задан
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "horsestore",
			Subsystem: "eviction",
			Name:      "ticks_total",
			Help:      "Проходов монитора по результату (completed, skipped).",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "horsestore",
			Subsystem: "eviction",
			Name:      "tick_duration_seconds",
			Help:      "Длительность прохода монитора.",
			Buckets:   prometheus.DefBuckets,
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "horsestore",
			Subsystem: "eviction",
			Name:      "stale_pruned_total",
			Help:      "Устаревших записей индекса, удаленных монитором.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "horsestore",
			Subsystem: "eviction",
			Name:      "horses_evicted_total",
			Help:      "Лошадей, сохраненных из-за расстояния.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "horsestore",
			Subsystem: "eviction",
			Name:      "failures_total",
			Help:      "Ошибок при обработке владельцев.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ticks, m.duration, m.pruned, m.evicted, m.failures)
	}
	return m
}

// Ticks возвращает счетчик проходов по результату
func (m *Metrics) Ticks(result string) prometheus.Counter {
	return m.ticks.WithLabelValues(result)
}

func (s TickStats) String() string {
	return fmt.Sprintf("owners=%d checked=%d stored=%d pruned=%d failed=%d", s.Owners, s.Checked, s.Stored, s.Pruned, s.Failed)
}
