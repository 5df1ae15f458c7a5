package stable

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics - Prometheus-метрики сервиса хранения лошадей
type Metrics struct {
	stored          *prometheus.CounterVec
	spawned         prometheus.Counter
	deleted         prometheus.Counter
	corrupted       prometheus.Counter
	partial         prometheus.Counter
	overwrites      prometheus.Counter
	storageErrors   *prometheus.CounterVec
	trackedHorses   prometheus.Gauge
	untouchedUnload prometheus.Counter
}

// NewMetrics создает метрики и регистрирует их в reg. При reg == nil метрики
// работают без регистрации (тесты).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "horsestore",
			Name:      "horses_stored_total",
			Help:      "Лошадей, сохраненных в слоты, по причине.",
		}, []string{"reason"}),
		spawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "horsestore",
			Name:      "horses_spawned_total",
			Help:      "Лошадей, восстановленных из слотов.",
		}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "horsestore",
			Name:      "horses_deleted_total",
			Help:      "Записей, удаленных командой.",
		}),
		corrupted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "horsestore",
			Name:      "records_corrupted_total",
			Help:      "Записей, которые не удалось декодировать.",
		}),
		partial: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "horsestore",
			Name:      "records_partial_total",
			Help:      "Записей, восстановленных без инвентаря.",
		}),
		overwrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "horsestore",
			Name:      "slot_overwrites_total",
			Help:      "Перезаписей занятого слота.",
		}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "horsestore",
			Name:      "storage_errors_total",
			Help:      "Сбоев хранилища по операции.",
		}, []string{"op"}),
		trackedHorses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "horsestore",
			Name:      "tracked_horses",
			Help:      "Живых лошадей в индексе владения.",
		}),
		untouchedUnload: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "horsestore",
			Name:      "unload_skipped_offline_total",
			Help:      "Лошадей в выгруженных чанках, оставленных из-за владельца не в сети.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.stored, m.spawned, m.deleted, m.corrupted, m.partial,
			m.overwrites, m.storageErrors, m.trackedHorses, m.untouchedUnload)
	}
	return m
}

// Stored возвращает счетчик сохранений по причине (для тестов и отчетов)
func (m *Metrics) Stored(reason Reason) prometheus.Counter {
	return m.stored.WithLabelValues(string(reason))
}

// StorageErrors возвращает счетчик сбоев хранилища по операции
func (m *Metrics) StorageErrors(op string) prometheus.Counter {
	return m.storageErrors.WithLabelValues(op)
}

// Corrupted возвращает счетчик испорченных записей
func (m *Metrics) Corrupted() prometheus.Counter {
	return m.corrupted
}

// Overwrites возвращает счетчик перезаписей слота
func (m *Metrics) Overwrites() prometheus.Counter {
	return m.overwrites
}

// TrackedHorses возвращает gauge отслеживаемых лошадей
func (m *Metrics) TrackedHorses() prometheus.Gauge {
	return m.trackedHorses
}
