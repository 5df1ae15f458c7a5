// Package stable - сервис хранения лошадей: сохранение живых лошадей в слоты
// владельца, восстановление из слотов, удаление и просмотр, а также реакция
// на события движка (вход и выход владельца, выгрузка чанка).
package stable

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/annel0/horsestore/internal/codec"
	"github.com/annel0/horsestore/internal/engine"
	"github.com/annel0/horsestore/internal/horse"
	"github.com/annel0/horsestore/internal/logging"
	"github.com/annel0/horsestore/internal/ownership"
	"github.com/annel0/horsestore/internal/storage"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Reason - причина сохранения лошади
type Reason string

const (
	ReasonDistance   Reason = "distance"
	ReasonDisconnect Reason = "disconnect"
	ReasonUnload     Reason = "unload"
	ReasonManual     Reason = "manual"
)

// Значения по умолчанию
const (
	DefaultSlots         = 10
	DefaultNearbyRadius  = 5.0
	DefaultSpawnDistance = 2.0
)

const ownerLockStripes = 64

var tracer = otel.Tracer("github.com/annel0/horsestore/internal/stable")

// Options настраивает Service
type Options struct {
	Slots         int              // N, число слотов владельца
	Exhaustion    ExhaustionPolicy // Поведение при занятых слотах
	NearbyRadius  float64          // Радиус поиска лошади для ручного сохранения
	SpawnDistance float64          // Расстояние перед владельцем при восстановлении
	Metrics       *Metrics
	Logger        *logging.Logger
}

// Service связывает хранилище, кодек, индекс владения и движок.
// Все методы безопасны для конкурентного вызова из команд, событий и монитора.
type Service struct {
	store     storage.Store
	engine    engine.Engine
	index     *ownership.Index
	allocator *SlotAllocator
	metrics   *Metrics
	logger    *logging.Logger

	nearbyRadius  float64
	spawnDistance float64

	// Последовательности операций одного владельца выполняются под его блокировкой
	ownerLocks [ownerLockStripes]sync.Mutex
}

// StoreResult - итог сохранения
type StoreResult struct {
	Slot      int
	Object    engine.ObjectID
	Overwrote bool // Слот был занят и перезаписан
}

// SpawnResult - итог восстановления
type SpawnResult struct {
	Object  engine.ObjectID
	State   horse.State
	Partial bool // Инвентарь испорчен, восстановлены только скаляры
}

// NewService создает сервис. Нулевые поля opts заменяются значениями по умолчанию.
func NewService(store storage.Store, eng engine.Engine, index *ownership.Index, opts Options) *Service {
	if opts.Slots <= 0 {
		opts.Slots = DefaultSlots
	}
	if !opts.Exhaustion.Valid() {
		opts.Exhaustion = ExhaustionOverwrite
	}
	if opts.NearbyRadius <= 0 {
		opts.NearbyRadius = DefaultNearbyRadius
	}
	if opts.SpawnDistance <= 0 {
		opts.SpawnDistance = DefaultSpawnDistance
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetStableLogger()
	}

	return &Service{
		store:         store,
		engine:        eng,
		index:         index,
		allocator:     NewSlotAllocator(store, opts.Slots, opts.Exhaustion, opts.Logger),
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		nearbyRadius:  opts.NearbyRadius,
		spawnDistance: opts.SpawnDistance,
	}
}

// Index возвращает индекс владения
func (s *Service) Index() *ownership.Index {
	return s.index
}

// Engine возвращает движок
func (s *Service) Engine() engine.Engine {
	return s.engine
}

// Slots возвращает N
func (s *Service) Slots() int {
	return s.allocator.Slots()
}

// Metrics возвращает метрики сервиса
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

func (s *Service) lockOwner(owner uuid.UUID) func() {
	mu := &s.ownerLocks[binary.BigEndian.Uint64(owner[8:])%ownerLockStripes]
	mu.Lock()
	return mu.Unlock
}

func (s *Service) startSpan(ctx context.Context, name string, owner uuid.UUID, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("owner", owner.String()))
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) updateTracked() {
	s.metrics.trackedHorses.Set(float64(s.index.Count()))
}

//================ Сохранение =================//

// Store сохраняет живую лошадь владельца в первый свободный слот и убирает ее
// из симуляции. Возвращает номер слота.
//
// Если запись в хранилище не удалась, лошадь остается живой и отслеживаемой.
func (s *Service) Store(ctx context.Context, owner uuid.UUID, id engine.ObjectID, reason Reason) (slot int, err error) {
	ctx, span := s.startSpan(ctx, "stable.Store", owner, attribute.String("reason", string(reason)))
	defer func() { endSpan(span, err) }()

	unlock := s.lockOwner(owner)
	defer unlock()

	res, err := s.storeLocked(ctx, owner, id, 0, reason)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("slot", res.Slot))
	return res.Slot, nil
}

// StoreInSlot сохраняет известную лошадь в указанный слот, перезаписывая его
func (s *Service) StoreInSlot(ctx context.Context, owner uuid.UUID, slot int, id engine.ObjectID) (res StoreResult, err error) {
	if err := s.allocator.CheckSlot(slot); err != nil {
		return StoreResult{}, err
	}

	ctx, span := s.startSpan(ctx, "stable.StoreInSlot", owner, attribute.Int("slot", slot))
	defer func() { endSpan(span, err) }()

	unlock := s.lockOwner(owner)
	defer unlock()

	return s.storeLocked(ctx, owner, id, slot, ReasonManual)
}

// StoreNearest находит ближайшую лошадь владельца в радиусе и сохраняет ее
// в указанный слот
func (s *Service) StoreNearest(ctx context.Context, owner uuid.UUID, slot int) (res StoreResult, err error) {
	if err := s.allocator.CheckSlot(slot); err != nil {
		return StoreResult{}, err
	}

	ctx, span := s.startSpan(ctx, "stable.StoreNearest", owner, attribute.Int("slot", slot))
	defer func() { endSpan(span, err) }()

	loc, ok := s.engine.OwnerLocation(owner)
	if !ok {
		return StoreResult{}, ErrOwnerOffline
	}

	nearby := s.engine.NearbyOwnedHorses(owner, loc, s.nearbyRadius)
	if len(nearby) == 0 {
		return StoreResult{}, ErrNoHorseNearby
	}

	unlock := s.lockOwner(owner)
	defer unlock()

	return s.storeLocked(ctx, owner, nearby[0], slot, ReasonManual)
}

// storeLocked выполняет сохранение под блокировкой владельца.
// slot == 0 - выбрать слот аллокатором.
func (s *Service) storeLocked(ctx context.Context, owner uuid.UUID, id engine.ObjectID, slot int, reason Reason) (StoreResult, error) {
	state, err := s.engine.CaptureState(id)
	if err != nil {
		if errors.Is(err, engine.ErrNoSuchObject) {
			s.index.Untrack(owner, id)
			s.updateTracked()
			return StoreResult{}, fmt.Errorf("%w: %s", ErrObjectGone, id)
		}
		return StoreResult{}, fmt.Errorf("capture state %s: %w", id, err)
	}

	data, err := codec.EncodeText(state)
	if err != nil {
		return StoreResult{}, fmt.Errorf("encode horse %s: %w", id, err)
	}

	res := StoreResult{Slot: slot, Object: id}
	if slot == 0 {
		res.Slot, res.Overwrote, err = s.allocator.PickSlot(ctx, owner)
		if err != nil {
			if storage.IsStorageError(err) {
				s.metrics.StorageErrors("get").Inc()
			}
			return StoreResult{}, err
		}
	} else {
		_, res.Overwrote, err = s.store.Get(ctx, storage.Key{Owner: owner, Slot: slot})
		if err != nil {
			s.metrics.StorageErrors("get").Inc()
			return StoreResult{}, err
		}
	}

	key := storage.Key{Owner: owner, Slot: res.Slot}
	if err := s.store.Upsert(ctx, key, data); err != nil {
		// Данные не сохранены: живую лошадь не трогаем
		s.metrics.StorageErrors("upsert").Inc()
		s.logger.Error("Не удалось сохранить лошадь %s владельца %s в слот %d: %v", id, owner, res.Slot, err)
		return StoreResult{}, err
	}

	s.index.Untrack(owner, id)
	if err := s.engine.RemoveObject(id); err != nil {
		s.logger.Warn("Лошадь %s сохранена в слот %d, но не удалена из мира: %v", id, res.Slot, err)
	}
	s.updateTracked()

	if res.Overwrote {
		s.metrics.overwrites.Inc()
	}
	s.metrics.Stored(reason).Inc()
	s.logger.Info("Лошадь %s владельца %s сохранена в слот %d (%s)", id, owner, res.Slot, reason)
	return res, nil
}

//================ Восстановление =================//

// Spawn восстанавливает лошадь из слота перед владельцем и освобождает слот.
//
// Запись, которая не декодируется, остается в слоте и дает ErrCorrupted.
// Если испорчен только инвентарь, лошадь восстанавливается без него.
func (s *Service) Spawn(ctx context.Context, owner uuid.UUID, slot int) (res SpawnResult, err error) {
	if err := s.allocator.CheckSlot(slot); err != nil {
		return SpawnResult{}, err
	}

	ctx, span := s.startSpan(ctx, "stable.Spawn", owner, attribute.Int("slot", slot))
	defer func() { endSpan(span, err) }()

	unlock := s.lockOwner(owner)
	defer unlock()

	loc, ok := s.engine.OwnerLocation(owner)
	if !ok {
		return SpawnResult{}, ErrOwnerOffline
	}

	key := storage.Key{Owner: owner, Slot: slot}
	data, found, err := s.store.Get(ctx, key)
	if err != nil {
		s.metrics.StorageErrors("get").Inc()
		s.logger.Error("Не удалось прочитать слот %s: %v", key, err)
		return SpawnResult{}, err
	}
	if !found {
		return SpawnResult{}, ErrNotFound
	}

	state, err := codec.DecodeText(data)
	switch {
	case err == nil:
	case codec.IsPartial(err):
		s.metrics.partial.Inc()
		s.logger.Warn("Инвентарь лошади в слоте %s испорчен, восстанавливаю без него: %v", key, err)
		res.Partial = true
	default:
		s.metrics.corrupted.Inc()
		s.logger.Warn("Запись в слоте %s испорчена и оставлена на месте: %v", key, err)
		return SpawnResult{}, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}

	id, err := s.engine.CreateObject(engine.KindHorse, loc.Ahead(s.spawnDistance), owner)
	if err != nil {
		return SpawnResult{}, fmt.Errorf("create horse: %w", err)
	}
	if err := s.engine.ApplyState(id, state); err != nil {
		s.rollbackSpawn(owner, id)
		return SpawnResult{}, fmt.Errorf("apply state: %w", err)
	}

	s.index.Track(owner, id)
	if err := s.store.Delete(ctx, key); err != nil {
		// Сохраненная копия не поглощена: откатываем, чтобы не было дубликата
		s.metrics.StorageErrors("delete").Inc()
		s.rollbackSpawn(owner, id)
		s.logger.Error("Не удалось освободить слот %s, восстановление отменено: %v", key, err)
		return SpawnResult{}, err
	}
	s.updateTracked()

	spawned, err := s.engine.CaptureState(id)
	if err != nil {
		spawned = state
	}

	s.metrics.spawned.Inc()
	s.logger.Info("Лошадь из слота %d восстановлена для %s как %s", slot, owner, id)
	res.Object = id
	res.State = spawned
	return res, nil
}

func (s *Service) rollbackSpawn(owner uuid.UUID, id engine.ObjectID) {
	s.index.Untrack(owner, id)
	if err := s.engine.RemoveObject(id); err != nil {
		s.logger.Warn("Откат восстановления: лошадь %s не удалена: %v", id, err)
	}
	s.updateTracked()
}

//================ Удаление и просмотр =================//

// Delete удаляет запись из слота. Пустой слот дает ErrNotFound.
func (s *Service) Delete(ctx context.Context, owner uuid.UUID, slot int) error {
	if err := s.allocator.CheckSlot(slot); err != nil {
		return err
	}

	unlock := s.lockOwner(owner)
	defer unlock()

	key := storage.Key{Owner: owner, Slot: slot}
	_, found, err := s.store.Get(ctx, key)
	if err != nil {
		s.metrics.StorageErrors("get").Inc()
		return err
	}
	if !found {
		return ErrNotFound
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.metrics.StorageErrors("delete").Inc()
		return err
	}

	s.metrics.deleted.Inc()
	s.logger.Info("Лошадь в слоте %d владельца %s удалена", slot, owner)
	return nil
}

// Summary - краткое описание сохраненной лошади
type Summary struct {
	Slot      int    `json:"slot"`
	Name      string `json:"name,omitempty"`
	Color     string `json:"color,omitempty"`
	Style     string `json:"style,omitempty"`
	World     string `json:"world,omitempty"`
	Corrupted bool   `json:"corrupted,omitempty"`
	Partial   bool   `json:"partial,omitempty"`
}

func summarize(slot int, data []byte) Summary {
	sum := Summary{Slot: slot}
	state, err := codec.DecodeText(data)
	if err != nil && !codec.IsPartial(err) {
		sum.Corrupted = true
		return sum
	}
	sum.Partial = err != nil
	sum.Name = state.Name()
	sum.Color = state.Color.String()
	sum.Style = state.Style.String()
	sum.World = state.World
	return sum
}

// List возвращает описания занятых слотов по возрастанию номера.
// Испорченная запись попадает в список с флагом Corrupted.
func (s *Service) List(ctx context.Context, owner uuid.UUID) ([]Summary, error) {
	slots, err := s.store.ListSlots(ctx, owner)
	if err != nil {
		s.metrics.StorageErrors("list").Inc()
		return nil, err
	}

	out := make([]Summary, 0, len(slots))
	for _, slot := range slots {
		data, found, err := s.store.Get(ctx, storage.Key{Owner: owner, Slot: slot})
		if err != nil {
			s.metrics.StorageErrors("get").Inc()
			return nil, err
		}
		if !found {
			continue // Удалена между ListSlots и Get
		}
		out = append(out, summarize(slot, data))
	}
	return out, nil
}

// MenuEntry - ячейка меню слотов
type MenuEntry struct {
	Slot     int      `json:"slot"`
	Occupied bool     `json:"occupied"`
	Horse    *Summary `json:"horse,omitempty"`
}

// Menu возвращает ровно N ячеек, по одной на слот
func (s *Service) Menu(ctx context.Context, owner uuid.UUID) ([]MenuEntry, error) {
	list, err := s.List(ctx, owner)
	if err != nil {
		return nil, err
	}

	entries := make([]MenuEntry, s.Slots())
	for i := range entries {
		entries[i].Slot = i + 1
	}
	for i := range list {
		sum := list[i]
		if sum.Slot < 1 || sum.Slot > len(entries) {
			continue
		}
		entries[sum.Slot-1].Occupied = true
		entries[sum.Slot-1].Horse = &sum
	}
	return entries, nil
}

//================ События движка =================//

// OwnerConnected заводит запись владельца в индексе
func (s *Service) OwnerConnected(ctx context.Context, owner uuid.UUID) {
	s.index.Activate(owner)
	s.logger.Debug("Владелец %s в сети", owner)
}

// OwnerDisconnected сохраняет всех живых лошадей владельца и удаляет его из индекса.
// Лошади, которых не удалось записать, остаются за владельцем до следующей попытки.
// Если к моменту обработки владелец уже снова в сети, событие устарело и пропускается.
func (s *Service) OwnerDisconnected(ctx context.Context, owner uuid.UUID) {
	ctx, span := s.startSpan(ctx, "stable.OwnerDisconnected", owner)
	defer span.End()

	unlock := s.lockOwner(owner)
	defer unlock()

	if s.engine.IsConnected(owner) {
		span.SetAttributes(attribute.Bool("stale", true))
		s.logger.Debug("Выход владельца %s пропущен: он снова в сети", owner)
		return
	}

	stored := 0
	var failed []engine.ObjectID
	for _, id := range s.index.LiveObjectsOf(owner) {
		_, err := s.storeLocked(ctx, owner, id, 0, ReasonDisconnect)
		switch {
		case err == nil:
			stored++
		case errors.Is(err, ErrObjectGone):
			s.logger.Debug("Лошадь %s владельца %s уже исчезла", id, owner)
		default:
			failed = append(failed, id)
			s.logger.Error("Лошадь %s владельца %s не сохранена при выходе: %v", id, owner, err)
		}
	}

	// Сохраненные и исчезнувшие уже сняты с учета в storeLocked
	if len(failed) == 0 {
		s.index.DropOwner(owner)
	}
	s.updateTracked()
	span.SetAttributes(attribute.Int("stored", stored), attribute.Int("failed", len(failed)))
	if stored > 0 || len(failed) > 0 {
		s.logger.Info("Владелец %s вышел: сохранено %d, ошибок %d", owner, stored, len(failed))
	}
}

// RegionDeactivated сохраняет отслеживаемых лошадей из выгруженного чанка,
// если их владелец в сети. Лошади владельцев не в сети не трогаются.
func (s *Service) RegionDeactivated(ctx context.Context, region engine.Region, members []engine.ObjectID) {
	for _, id := range members {
		owner, ok := s.index.OwnerOf(id)
		if !ok {
			continue
		}
		if !s.engine.IsConnected(owner) {
			s.metrics.untouchedUnload.Inc()
			s.logger.Debug("Лошадь %s в выгруженном чанке оставлена: владелец %s не в сети", id, owner)
			continue
		}
		s.storeTracked(ctx, owner, id, ReasonUnload)
	}
}

// storeTracked сохраняет лошадь, если она все еще числится за владельцем
func (s *Service) storeTracked(ctx context.Context, owner uuid.UUID, id engine.ObjectID, reason Reason) {
	unlock := s.lockOwner(owner)
	defer unlock()

	if !s.index.Contains(owner, id) {
		return
	}
	if _, err := s.storeLocked(ctx, owner, id, 0, reason); err != nil && !errors.Is(err, ErrObjectGone) {
		s.logger.Error("Лошадь %s владельца %s не сохранена (%s): %v", id, owner, reason, err)
	}
}

// Close очищает индекс и закрывает хранилище
func (s *Service) Close() error {
	s.index.Clear()
	s.updateTracked()
	return s.store.Close()
}

var _ engine.Listener = (*Service)(nil)
