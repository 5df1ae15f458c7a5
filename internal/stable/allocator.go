package stable

import (
	"context"
	"fmt"

	"github.com/annel0/horsestore/internal/logging"
	"github.com/annel0/horsestore/internal/storage"
	"github.com/google/uuid"
)

// ExhaustionPolicy определяет поведение, когда все слоты владельца заняты
type ExhaustionPolicy string

const (
	// ExhaustionOverwrite перезаписывает слот 1
	ExhaustionOverwrite ExhaustionPolicy = "overwrite"
	// ExhaustionReject отказывает в сохранении
	ExhaustionReject ExhaustionPolicy = "reject"
)

// Valid проверяет, известна ли политика
func (p ExhaustionPolicy) Valid() bool {
	return p == ExhaustionOverwrite || p == ExhaustionReject
}

// fallbackSlot - слот, перезаписываемый при исчерпании
const fallbackSlot = 1

// SlotAllocator выбирает слот для сохранения.
//
// Проверка свободного слота и последующая запись не атомарны: два
// одновременных сохранения одного владельца могут выбрать один слот,
// тогда побеждает последняя запись. Service исключает это внутри процесса
// блокировкой владельца.
type SlotAllocator struct {
	store  storage.Store
	slots  int
	policy ExhaustionPolicy
	logger *logging.Logger
}

// NewSlotAllocator создает аллокатор на slots слотов
func NewSlotAllocator(store storage.Store, slots int, policy ExhaustionPolicy, logger *logging.Logger) *SlotAllocator {
	return &SlotAllocator{store: store, slots: slots, policy: policy, logger: logger}
}

// Slots возвращает N
func (a *SlotAllocator) Slots() int {
	return a.slots
}

// CheckSlot проверяет, что номер слота лежит в [1, N]
func (a *SlotAllocator) CheckSlot(slot int) error {
	if slot < 1 || slot > a.slots {
		return &SlotOutOfRangeError{Slot: slot, Max: a.slots}
	}
	return nil
}

// PickSlot возвращает первый свободный слот 1..N. Если заняты все,
// по политике overwrite возвращает слот 1 с overwrite=true,
// по политике reject - ErrSlotsExhausted.
func (a *SlotAllocator) PickSlot(ctx context.Context, owner uuid.UUID) (slot int, overwrite bool, err error) {
	for s := 1; s <= a.slots; s++ {
		_, found, err := a.store.Get(ctx, storage.Key{Owner: owner, Slot: s})
		if err != nil {
			return 0, false, fmt.Errorf("pick slot: %w", err)
		}
		if !found {
			return s, false, nil
		}
	}

	if a.policy == ExhaustionReject {
		return 0, false, ErrSlotsExhausted
	}
	a.logger.Warn("Все %d слотов владельца %s заняты, слот %d будет перезаписан", a.slots, owner, fallbackSlot)
	return fallbackSlot, true, nil
}
