package stable

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound - в слоте нет записи
	ErrNotFound = errors.New("no horse stored in slot")
	// ErrCorrupted - запись в слоте не декодируется; запись сохранена для диагностики
	ErrCorrupted = errors.New("stored horse is corrupted")
	// ErrOwnerOffline - операция требует владельца в сети
	ErrOwnerOffline = errors.New("owner is not connected")
	// ErrObjectGone - живой объект больше не существует в симуляции
	ErrObjectGone = errors.New("horse no longer exists")
	// ErrNoHorseNearby - рядом с владельцем нет его лошадей
	ErrNoHorseNearby = errors.New("no owned horse nearby")
	// ErrSlotsExhausted - все слоты заняты, а политика запрещает перезапись
	ErrSlotsExhausted = errors.New("all slots are occupied")
	// ErrSlotOutOfRange - номер слота вне диапазона [1, N]
	ErrSlotOutOfRange = errors.New("slot out of range")
)

// SlotOutOfRangeError описывает недопустимый номер слота
type SlotOutOfRangeError struct {
	Slot int
	Max  int
}

func (e *SlotOutOfRangeError) Error() string {
	return fmt.Sprintf("slot %d out of range [1, %d]", e.Slot, e.Max)
}

// Is позволяет сравнивать с ErrSlotOutOfRange через errors.Is
func (e *SlotOutOfRangeError) Is(target error) bool {
	return target == ErrSlotOutOfRange
}
