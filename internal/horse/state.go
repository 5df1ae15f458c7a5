// Package horse описывает наблюдаемое состояние живой лошади:
// атрибуты, внешний вид, имя и инвентарь.
package horse

import (
	"bytes"

	"github.com/annel0/horsestore/internal/vec"
)

// InventorySize - размер инвентаря лошади по умолчанию (седло + броня)
const InventorySize = 2

// Item - непрозрачное описание предмета в слоте инвентаря
type Item struct {
	Kind   string // Тип предмета, например "SADDLE"
	Amount uint32 // Количество в стаке
	Data   []byte // Непрозрачные метаданные предмета
}

// Equal сравнивает предметы побайтово
func (it *Item) Equal(other *Item) bool {
	if it == nil || other == nil {
		return it == other
	}
	return it.Kind == other.Kind && it.Amount == other.Amount && bytes.Equal(it.Data, other.Data)
}

// Clone возвращает глубокую копию предмета
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	cp := &Item{Kind: it.Kind, Amount: it.Amount}
	if it.Data != nil {
		cp.Data = append([]byte{}, it.Data...)
	}
	return cp
}

// Inventory - упорядоченный набор слотов фиксированной длины.
// nil в слоте означает пустой слот.
type Inventory []*Item

// NewInventory создает пустой инвентарь заданного размера
func NewInventory(size int) Inventory {
	return make(Inventory, size)
}

// Equal сравнивает длину и содержимое каждого слота
func (inv Inventory) Equal(other Inventory) bool {
	if len(inv) != len(other) {
		return false
	}
	for i := range inv {
		if !inv[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Clone возвращает глубокую копию инвентаря
func (inv Inventory) Clone() Inventory {
	if inv == nil {
		return nil
	}
	cp := make(Inventory, len(inv))
	for i, it := range inv {
		cp[i] = it.Clone()
	}
	return cp
}

// State - полное наблюдаемое состояние лошади
type State struct {
	World      string        // Мир, в котором находится лошадь
	Position   vec.Vec3Float // Позиция в момент снятия состояния
	Speed      float64       // Базовая скорость передвижения
	Jump       float64       // Базовая сила прыжка
	Color      Color         // Окрас
	Style      Style         // Узор
	CustomName *string       // Отображаемое имя (nil если нет)
	Inventory  Inventory     // Содержимое инвентаря
}

// Name возвращает отображаемое имя или пустую строку
func (s State) Name() string {
	if s.CustomName == nil {
		return ""
	}
	return *s.CustomName
}

// Clone возвращает глубокую копию состояния
func (s State) Clone() State {
	cp := s
	if s.CustomName != nil {
		name := *s.CustomName
		cp.CustomName = &name
	}
	cp.Inventory = s.Inventory.Clone()
	return cp
}

// NamePtr - вспомогательная функция для задания CustomName
func NamePtr(name string) *string {
	return &name
}
