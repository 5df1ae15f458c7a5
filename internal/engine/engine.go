// Package engine описывает интерфейс симуляции, от которой зависит хранилище лошадей:
// разрешение объектов, позиции владельцев, создание и удаление объектов.
package engine

import (
	"context"
	"errors"
	"math"

	"github.com/annel0/horsestore/internal/horse"
	"github.com/annel0/horsestore/internal/vec"
	"github.com/google/uuid"
)

// ObjectID - непрозрачный идентификатор живого объекта в симуляции
type ObjectID = uuid.UUID

// Kind - тип создаваемого объекта
type Kind uint8

const (
	KindHorse Kind = iota + 1
)

func (k Kind) String() string {
	switch k {
	case KindHorse:
		return "horse"
	default:
		return "unknown"
	}
}

var (
	// ErrNoSuchObject - объект не существует в симуляции
	ErrNoSuchObject = errors.New("object does not exist")
	// ErrWorldNotLoaded - мир с таким именем не загружен
	ErrWorldNotLoaded = errors.New("world is not loaded")
)

// Location - точка в конкретном мире с направлением взгляда
type Location struct {
	World string
	Pos   vec.Vec3Float
	Yaw   float64 // Градусы, 0 - на юг (+Z)
}

// DistanceTo возвращает евклидово расстояние. Точки в разных мирах
// бесконечно далеки друг от друга.
func (l Location) DistanceTo(other Location) float64 {
	if l.World != other.World {
		return math.Inf(1)
	}
	return l.Pos.DistanceTo(other.Pos)
}

// Ahead возвращает точку на dist блоков впереди по направлению взгляда
func (l Location) Ahead(dist float64) Location {
	return Location{World: l.World, Pos: l.Pos.Ahead(l.Yaw, dist), Yaw: l.Yaw}
}

// Region - область мира, которая может быть выгружена (чанк)
type Region struct {
	World string
	X, Z  int
}

// Engine - симуляция, в которой живут лошади и владельцы.
// Реализации безопасны для конкурентного использования.
type Engine interface {
	// Resolve возвращает текущее положение объекта или false, если его больше нет
	Resolve(id ObjectID) (Location, bool)

	// OwnerLocation возвращает положение владельца или false, если он не в сети
	OwnerLocation(owner uuid.UUID) (Location, bool)

	// IsConnected сообщает, находится ли владелец в сети
	IsConnected(owner uuid.UUID) bool

	// ConnectedOwners возвращает снимок владельцев в сети
	ConnectedOwners() []uuid.UUID

	// Distance - расстояние между точками по правилам движка
	Distance(a, b Location) float64

	// RemoveObject удаляет объект из симуляции
	RemoveObject(id ObjectID) error

	// CreateObject создает объект указанного типа, принадлежащий владельцу
	CreateObject(kind Kind, at Location, owner uuid.UUID) (ObjectID, error)

	// ApplyState переносит сохраненное состояние на живой объект
	ApplyState(id ObjectID, state horse.State) error

	// CaptureState снимает наблюдаемое состояние живой лошади
	CaptureState(id ObjectID) (horse.State, error)

	// NearbyOwnedHorses возвращает прирученных лошадей владельца в радиусе
	// от точки, ближайшие первыми
	NearbyOwnedHorses(owner uuid.UUID, at Location, radius float64) []ObjectID
}

// Listener получает уведомления жизненного цикла от движка
type Listener interface {
	// OwnerConnected - владелец вошел в сеть
	OwnerConnected(ctx context.Context, owner uuid.UUID)

	// OwnerDisconnected - владелец выходит из сети. Объекты владельца еще доступны.
	OwnerDisconnected(ctx context.Context, owner uuid.UUID)

	// RegionDeactivated - область выгружена вместе с перечисленными объектами
	RegionDeactivated(ctx context.Context, region Region, members []ObjectID)
}
