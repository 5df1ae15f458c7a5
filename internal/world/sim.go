// Package world - встроенная симуляция мира: игроки-владельцы, лошади и
// выгружаемые чанки. Реализует engine.Engine для сервера и тестов.
package world

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/annel0/horsestore/internal/engine"
	"github.com/annel0/horsestore/internal/horse"
	"github.com/annel0/horsestore/internal/logging"
	"github.com/google/uuid"
)

// ChunkSize - размер выгружаемой области в блоках
const ChunkSize = 16

// Значения по умолчанию для лошади, созданной без сохраненного состояния
const (
	defaultHorseSpeed = 0.225
	defaultHorseJump  = 0.7
)

// Player - владелец в сети
type Player struct {
	ID   uuid.UUID
	Name string
	Loc  engine.Location
}

// Horse - живая лошадь в симуляции
type Horse struct {
	ID          engine.ObjectID
	Owner       uuid.UUID // Хозяин, приручивший лошадь (uuid.Nil - дикая)
	Loc         engine.Location
	State       horse.State
	NameVisible bool
}

// Tamed сообщает, приручена ли лошадь
func (h *Horse) Tamed() bool {
	return h.Owner != uuid.Nil
}

// Sim - потокобезопасная симуляция мира
type Sim struct {
	mu       sync.RWMutex
	players  map[uuid.UUID]*Player
	horses   map[engine.ObjectID]*Horse
	unloaded map[engine.Region]struct{}
	listener engine.Listener
	logger   *logging.Logger
}

// NewSim создает пустой мир
func NewSim() *Sim {
	return &Sim{
		players:  make(map[uuid.UUID]*Player),
		horses:   make(map[engine.ObjectID]*Horse),
		unloaded: make(map[engine.Region]struct{}),
		logger:   logging.GetComponentLogger("world"),
	}
}

// SetListener подключает получателя событий жизненного цикла
func (s *Sim) SetListener(l engine.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

func (s *Sim) currentListener() engine.Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listener
}

// RegionOf возвращает чанк, содержащий точку
func RegionOf(loc engine.Location) engine.Region {
	return engine.Region{
		World: loc.World,
		X:     int(math.Floor(loc.Pos.X / ChunkSize)),
		Z:     int(math.Floor(loc.Pos.Z / ChunkSize)),
	}
}

//================ Игроки =================//

// Connect добавляет игрока в мир и уведомляет слушателя
func (s *Sim) Connect(ctx context.Context, id uuid.UUID, name string, at engine.Location) {
	s.mu.Lock()
	s.players[id] = &Player{ID: id, Name: name, Loc: at}
	s.mu.Unlock()

	s.logger.Info("Игрок %s (%s) вошел в мир %s", name, id, at.World)
	if l := s.currentListener(); l != nil {
		l.OwnerConnected(ctx, id)
	}
}

// Disconnect удаляет игрока и уведомляет слушателя о выходе.
// Слушатель видит игрока уже не в сети, как и при доставке события через шину.
func (s *Sim) Disconnect(ctx context.Context, id uuid.UUID) bool {
	s.mu.Lock()
	_, ok := s.players[id]
	delete(s.players, id)
	s.mu.Unlock()
	if !ok {
		return false
	}

	s.logger.Info("Игрок %s вышел", id)
	if l := s.currentListener(); l != nil {
		l.OwnerDisconnected(ctx, id)
	}
	return true
}

// MovePlayer перемещает игрока
func (s *Sim) MovePlayer(id uuid.UUID, to engine.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[id]
	if !ok {
		return fmt.Errorf("игрок %s не в сети", id)
	}
	p.Loc = to
	return nil
}

//================ Лошади =================//

// SpawnHorse создает лошадь с заданным состоянием. owner = uuid.Nil - дикая лошадь.
func (s *Sim) SpawnHorse(owner uuid.UUID, at engine.Location, state horse.State) engine.ObjectID {
	id := uuid.New()
	st := state.Clone()
	st.World = at.World
	st.Position = at.Pos
	if st.Inventory == nil {
		st.Inventory = horse.NewInventory(horse.InventorySize)
	}

	s.mu.Lock()
	s.horses[id] = &Horse{ID: id, Owner: owner, Loc: at, State: st, NameVisible: st.CustomName != nil}
	s.mu.Unlock()
	return id
}

// MoveHorse перемещает лошадь
func (s *Sim) MoveHorse(id engine.ObjectID, to engine.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.horses[id]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrNoSuchObject, id)
	}
	h.Loc = to
	h.State.World = to.World
	h.State.Position = to.Pos
	return nil
}

// KillHorse убирает лошадь без уведомлений (смерть, деспаун движком)
func (s *Sim) KillHorse(id engine.ObjectID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.horses[id]; !ok {
		return false
	}
	delete(s.horses, id)
	return true
}

// Horse возвращает копию лошади
func (s *Sim) Horse(id engine.ObjectID) (Horse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.horses[id]
	if !ok {
		return Horse{}, false
	}
	cp := *h
	cp.State = h.State.Clone()
	return cp, true
}

// HorseCount возвращает число живых лошадей
func (s *Sim) HorseCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.horses)
}

//================ Чанки =================//

// UnloadRegion помечает чанк выгруженным и уведомляет слушателя со списком
// лошадей внутри. Сами лошади остаются в мире вместе с чанком.
func (s *Sim) UnloadRegion(ctx context.Context, region engine.Region) []engine.ObjectID {
	s.mu.Lock()
	s.unloaded[region] = struct{}{}
	members := make([]engine.ObjectID, 0)
	for id, h := range s.horses {
		if RegionOf(h.Loc) == region {
			members = append(members, id)
		}
	}
	s.mu.Unlock()

	sort.Slice(members, func(i, j int) bool { return members[i].String() < members[j].String() })

	s.logger.Debug("Чанк %s (%d, %d) выгружен, лошадей: %d", region.World, region.X, region.Z, len(members))
	if l := s.currentListener(); l != nil {
		l.RegionDeactivated(ctx, region, members)
	}
	return members
}

// LoadRegion снова активирует чанк
func (s *Sim) LoadRegion(region engine.Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unloaded, region)
}

// IsLoaded сообщает, активен ли чанк
func (s *Sim) IsLoaded(region engine.Region) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, unloaded := s.unloaded[region]
	return !unloaded
}

//================ engine.Engine =================//

// Resolve возвращает положение лошади
func (s *Sim) Resolve(id engine.ObjectID) (engine.Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.horses[id]
	if !ok {
		return engine.Location{}, false
	}
	return h.Loc, true
}

// OwnerLocation возвращает положение игрока в сети
func (s *Sim) OwnerLocation(owner uuid.UUID) (engine.Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[owner]
	if !ok {
		return engine.Location{}, false
	}
	return p.Loc, true
}

// IsConnected сообщает, в сети ли игрок
func (s *Sim) IsConnected(owner uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.players[owner]
	return ok
}

// ConnectedOwners возвращает снимок игроков в сети
func (s *Sim) ConnectedOwners() []uuid.UUID {
	s.mu.RLock()
	out := make([]uuid.UUID, 0, len(s.players))
	for id := range s.players {
		out = append(out, id)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Distance - евклидово расстояние, между мирами бесконечность
func (s *Sim) Distance(a, b engine.Location) float64 {
	return a.DistanceTo(b)
}

// RemoveObject удаляет лошадь из мира
func (s *Sim) RemoveObject(id engine.ObjectID) error {
	if !s.KillHorse(id) {
		return fmt.Errorf("%w: %s", engine.ErrNoSuchObject, id)
	}
	return nil
}

// CreateObject создает прирученную лошадь владельца в точке
func (s *Sim) CreateObject(kind engine.Kind, at engine.Location, owner uuid.UUID) (engine.ObjectID, error) {
	if kind != engine.KindHorse {
		return uuid.Nil, fmt.Errorf("неподдерживаемый тип объекта: %s", kind)
	}
	if at.World == "" {
		return uuid.Nil, engine.ErrWorldNotLoaded
	}
	return s.SpawnHorse(owner, at, horse.State{
		Speed: defaultHorseSpeed,
		Jump:  defaultHorseJump,
	}), nil
}

// ApplyState переносит атрибуты, внешний вид, имя и инвентарь на лошадь.
// Положение лошади не меняется.
func (s *Sim) ApplyState(id engine.ObjectID, state horse.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.horses[id]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrNoSuchObject, id)
	}

	st := state.Clone()
	st.World = h.Loc.World
	st.Position = h.Loc.Pos
	if st.Inventory == nil {
		st.Inventory = h.State.Inventory
	}
	h.State = st
	h.NameVisible = st.CustomName != nil
	return nil
}

// CaptureState снимает состояние лошади с текущей позицией
func (s *Sim) CaptureState(id engine.ObjectID) (horse.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.horses[id]
	if !ok {
		return horse.State{}, fmt.Errorf("%w: %s", engine.ErrNoSuchObject, id)
	}
	st := h.State.Clone()
	st.World = h.Loc.World
	st.Position = h.Loc.Pos
	return st, nil
}

// NearbyOwnedHorses возвращает лошадей владельца в радиусе, ближайшие первыми
func (s *Sim) NearbyOwnedHorses(owner uuid.UUID, at engine.Location, radius float64) []engine.ObjectID {
	type candidate struct {
		id   engine.ObjectID
		dist float64
	}

	s.mu.RLock()
	var found []candidate
	for id, h := range s.horses {
		if h.Owner != owner {
			continue
		}
		if d := at.DistanceTo(h.Loc); d <= radius {
			found = append(found, candidate{id: id, dist: d})
		}
	}
	s.mu.RUnlock()

	sort.Slice(found, func(i, j int) bool {
		if found[i].dist != found[j].dist {
			return found[i].dist < found[j].dist
		}
		return found[i].id.String() < found[j].id.String()
	})

	out := make([]engine.ObjectID, len(found))
	for i, c := range found {
		out[i] = c.id
	}
	return out
}

var _ engine.Engine = (*Sim)(nil)
