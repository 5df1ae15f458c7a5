package stable

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/annel0/horsestore/internal/codec"
	"github.com/annel0/horsestore/internal/engine"
	"github.com/annel0/horsestore/internal/horse"
	"github.com/annel0/horsestore/internal/ownership"
	"github.com/annel0/horsestore/internal/storage"
	"github.com/annel0/horsestore/internal/vec"
	"github.com/annel0/horsestore/internal/world"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("disk on fire")

// flakyStore - хранилище в памяти с управляемыми сбоями
type flakyStore struct {
	*storage.MemoryStore
	failUpsert atomic.Bool
	failGet    atomic.Bool
	failDelete atomic.Bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: storage.NewMemoryStore()}
}

func (f *flakyStore) Upsert(ctx context.Context, key storage.Key, data []byte) error {
	if f.failUpsert.Load() {
		return &storage.Error{Op: "upsert", Key: key, Err: errBoom}
	}
	return f.MemoryStore.Upsert(ctx, key, data)
}

func (f *flakyStore) Get(ctx context.Context, key storage.Key) ([]byte, bool, error) {
	if f.failGet.Load() {
		return nil, false, &storage.Error{Op: "get", Key: key, Err: errBoom}
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *flakyStore) Delete(ctx context.Context, key storage.Key) error {
	if f.failDelete.Load() {
		return &storage.Error{Op: "delete", Key: key, Err: errBoom}
	}
	return f.MemoryStore.Delete(ctx, key)
}

// countingStore пропускает первые failAfter записей, остальные завершает ошибкой
type countingStore struct {
	*flakyStore
	failAfter int32
	calls     *atomic.Int32
}

func (c *countingStore) Upsert(ctx context.Context, key storage.Key, data []byte) error {
	if c.calls.Add(1) > c.failAfter {
		return &storage.Error{Op: "upsert", Key: key, Err: errBoom}
	}
	return c.flakyStore.Upsert(ctx, key, data)
}

type fixture struct {
	ctx   context.Context
	sim   *world.Sim
	store *flakyStore
	svc   *Service
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	if opts.Slots == 0 {
		opts.Slots = 3
	}
	f := &fixture{
		ctx:   context.Background(),
		sim:   world.NewSim(),
		store: newFlakyStore(),
	}
	f.svc = NewService(f.store, f.sim, ownership.NewIndex(), opts)
	f.sim.SetListener(f.svc)
	return f
}

func loc(world string, x, z float64) engine.Location {
	return engine.Location{World: world, Pos: vec.Vec3Float{X: x, Y: 64, Z: z}}
}

func brownHorse(name string) horse.State {
	st := horse.State{
		Speed:     0.3,
		Jump:      0.8,
		Color:     horse.ColorBrown,
		Style:     horse.StyleWhitefield,
		Inventory: horse.Inventory{{Kind: "SADDLE", Amount: 1}, nil},
	}
	if name != "" {
		st.CustomName = horse.NamePtr(name)
	}
	return st
}

func (f *fixture) connect(t *testing.T, at engine.Location) uuid.UUID {
	t.Helper()
	owner := uuid.New()
	f.sim.Connect(f.ctx, owner, "player", at)
	return owner
}

// liveHorse создает прирученную лошадь, отслеживаемую за владельцем
func (f *fixture) liveHorse(owner uuid.UUID, at engine.Location, st horse.State) engine.ObjectID {
	id := f.sim.SpawnHorse(owner, at, st)
	f.svc.Index().Track(owner, id)
	return id
}

func (f *fixture) record(t *testing.T, owner uuid.UUID, slot int) (horse.State, bool) {
	t.Helper()
	data, found, err := f.store.MemoryStore.Get(f.ctx, storage.Key{Owner: owner, Slot: slot})
	require.NoError(t, err)
	if !found {
		return horse.State{}, false
	}
	st, err := codec.DecodeText(data)
	require.NoError(t, err)
	return st, true
}

func (f *fixture) putRecord(t *testing.T, owner uuid.UUID, slot int, mutate func(*codec.Record)) {
	t.Helper()
	rec, err := codec.Encode(brownHorse("Seed"))
	require.NoError(t, err)
	if mutate != nil {
		mutate(&rec)
	}
	data, err := codec.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, f.store.MemoryStore.Upsert(f.ctx, storage.Key{Owner: owner, Slot: slot}, data))
}

func TestStoreThenSpawn(t *testing.T) {
	f := newFixture(t, Options{})
	owner := f.connect(t, loc("world", 0, 0))
	id := f.liveHorse(owner, loc("world", 10, 10), brownHorse("Буцефал"))

	slot, err := f.svc.Store(f.ctx, owner, id, ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 1, slot)

	// Слот занят, живая лошадь убрана и не отслеживается
	st, found := f.record(t, owner, slot)
	require.True(t, found)
	assert.Equal(t, "Буцефал", st.Name())
	assert.Equal(t, 10.0, st.Position.X)
	_, alive := f.sim.Resolve(id)
	assert.False(t, alive)
	assert.False(t, f.svc.Index().Contains(owner, id))

	res, err := f.svc.Spawn(f.ctx, owner, slot)
	require.NoError(t, err)
	assert.False(t, res.Partial)

	// Слот освобожден, новая лошадь отслеживается
	_, found = f.record(t, owner, slot)
	assert.False(t, found)
	assert.True(t, f.svc.Index().Contains(owner, res.Object))

	h, ok := f.sim.Horse(res.Object)
	require.True(t, ok)
	assert.Equal(t, owner, h.Owner)
	assert.True(t, h.NameVisible)
	assert.Equal(t, horse.ColorBrown, h.State.Color)
	assert.Equal(t, horse.StyleWhitefield, h.State.Style)
	assert.Equal(t, 0.3, h.State.Speed)
	assert.True(t, brownHorse("").Inventory.Equal(h.State.Inventory))

	// Лошадь появляется перед владельцем, а не в точке сохранения
	assert.Equal(t, "world", h.Loc.World)
	assert.InDelta(t, 0, h.Loc.Pos.X, 1e-9)
	assert.InDelta(t, 2, h.Loc.Pos.Z, 1e-9)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.Metrics().Stored(ReasonManual)))
}

func TestSpawnUsesCurrentOwnerWorld(t *testing.T) {
	f := newFixture(t, Options{})
	owner := f.connect(t, loc("world", 0, 0))
	id := f.liveHorse(owner, loc("world", 1, 1), brownHorse(""))

	slot, err := f.svc.Store(f.ctx, owner, id, ReasonManual)
	require.NoError(t, err)

	require.NoError(t, f.sim.MovePlayer(owner, engine.Location{World: "world_nether", Pos: vec.Vec3Float{X: 100, Y: 40, Z: 100}, Yaw: 90}))
	res, err := f.svc.Spawn(f.ctx, owner, slot)
	require.NoError(t, err)

	h, _ := f.sim.Horse(res.Object)
	assert.Equal(t, "world_nether", h.Loc.World)
	assert.InDelta(t, 98, h.Loc.Pos.X, 1e-9)
	assert.InDelta(t, 100, h.Loc.Pos.Z, 1e-9)
	assert.Equal(t, "world_nether", res.State.World)
}

func TestStorePicksFirstFreeSlot(t *testing.T) {
	f := newFixture(t, Options{Slots: 5})
	owner := f.connect(t, loc("world", 0, 0))
	f.putRecord(t, owner, 1, nil)
	f.putRecord(t, owner, 2, nil)
	f.putRecord(t, owner, 4, nil)

	slot, err := f.svc.Store(f.ctx, owner, f.liveHorse(owner, loc("world", 1, 1), brownHorse("")), ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 3, slot)
}

func TestScenarioAllSlotsOccupiedOverwritesFirst(t *testing.T) {
	f := newFixture(t, Options{Slots: 3})
	owner := f.connect(t, loc("world", 0, 0))

	for i := 1; i <= 3; i++ {
		slot, err := f.svc.Store(f.ctx, owner, f.liveHorse(owner, loc("world", 1, 1), brownHorse("old")), ReasonManual)
		require.NoError(t, err)
		assert.Equal(t, i, slot)
	}

	fresh := brownHorse("new")
	fresh.Color = horse.ColorBlack
	slot, err := f.svc.Store(f.ctx, owner, f.liveHorse(owner, loc("world", 1, 1), fresh), ReasonDistance)
	require.NoError(t, err)
	assert.Equal(t, 1, slot)

	st, found := f.record(t, owner, 1)
	require.True(t, found)
	assert.Equal(t, "new", st.Name())
	assert.Equal(t, horse.ColorBlack, st.Color)
	assert.Equal(t, 3, f.store.Count())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.Metrics().Overwrites()))
}

func TestRejectPolicyKeepsHorseAlive(t *testing.T) {
	f := newFixture(t, Options{Slots: 2, Exhaustion: ExhaustionReject})
	owner := f.connect(t, loc("world", 0, 0))
	f.putRecord(t, owner, 1, nil)
	f.putRecord(t, owner, 2, nil)

	id := f.liveHorse(owner, loc("world", 1, 1), brownHorse(""))
	_, err := f.svc.Store(f.ctx, owner, id, ReasonDistance)
	assert.ErrorIs(t, err, ErrSlotsExhausted)

	_, alive := f.sim.Resolve(id)
	assert.True(t, alive)
	assert.True(t, f.svc.Index().Contains(owner, id))
}

func TestScenarioUnknownColorIsNotAvailable(t *testing.T) {
	f := newFixture(t, Options{})
	owner := f.connect(t, loc("world", 0, 0))
	f.putRecord(t, owner, 2, func(r *codec.Record) { r.Color = "PURPLE" })

	_, err := f.svc.Spawn(f.ctx, owner, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupted)
	assert.True(t, codec.IsDecodeError(err))

	// Запись сохранена для диагностики, лошадь не создана
	_, found, gerr := f.store.MemoryStore.Get(f.ctx, storage.Key{Owner: owner, Slot: 2})
	require.NoError(t, gerr)
	assert.True(t, found)
	assert.Equal(t, 0, f.sim.HorseCount())
	assert.Empty(t, f.svc.Index().LiveObjectsOf(owner))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.Metrics().Corrupted()))

	list, err := f.svc.List(f.ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Corrupted)
}

func TestSpawnWithCorruptInventoryRestoresScalars(t *testing.T) {
	f := newFixture(t, Options{})
	owner := f.connect(t, loc("world", 0, 0))
	f.putRecord(t, owner, 1, func(r *codec.Record) { r.Inventory = "!!!" })

	res, err := f.svc.Spawn(f.ctx, owner, 1)
	require.NoError(t, err)
	assert.True(t, res.Partial)

	h, ok := f.sim.Horse(res.Object)
	require.True(t, ok)
	assert.Equal(t, horse.ColorBrown, h.State.Color)
	assert.Equal(t, "Seed", h.State.Name())
	assert.Equal(t, horse.NewInventory(horse.InventorySize), h.State.Inventory)

	_, found := f.record(t, owner, 1)
	assert.False(t, found)
}

func TestScenarioDisconnectStoresAllLiveHorses(t *testing.T) {
	f := newFixture(t, Options{Slots: 5})
	owner := f.connect(t, loc("world", 0, 0))
	a := f.liveHorse(owner, loc("world", 3, 3), brownHorse("A"))
	b := f.liveHorse(owner, loc("world", 4, 4), brownHorse("B"))

	require.True(t, f.sim.Disconnect(f.ctx, owner))

	slots, err := f.store.ListSlots(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, slots)
	assert.False(t, f.svc.Index().IsActive(owner))
	assert.Empty(t, f.svc.Index().LiveObjectsOf(owner))

	for _, id := range []engine.ObjectID{a, b} {
		_, alive := f.sim.Resolve(id)
		assert.False(t, alive)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(f.svc.Metrics().Stored(ReasonDisconnect)))
}

func TestDisconnectSkipsVanishedHorses(t *testing.T) {
	f := newFixture(t, Options{})
	owner := f.connect(t, loc("world", 0, 0))
	gone := f.liveHorse(owner, loc("world", 3, 3), brownHorse(""))
	f.liveHorse(owner, loc("world", 4, 4), brownHorse(""))
	f.sim.KillHorse(gone)

	f.sim.Disconnect(f.ctx, owner)

	assert.Equal(t, 1, f.store.Count())
	assert.Equal(t, 0, f.svc.Index().Count())
}

func TestDisconnectKeepsHorsesThatFailedToStore(t *testing.T) {
	f := newFixture(t, Options{})
	owner := f.connect(t, loc("world", 0, 0))
	id := f.liveHorse(owner, loc("world", 3, 3), brownHorse("Stuck"))

	f.store.failUpsert.Store(true)
	require.True(t, f.sim.Disconnect(f.ctx, owner))

	_, alive := f.sim.Resolve(id)
	assert.True(t, alive, "несохраненная лошадь остается в мире")
	assert.Equal(t, 0, f.store.Count())
	assert.Equal(t, []engine.ObjectID{id}, f.svc.Index().LiveObjectsOf(owner))

	// После повторного входа лошадь все еще отслеживается и сохраняется при следующем выходе
	f.store.failUpsert.Store(false)
	f.sim.Connect(f.ctx, owner, "player", loc("world", 0, 0))
	assert.Equal(t, []engine.ObjectID{id}, f.svc.Index().LiveObjectsOf(owner))

	require.True(t, f.sim.Disconnect(f.ctx, owner))
	st, found := f.record(t, owner, 1)
	require.True(t, found)
	assert.Equal(t, "Stuck", st.Name())
	assert.False(t, f.svc.Index().IsActive(owner))
}

func TestDisconnectPartialFailureUntracksStoredHorses(t *testing.T) {
	f := newFixture(t, Options{})
	owner := f.connect(t, loc("world", 0, 0))
	f.liveHorse(owner, loc("world", 3, 3), brownHorse("A"))
	gone := f.liveHorse(owner, loc("world", 4, 4), brownHorse("B"))
	f.sim.KillHorse(gone)
	f.liveHorse(owner, loc("world", 5, 5), brownHorse("C"))

	// Первая запись проходит, следующая падает
	var calls atomic.Int32
	store := &countingStore{flakyStore: f.store, failAfter: 1, calls: &calls}
	f.svc = NewService(store, f.sim, f.svc.Index(), Options{Slots: 3})
	f.sim.SetListener(f.svc)

	require.True(t, f.sim.Disconnect(f.ctx, owner))

	live := f.svc.Index().LiveObjectsOf(owner)
	assert.Len(t, live, 1, "остается только несохраненная лошадь")
	assert.NotContains(t, live, gone)
	assert.Equal(t, 1, f.store.Count())
	assert.True(t, f.svc.Index().IsActive(owner))
}

func TestStaleDisconnectIsIgnoredAfterReconnect(t *testing.T) {
	f := newFixture(t, Options{})
	owner := f.connect(t, loc("world", 0, 0))
	id := f.liveHorse(owner, loc("world", 3, 3), brownHorse(""))

	// Событие выхода доставлено, когда владелец уже вернулся
	f.svc.OwnerDisconnected(f.ctx, owner)

	_, alive := f.sim.Resolve(id)
	assert.True(t, alive)
	assert.Equal(t, 0, f.store.Count())
	assert.True(t, f.svc.Index().IsActive(owner))
	assert.Equal(t, []engine.ObjectID{id}, f.svc.Index().LiveObjectsOf(owner))
}

func TestScenarioUnloadWithOfflineOwnerLeavesHorse(t *testing.T) {
	f := newFixture(t, Options{})
	offline := uuid.New()
	id := f.liveHorse(offline, loc("world", 3, 3), brownHorse(""))

	members := f.sim.UnloadRegion(f.ctx, world.RegionOf(loc("world", 0, 0)))
	require.Equal(t, []engine.ObjectID{id}, members)

	_, alive := f.sim.Resolve(id)
	assert.True(t, alive)
	assert.True(t, f.svc.Index().Contains(offline, id))
	assert.Equal(t, 0, f.store.Count())
}

func TestUnloadWithOnlineOwnerStoresHorse(t *testing.T) {
	f := newFixture(t, Options{})
	owner := f.connect(t, loc("world", 500, 500))
	id := f.liveHorse(owner, loc("world", 3, 3), brownHorse(""))
	wild := f.sim.SpawnHorse(uuid.Nil, loc("world", 4, 4), brownHorse(""))

	f.sim.UnloadRegion(f.ctx, world.RegionOf(loc("world", 0, 0)))

	_, alive := f.sim.Resolve(id)
	assert.False(t, alive)
	_, found := f.record(t, owner, 1)
	assert.True(t, found)

	// Неотслеживаемые лошади не трогаются
	_, alive = f.sim.Resolve(wild)
	assert.True(t, alive)
}

func TestStorageFailureLeavesHorseUntouched(t *testing.T) {
	f := newFixture(t, Options{})
	owner := f.connect(t, loc("world", 0, 0))
	id := f.liveHorse(owner, loc("world", 1, 1), brownHorse(""))

	f.store.failUpsert.Store(true)
	_, err := f.svc.Store(f.ctx, owner, id, ReasonDistance)
	require.Error(t, err)
	assert.True(t, storage.IsStorageError(err))

	_, alive := f.sim.Resolve(id)
	assert.True(t, alive)
	assert.True(t, f.svc.Index().Contains(owner, id))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.Metrics().StorageErrors("upsert")))

	// Следующая попытка проходит
	f.store.failUpsert.Store(false)
	slot, err := f.svc.Store(f.ctx, owner, id, ReasonDistance)
	require.NoError(t, err)
	assert.Equal(t, 1, slot)
}

func TestSpawnRollsBackWhenSlotCannotBeConsumed(t *testing.T) {
	f := newFixture(t, Options{})
	owner := f.connect(t, loc("world", 0, 0))
	f.putRecord(t, owner, 1, nil)

	f.store.failDelete.Store(true)
	_, err := f.svc.Spawn(f.ctx, owner, 1)
	require.Error(t, err)

	assert.Equal(t, 0, f.sim.HorseCount())
	assert.Empty(t, f.svc.Index().LiveObjectsOf(owner))
	_, found := f.record(t, owner, 1)
	assert.True(t, found)
}

func TestSpawnErrors(t *testing.T) {
	f := newFixture(t, Options{Slots: 3})
	owner := f.connect(t, loc("world", 0, 0))

	_, err := f.svc.Spawn(f.ctx, owner, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Spawn(f.ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrOwnerOffline)

	f.store.failGet.Store(true)
	_, err = f.svc.Spawn(f.ctx, owner, 1)
	assert.True(t, storage.IsStorageError(err))
}

func TestSlotOutOfRangeIsRejected(t *testing.T) {
	f := newFixture(t, Options{Slots: 3})
	owner := f.connect(t, loc("world", 0, 0))
	id := f.liveHorse(owner, loc("world", 1, 1), brownHorse(""))

	for _, slot := range []int{0, -1, 4} {
		_, err := f.svc.Spawn(f.ctx, owner, slot)
		assert.ErrorIs(t, err, ErrSlotOutOfRange)

		err = f.svc.Delete(f.ctx, owner, slot)
		assert.ErrorIs(t, err, ErrSlotOutOfRange)

		_, err = f.svc.StoreInSlot(f.ctx, owner, slot, id)
		var rangeErr *SlotOutOfRangeError
		require.True(t, errors.As(err, &rangeErr))
		assert.Equal(t, 3, rangeErr.Max)

		_, err = f.svc.StoreNearest(f.ctx, owner, slot)
		assert.ErrorIs(t, err, ErrSlotOutOfRange)
	}

	_, alive := f.sim.Resolve(id)
	assert.True(t, alive)
	assert.Equal(t, 0, f.store.Count())
}

func TestStoreNearest(t *testing.T) {
	f := newFixture(t, Options{NearbyRadius: 5})
	owner := f.connect(t, loc("world", 0, 0))

	_, err := f.svc.StoreNearest(f.ctx, owner, 2)
	assert.ErrorIs(t, err, ErrNoHorseNearby)

	f.sim.SpawnHorse(owner, loc("world", 20, 0), brownHorse("far"))
	near := f.sim.SpawnHorse(owner, loc("world", 2, 0), brownHorse("near"))

	res, err := f.svc.StoreNearest(f.ctx, owner, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Slot)
	assert.Equal(t, near, res.Object)
	assert.False(t, res.Overwrote)

	st, found := f.record(t, owner, 2)
	require.True(t, found)
	assert.Equal(t, "near", st.Name())

	other := f.sim.SpawnHorse(owner, loc("world", 1, 1), brownHorse("other"))
	res, err = f.svc.StoreNearest(f.ctx, owner, 2)
	require.NoError(t, err)
	assert.Equal(t, other, res.Object)
	assert.True(t, res.Overwrote)

	_, err = f.svc.StoreNearest(f.ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrOwnerOffline)
}

func TestStoreGoneObject(t *testing.T) {
	f := newFixture(t, Options{})
	owner := f.connect(t, loc("world", 0, 0))
	id := f.liveHorse(owner, loc("world", 1, 1), brownHorse(""))
	f.sim.KillHorse(id)

	_, err := f.svc.Store(f.ctx, owner, id, ReasonDistance)
	assert.ErrorIs(t, err, ErrObjectGone)
	assert.False(t, f.svc.Index().Contains(owner, id))
	assert.Equal(t, 0, f.store.Count())
}

func TestDelete(t *testing.T) {
	f := newFixture(t, Options{})
	owner := f.connect(t, loc("world", 0, 0))
	f.putRecord(t, owner, 3, nil)

	require.NoError(t, f.svc.Delete(f.ctx, owner, 3))
	_, found := f.record(t, owner, 3)
	assert.False(t, found)

	assert.ErrorIs(t, f.svc.Delete(f.ctx, owner, 3), ErrNotFound)
}

func TestListAndMenu(t *testing.T) {
	f := newFixture(t, Options{Slots: 4})
	owner := f.connect(t, loc("world", 0, 0))
	f.putRecord(t, owner, 3, nil)
	f.putRecord(t, owner, 1, func(r *codec.Record) { r.CustomName = nil; r.Color = "GRAY" })

	list, err := f.svc.List(f.ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, Summary{Slot: 1, Color: "GRAY", Style: "WHITEFIELD", World: ""}, list[0])
	assert.Equal(t, 3, list[1].Slot)
	assert.Equal(t, "Seed", list[1].Name)

	menu, err := f.svc.Menu(f.ctx, owner)
	require.NoError(t, err)
	require.Len(t, menu, 4)
	for i, entry := range menu {
		assert.Equal(t, i+1, entry.Slot)
	}
	assert.True(t, menu[0].Occupied)
	assert.False(t, menu[1].Occupied)
	assert.Nil(t, menu[1].Horse)
	assert.True(t, menu[2].Occupied)
	assert.Equal(t, "Seed", menu[2].Horse.Name)
	assert.False(t, menu[3].Occupied)
}

func TestConnectActivatesOwner(t *testing.T) {
	f := newFixture(t, Options{})
	owner := f.connect(t, loc("world", 0, 0))
	assert.True(t, f.svc.Index().IsActive(owner))
}

func TestConcurrentStoresOfOneOwnerUseDistinctSlots(t *testing.T) {
	f := newFixture(t, Options{Slots: 10})
	owner := f.connect(t, loc("world", 0, 0))

	ids := make([]engine.ObjectID, 8)
	for i := range ids {
		ids[i] = f.liveHorse(owner, loc("world", float64(i), 0), brownHorse(""))
	}

	var wg sync.WaitGroup
	slots := make([]int, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id engine.ObjectID) {
			defer wg.Done()
			slot, err := f.svc.Store(f.ctx, owner, id, ReasonDistance)
			assert.NoError(t, err)
			slots[i] = slot
		}(i, id)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, slots)
}

func TestCloseClearsIndex(t *testing.T) {
	f := newFixture(t, Options{})
	owner := f.connect(t, loc("world", 0, 0))
	f.liveHorse(owner, loc("world", 1, 1), brownHorse(""))

	require.NoError(t, f.svc.Close())
	assert.Equal(t, 0, f.svc.Index().Count())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.svc.Metrics().TrackedHorses()))
}
