package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore реализует Store в памяти.
// Используется в тестах и для локального запуска без БД.
// ВНИМАНИЕ: Данные теряются при перезапуске!
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[uuid.UUID]map[int][]byte // владелец -> слот -> текст записи
	closed bool
}

// NewMemoryStore создает пустое хранилище в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[uuid.UUID]map[int][]byte),
	}
}

// Upsert сохраняет копию текста записи
func (s *MemoryStore) Upsert(ctx context.Context, key Key, data []byte) error {
	if err := validKey(key); err != nil {
		return wrap("upsert", key, err)
	}
	if err := ctx.Err(); err != nil {
		return wrap("upsert", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return wrap("upsert", key, ErrClosed)
	}

	slots, ok := s.data[key.Owner]
	if !ok {
		slots = make(map[int][]byte)
		s.data[key.Owner] = slots
	}
	slots[key.Slot] = append([]byte{}, data...)
	return nil
}

// Get возвращает копию текста записи
func (s *MemoryStore) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	if err := validKey(key); err != nil {
		return nil, false, wrap("get", key, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, false, wrap("get", key, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, wrap("get", key, ErrClosed)
	}

	data, ok := s.data[key.Owner][key.Slot]
	if !ok {
		return nil, false, nil
	}
	return append([]byte{}, data...), true, nil
}

// Delete удаляет запись, если она есть
func (s *MemoryStore) Delete(ctx context.Context, key Key) error {
	if err := validKey(key); err != nil {
		return wrap("delete", key, err)
	}
	if err := ctx.Err(); err != nil {
		return wrap("delete", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return wrap("delete", key, ErrClosed)
	}

	slots, ok := s.data[key.Owner]
	if !ok {
		return nil
	}
	delete(slots, key.Slot)
	if len(slots) == 0 {
		delete(s.data, key.Owner)
	}
	return nil
}

// ListSlots возвращает занятые слоты владельца по возрастанию
func (s *MemoryStore) ListSlots(ctx context.Context, owner uuid.UUID) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("list", Key{Owner: owner}, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, wrap("list", Key{Owner: owner}, ErrClosed)
	}

	slots := make([]int, 0, len(s.data[owner]))
	for slot := range s.data[owner] {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	return slots, nil
}

// Count возвращает общее количество записей (для тестов)
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, slots := range s.data {
		n += len(slots)
	}
	return n
}

// Close помечает хранилище закрытым
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
