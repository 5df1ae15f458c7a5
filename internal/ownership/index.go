// Package ownership отслеживает, какие живые лошади принадлежат какому владельцу.
//
// Индекс - кеш на время жизни процесса. Источник истины о существовании
// объекта - движок, поэтому индекс допускает устаревшие записи и чистится
// монитором выселения.
package ownership

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Index - потокобезопасное отображение владелец -> множество живых объектов.
// Объект всегда числится не более чем у одного владельца.
type Index struct {
	mu      sync.RWMutex
	owners  map[uuid.UUID]map[uuid.UUID]struct{}
	ownerOf map[uuid.UUID]uuid.UUID // обратный индекс объект -> владелец
}

// NewIndex создает пустой индекс
func NewIndex() *Index {
	return &Index{
		owners:  make(map[uuid.UUID]map[uuid.UUID]struct{}),
		ownerOf: make(map[uuid.UUID]uuid.UUID),
	}
}

// Activate создает пустую запись владельца, если ее еще нет
func (idx *Index) Activate(owner uuid.UUID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.owners[owner]; !ok {
		idx.owners[owner] = make(map[uuid.UUID]struct{})
	}
}

// Track добавляет объект владельцу. Если объект числился у другого
// владельца, он переносится.
func (idx *Index) Track(owner, object uuid.UUID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if prev, ok := idx.ownerOf[object]; ok && prev != owner {
		idx.removeLocked(prev, object)
	}

	set, ok := idx.owners[owner]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		idx.owners[owner] = set
	}
	set[object] = struct{}{}
	idx.ownerOf[object] = owner
}

// Untrack убирает объект у владельца. Отсутствие - не ошибка.
// Возвращает true, если объект был в индексе.
func (idx *Index) Untrack(owner, object uuid.UUID) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.removeLocked(owner, object)
}

func (idx *Index) removeLocked(owner, object uuid.UUID) bool {
	set, ok := idx.owners[owner]
	if !ok {
		return false
	}
	if _, ok := set[object]; !ok {
		return false
	}
	delete(set, object)
	if idx.ownerOf[object] == owner {
		delete(idx.ownerOf, object)
	}
	return true
}

// LiveObjectsOf возвращает снимок объектов владельца, отсортированный по id.
// Снимок - независимая копия, его можно обходить во время изменений индекса.
func (idx *Index) LiveObjectsOf(owner uuid.UUID) []uuid.UUID {
	idx.mu.RLock()
	set := idx.owners[owner]
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	idx.mu.RUnlock()

	sortIDs(out)
	return out
}

// DropOwner удаляет владельца целиком и возвращает объекты, которые
// оставались за ним. Вызывающий обязан сначала сохранить все живые объекты.
func (idx *Index) DropOwner(owner uuid.UUID) []uuid.UUID {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	set, ok := idx.owners[owner]
	if !ok {
		return nil
	}
	left := make([]uuid.UUID, 0, len(set))
	for id := range set {
		if idx.ownerOf[id] == owner {
			delete(idx.ownerOf, id)
		}
		left = append(left, id)
	}
	delete(idx.owners, owner)

	sortIDs(left)
	return left
}

// OwnerOf возвращает владельца объекта
func (idx *Index) OwnerOf(object uuid.UUID) (uuid.UUID, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	owner, ok := idx.ownerOf[object]
	return owner, ok
}

// Contains проверяет, числится ли объект за владельцем
func (idx *Index) Contains(owner, object uuid.UUID) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.owners[owner][object]
	return ok
}

// IsActive сообщает, есть ли запись владельца
func (idx *Index) IsActive(owner uuid.UUID) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.owners[owner]
	return ok
}

// Owners возвращает снимок владельцев, имеющих запись
func (idx *Index) Owners() []uuid.UUID {
	idx.mu.RLock()
	out := make([]uuid.UUID, 0, len(idx.owners))
	for owner := range idx.owners {
		out = append(out, owner)
	}
	idx.mu.RUnlock()

	sortIDs(out)
	return out
}

// Count возвращает общее число отслеживаемых объектов
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ownerOf)
}

// Clear очищает индекс (при остановке сервиса)
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.owners = make(map[uuid.UUID]map[uuid.UUID]struct{})
	idx.ownerOf = make(map[uuid.UUID]uuid.UUID)
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
