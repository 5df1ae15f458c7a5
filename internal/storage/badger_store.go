package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
)

// Ключи BadgerDB: "slot/<uuid владельца>/" + номер слота (4 байта, big-endian).
// Порядок байт сохраняет сортировку слотов при обходе по префиксу.
const badgerKeyPrefix = "slot/"

// BadgerStore хранит записи во встроенной BadgerDB
type BadgerStore struct {
	db     *badger.DB
	dbPath string
}

// NewBadgerStore открывает хранилище в каталоге dataPath/horses.
// Пустой dataPath открывает БД в памяти (для тестов).
func NewBadgerStore(dataPath string) (*BadgerStore, error) {
	var opts badger.Options
	dbPath := ""
	if dataPath == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dbPath = filepath.Join(dataPath, "horses")
		opts = badger.DefaultOptions(dbPath)
	}
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, wrap("open", Key{}, fmt.Errorf("не удалось открыть BadgerDB: %w", err))
	}
	return &BadgerStore{db: db, dbPath: dbPath}, nil
}

func ownerPrefix(owner uuid.UUID) []byte {
	return []byte(badgerKeyPrefix + owner.String() + "/")
}

func badgerKey(key Key) []byte {
	k := ownerPrefix(key.Owner)
	return binary.BigEndian.AppendUint32(k, uint32(key.Slot))
}

// Upsert записывает запись в отдельной транзакции
func (s *BadgerStore) Upsert(ctx context.Context, key Key, data []byte) error {
	if err := validKey(key); err != nil {
		return wrap("upsert", key, err)
	}
	if err := ctx.Err(); err != nil {
		return wrap("upsert", key, err)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(key), append([]byte{}, data...))
	})
	return wrap("upsert", key, err)
}

// Get читает запись
func (s *BadgerStore) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	if err := validKey(key); err != nil {
		return nil, false, wrap("get", key, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, false, wrap("get", key, err)
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("get", key, err)
	}
	return data, true, nil
}

// Delete удаляет запись. Badger не считает удаление отсутствующего ключа ошибкой.
func (s *BadgerStore) Delete(ctx context.Context, key Key) error {
	if err := validKey(key); err != nil {
		return wrap("delete", key, err)
	}
	if err := ctx.Err(); err != nil {
		return wrap("delete", key, err)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(key))
	})
	return wrap("delete", key, err)
}

// ListSlots обходит ключи владельца без чтения значений
func (s *BadgerStore) ListSlots(ctx context.Context, owner uuid.UUID) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("list", Key{Owner: owner}, err)
	}

	prefix := ownerPrefix(owner)
	var slots []int
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			if len(k) != len(prefix)+4 {
				continue
			}
			slots = append(slots, int(binary.BigEndian.Uint32(k[len(prefix):])))
		}
		return nil
	})
	if err != nil {
		return nil, wrap("list", Key{Owner: owner}, err)
	}

	sort.Ints(slots)
	if slots == nil {
		slots = []int{}
	}
	return slots, nil
}

// Close закрывает BadgerDB
func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
