// Package storage хранит записи лошадей по ключу (владелец, слот).
//
// Хранилище работает с готовым текстом записи и ничего не знает о его
// содержимом: кодированием занимается пакет codec. Реализации: в памяти,
// BadgerDB, SQLite/MySQL и Redis.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Key адресует одну запись: владелец и номер слота (1..N)
type Key struct {
	Owner uuid.UUID
	Slot  int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Owner, k.Slot)
}

// Store определяет интерфейс постоянного хранилища записей.
// Все реализации безопасны для конкурентного использования.
type Store interface {
	// Upsert записывает текст записи по ключу, заменяя предыдущий.
	// После успешного возврата запись видна последующим Get.
	Upsert(ctx context.Context, key Key, data []byte) error

	// Get возвращает текст записи и true, либо nil и false если записи нет.
	// Отсутствие записи не является ошибкой.
	Get(ctx context.Context, key Key) ([]byte, bool, error)

	// Delete удаляет запись. Удаление отсутствующей записи - не ошибка.
	Delete(ctx context.Context, key Key) error

	// ListSlots возвращает занятые слоты владельца по возрастанию
	ListSlots(ctx context.Context, owner uuid.UUID) ([]int, error)

	// Close освобождает ресурсы хранилища
	Close() error
}

// ErrClosed возвращается при обращении к закрытому хранилищу
var ErrClosed = errors.New("storage is closed")

// Error оборачивает сбой нижележащего хранилища
type Error struct {
	Op  string // upsert, get, delete, list, open
	Key Key
	Err error
}

func (e *Error) Error() string {
	if e.Key == (Key{}) {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsStorageError проверяет, является ли ошибка сбоем хранилища
func IsStorageError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

func wrap(op string, key Key, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Key: key, Err: err}
}

func validKey(key Key) error {
	if key.Owner == uuid.Nil {
		return fmt.Errorf("недействительный владелец: %s", key.Owner)
	}
	if key.Slot < 1 {
		return fmt.Errorf("недействительный слот: %d", key.Slot)
	}
	return nil
}
