package codec

import (
	"errors"
	"fmt"
)

// ErrInventory помечает ошибку разбора только полезной нагрузки инвентаря.
// Скалярные поля при этом декодированы и могут быть применены.
var ErrInventory = errors.New("inventory payload corrupted")

// DecodeError описывает запись, которую не удалось восстановить
type DecodeError struct {
	Field string // Поле записи, на котором остановился разбор ("" - весь документ)
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode record: %v", e.Err)
	}
	return fmt.Sprintf("decode record field %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError проверяет, является ли ошибка ошибкой декодирования записи
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsPartial сообщает, что испорчен только инвентарь и скаляры доступны
func IsPartial(err error) bool {
	return IsDecodeError(err) && errors.Is(err, ErrInventory)
}

// EncodeError возвращается, если состояние нельзя представить записью
type EncodeError struct {
	Field string
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode state field %s: %v", e.Field, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
