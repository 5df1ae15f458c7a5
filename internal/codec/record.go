// Package codec переводит состояние живой лошади в хранимую запись и обратно.
//
// Запись - плоский JSON-документ с полями world, x, y, z, speed, jump, color,
// style, customName (необязательное) и inventory. Инвентарь хранится внутри
// документа строкой Base64 (см. EncodeInventory).
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/annel0/horsestore/internal/horse"
	"github.com/annel0/horsestore/internal/vec"
)

// Record - хранимое представление одной захваченной лошади
type Record struct {
	World      string  `json:"world"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Speed      float64 `json:"speed"`
	Jump       float64 `json:"jump"`
	Color      string  `json:"color"`
	Style      string  `json:"style"`
	CustomName *string `json:"customName,omitempty"`
	Inventory  string  `json:"inventory"`
}

var errNotFinite = errors.New("value is not finite")

// Encode снимает запись с состояния. Чистая функция.
func Encode(s horse.State) (Record, error) {
	if err := checkAttribute("speed", s.Speed); err != nil {
		return Record{}, err
	}
	if err := checkAttribute("jump", s.Jump); err != nil {
		return Record{}, err
	}
	for field, v := range map[string]float64{"x": s.Position.X, "y": s.Position.Y, "z": s.Position.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Record{}, &EncodeError{Field: field, Err: errNotFinite}
		}
	}
	if !s.Color.Valid() {
		return Record{}, &EncodeError{Field: "color", Err: fmt.Errorf("%v: %w", s.Color, horse.ErrUnknownAppearance)}
	}
	if !s.Style.Valid() {
		return Record{}, &EncodeError{Field: "style", Err: fmt.Errorf("%v: %w", s.Style, horse.ErrUnknownAppearance)}
	}

	inv, err := EncodeInventory(s.Inventory)
	if err != nil {
		return Record{}, &EncodeError{Field: "inventory", Err: err}
	}

	rec := Record{
		World:     s.World,
		X:         s.Position.X,
		Y:         s.Position.Y,
		Z:         s.Position.Z,
		Speed:     s.Speed,
		Jump:      s.Jump,
		Color:     s.Color.String(),
		Style:     s.Style.String(),
		Inventory: inv,
	}
	if s.CustomName != nil {
		name := *s.CustomName
		rec.CustomName = &name
	}
	return rec, nil
}

func checkAttribute(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &EncodeError{Field: field, Err: errNotFinite}
	}
	if v < 0 {
		return &EncodeError{Field: field, Err: fmt.Errorf("negative value %v", v)}
	}
	return nil
}

// Decode восстанавливает состояние из записи.
//
// Ошибка в скалярных полях (неизвестный окрас или узор, отрицательный атрибут)
// возвращает *DecodeError и пустое состояние. Ошибка только в инвентаре
// возвращает *DecodeError, оборачивающую ErrInventory, вместе с состоянием,
// в котором заполнены скаляры, а инвентарь равен nil.
func Decode(rec Record) (horse.State, error) {
	color, err := horse.ParseColor(rec.Color)
	if err != nil {
		return horse.State{}, &DecodeError{Field: "color", Err: err}
	}
	style, err := horse.ParseStyle(rec.Style)
	if err != nil {
		return horse.State{}, &DecodeError{Field: "style", Err: err}
	}
	if rec.Speed < 0 || math.IsNaN(rec.Speed) {
		return horse.State{}, &DecodeError{Field: "speed", Err: fmt.Errorf("invalid value %v", rec.Speed)}
	}
	if rec.Jump < 0 || math.IsNaN(rec.Jump) {
		return horse.State{}, &DecodeError{Field: "jump", Err: fmt.Errorf("invalid value %v", rec.Jump)}
	}

	state := horse.State{
		World:    rec.World,
		Position: vec.Vec3Float{X: rec.X, Y: rec.Y, Z: rec.Z},
		Speed:    rec.Speed,
		Jump:     rec.Jump,
		Color:    color,
		Style:    style,
	}
	if rec.CustomName != nil {
		name := *rec.CustomName
		state.CustomName = &name
	}

	inv, err := DecodeInventory(rec.Inventory)
	if err != nil {
		return state, &DecodeError{Field: "inventory", Err: err}
	}
	state.Inventory = inv
	return state, nil
}

// Marshal сериализует запись в текстовый документ
func Marshal(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return data, nil
}

// Unmarshal разбирает текстовый документ записи
func Unmarshal(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, &DecodeError{Err: err}
	}
	return rec, nil
}

// EncodeText - Encode и Marshal одним вызовом
func EncodeText(s horse.State) ([]byte, error) {
	rec, err := Encode(s)
	if err != nil {
		return nil, err
	}
	return Marshal(rec)
}

// DecodeText - Unmarshal и Decode одним вызовом.
// Семантика частичного результата та же, что у Decode.
func DecodeText(data []byte) (horse.State, error) {
	rec, err := Unmarshal(data)
	if err != nil {
		return horse.State{}, err
	}
	return Decode(rec)
}
