package api

import (
	"encoding/base64"

	"github.com/annel0/horsestore/internal/engine"
	"github.com/annel0/horsestore/internal/horse"
	"github.com/annel0/horsestore/internal/vec"
)

// LocationDTO - точка в мире в JSON
type LocationDTO struct {
	World string  `json:"world" binding:"required"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Yaw   float64 `json:"yaw"`
}

func (l LocationDTO) location() engine.Location {
	return engine.Location{World: l.World, Pos: vec.Vec3Float{X: l.X, Y: l.Y, Z: l.Z}, Yaw: l.Yaw}
}

func newLocationDTO(loc engine.Location) LocationDTO {
	return LocationDTO{World: loc.World, X: loc.Pos.X, Y: loc.Pos.Y, Z: loc.Pos.Z, Yaw: loc.Yaw}
}

// ItemView - предмет инвентаря; данные в Base64
type ItemView struct {
	Kind   string `json:"kind"`
	Amount uint32 `json:"amount"`
	Data   string `json:"data,omitempty"`
}

// StateView - наблюдаемое состояние лошади в ответах API
type StateView struct {
	World     string      `json:"world"`
	X         float64     `json:"x"`
	Y         float64     `json:"y"`
	Z         float64     `json:"z"`
	Speed     float64     `json:"speed"`
	Jump      float64     `json:"jump"`
	Color     string      `json:"color"`
	Style     string      `json:"style"`
	Name      *string     `json:"name,omitempty"`
	Inventory []*ItemView `json:"inventory"`
}

func newStateView(st horse.State) StateView {
	v := StateView{
		World:     st.World,
		X:         st.Position.X,
		Y:         st.Position.Y,
		Z:         st.Position.Z,
		Speed:     st.Speed,
		Jump:      st.Jump,
		Color:     st.Color.String(),
		Style:     st.Style.String(),
		Name:      st.CustomName,
		Inventory: make([]*ItemView, len(st.Inventory)),
	}
	for i, it := range st.Inventory {
		if it == nil {
			continue
		}
		v.Inventory[i] = &ItemView{
			Kind:   it.Kind,
			Amount: it.Amount,
			Data:   base64.StdEncoding.EncodeToString(it.Data),
		}
	}
	return v
}
