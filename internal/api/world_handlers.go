package api

import (
	"net/http"

	"github.com/annel0/horsestore/internal/engine"
	"github.com/annel0/horsestore/internal/horse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ConnectRequest - вход игрока в мир
type ConnectRequest struct {
	ID       string      `json:"id"` // пусто - сгенерировать
	Name     string      `json:"name" binding:"required"`
	Location LocationDTO `json:"location"`
}

// SpawnHorseRequest - появление лошади в мире (приручение или дикая)
type SpawnHorseRequest struct {
	Owner    string      `json:"owner"` // пусто - дикая лошадь
	Location LocationDTO `json:"location"`
	Speed    float64     `json:"speed"`
	Jump     float64     `json:"jump"`
	Color    string      `json:"color"`
	Style    string      `json:"style"`
	Name     *string     `json:"name"`
	Saddle   bool        `json:"saddle"`
}

// RegionRequest - чанк мира
type RegionRequest struct {
	World string `json:"world" binding:"required"`
	X     int    `json:"x"`
	Z     int    `json:"z"`
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: message})
}

// handleConnect впускает игрока в мир
func (rs *RestServer) handleConnect(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}

	id := uuid.New()
	if req.ID != "" {
		parsed, err := uuid.Parse(req.ID)
		if err != nil || parsed == uuid.Nil {
			badRequest(c, "Неверный идентификатор игрока")
			return
		}
		id = parsed
	}

	rs.world.Connect(c.Request.Context(), id, req.Name, req.Location.location())
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Игрок вошел в мир",
		Data:    map[string]interface{}{"id": id},
	})
}

// handleDisconnect выводит игрока из мира
func (rs *RestServer) handleDisconnect(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if !rs.world.Disconnect(c.Request.Context(), id) {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Игрок не в сети"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Игрок вышел"})
}

// handleMovePlayer перемещает игрока
func (rs *RestServer) handleMovePlayer(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var loc LocationDTO
	if err := c.ShouldBindJSON(&loc); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}
	if err := rs.world.MovePlayer(id, loc.location()); err != nil {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Игрок перемещен"})
}

// handleSpawnWild создает лошадь в мире
func (rs *RestServer) handleSpawnWild(c *gin.Context) {
	var req SpawnHorseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}

	owner := uuid.Nil
	if req.Owner != "" {
		parsed, err := uuid.Parse(req.Owner)
		if err != nil {
			badRequest(c, "Неверный идентификатор владельца")
			return
		}
		owner = parsed
	}

	st := horse.State{Speed: req.Speed, Jump: req.Jump, CustomName: req.Name}
	if st.Speed == 0 {
		st.Speed = 0.225
	}
	if st.Jump == 0 {
		st.Jump = 0.7
	}
	var err error
	if req.Color != "" {
		if st.Color, err = horse.ParseColor(req.Color); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if req.Style != "" {
		if st.Style, err = horse.ParseStyle(req.Style); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	st.Inventory = horse.NewInventory(horse.InventorySize)
	if req.Saddle {
		st.Inventory[0] = &horse.Item{Kind: "SADDLE", Amount: 1}
	}

	id := rs.world.SpawnHorse(owner, req.Location.location(), st)
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Лошадь появилась",
		Data:    map[string]interface{}{"id": id},
	})
}

// handleGetHorse возвращает живую лошадь
func (rs *RestServer) handleGetHorse(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	h, found := rs.world.Horse(id)
	if !found {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Лошадь не найдена"})
		return
	}

	data := map[string]interface{}{
		"id":           h.ID,
		"location":     newLocationDTO(h.Loc),
		"state":        newStateView(h.State),
		"name_visible": h.NameVisible,
		"tamed":        h.Tamed(),
	}
	if h.Tamed() {
		data["owner"] = h.Owner
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Лошадь найдена", Data: data})
}

// handleMoveHorse перемещает лошадь
func (rs *RestServer) handleMoveHorse(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var loc LocationDTO
	if err := c.ShouldBindJSON(&loc); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}
	if err := rs.world.MoveHorse(id, loc.location()); err != nil {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Лошадь не найдена"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Лошадь перемещена"})
}

// handleUnloadRegion выгружает чанк
func (rs *RestServer) handleUnloadRegion(c *gin.Context) {
	var req RegionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}
	members := rs.world.UnloadRegion(c.Request.Context(), engine.Region{World: req.World, X: req.X, Z: req.Z})
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Чанк выгружен",
		Data:    map[string]interface{}{"horses": members},
	})
}

// handleLoadRegion снова загружает чанк
func (rs *RestServer) handleLoadRegion(c *gin.Context) {
	var req RegionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}
	rs.world.LoadRegion(engine.Region{World: req.World, X: req.X, Z: req.Z})
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Чанк загружен"})
}
