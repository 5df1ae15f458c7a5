package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/annel0/horsestore/internal/engine"
	"github.com/annel0/horsestore/internal/stable"
	"github.com/annel0/horsestore/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const ownerKey = "owner"

// ownerParam разбирает :owner и кладет UUID в контекст
func ownerParam() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, err := uuid.Parse(c.Param("owner"))
		if err != nil || owner == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, GenericResponse{
				Success: false,
				Message: "Неверный идентификатор владельца",
			})
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

func ownerFrom(c *gin.Context) uuid.UUID {
	return c.MustGet(ownerKey).(uuid.UUID)
}

func slotParam(c *gin.Context) (int, bool) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Номер слота должен быть числом",
		})
		return 0, false
	}
	return slot, true
}

func idParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный идентификатор: " + c.Param(name),
		})
		return uuid.Nil, false
	}
	return id, true
}

// respondError переводит ошибку сервиса в HTTP-статус
func (rs *RestServer) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "Внутренняя ошибка сервера"

	switch {
	case errors.Is(err, stable.ErrSlotOutOfRange):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, stable.ErrNotFound):
		status, message = http.StatusNotFound, "Слот пуст"
	case errors.Is(err, stable.ErrNoHorseNearby):
		status, message = http.StatusNotFound, "Рядом нет ваших лошадей"
	case errors.Is(err, stable.ErrObjectGone):
		status, message = http.StatusGone, "Лошадь больше не существует"
	case errors.Is(err, stable.ErrCorrupted):
		status, message = http.StatusConflict, "Запись испорчена и недоступна"
	case errors.Is(err, stable.ErrOwnerOffline):
		status, message = http.StatusConflict, "Владелец не в сети"
	case errors.Is(err, stable.ErrSlotsExhausted):
		status, message = http.StatusConflict, "Все слоты заняты"
	case errors.Is(err, engine.ErrWorldNotLoaded):
		status, message = http.StatusConflict, "Мир владельца не загружен"
	case storage.IsStorageError(err):
		status, message = http.StatusServiceUnavailable, "Хранилище недоступно"
	}

	if status >= 500 {
		rs.logger.Error("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, GenericResponse{Success: false, Message: message})
}

// handleList возвращает занятые слоты владельца
func (rs *RestServer) handleList(c *gin.Context) {
	list, err := rs.service.List(c.Request.Context(), ownerFrom(c))
	if err != nil {
		rs.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список лошадей получен",
		Data: map[string]interface{}{
			"horses": list,
			"total":  len(list),
		},
	})
}

// handleMenu возвращает все N ячеек меню
func (rs *RestServer) handleMenu(c *gin.Context) {
	menu, err := rs.service.Menu(c.Request.Context(), ownerFrom(c))
	if err != nil {
		rs.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Меню получено",
		Data:    menu,
	})
}

// handleLive возвращает отслеживаемых живых лошадей владельца
func (rs *RestServer) handleLive(c *gin.Context) {
	live := rs.service.Index().LiveObjectsOf(ownerFrom(c))
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Живые лошади получены",
		Data: map[string]interface{}{
			"horses": live,
			"total":  len(live),
		},
	})
}

// handleStoreLive сохраняет живую лошадь в первый свободный слот
func (rs *RestServer) handleStoreLive(c *gin.Context) {
	id, ok := idParam(c, "horse")
	if !ok || !rs.canStoreObject(c, ownerFrom(c), id) {
		return
	}
	slot, err := rs.service.Store(c.Request.Context(), ownerFrom(c), id, stable.ReasonManual)
	if err != nil {
		rs.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Лошадь сохранена",
		Data:    map[string]interface{}{"slot": slot, "horse_id": id},
	})
}

// StoreRequest - тело запроса сохранения в слот
type StoreRequest struct {
	HorseID string `json:"horse_id"` // пусто - ближайшая лошадь владельца
}

// handleStoreInSlot сохраняет лошадь в выбранный слот
func (rs *RestServer) handleStoreInSlot(c *gin.Context) {
	slot, ok := slotParam(c)
	if !ok {
		return
	}

	var req StoreRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{
				Success: false,
				Message: "Неверный формат запроса: " + err.Error(),
			})
			return
		}
	}

	var (
		res stable.StoreResult
		err error
	)
	owner := ownerFrom(c)
	if req.HorseID == "" {
		res, err = rs.service.StoreNearest(c.Request.Context(), owner, slot)
	} else {
		id, perr := uuid.Parse(req.HorseID)
		if perr != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{
				Success: false,
				Message: "Неверный horse_id",
			})
			return
		}
		if !rs.canStoreObject(c, owner, id) {
			return
		}
		res, err = rs.service.StoreInSlot(c.Request.Context(), owner, slot, id)
	}
	if err != nil {
		rs.respondError(c, err)
		return
	}

	message := "Лошадь сохранена"
	if res.Overwrote {
		message = "Лошадь сохранена, прежняя запись в слоте перезаписана"
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: message,
		Data: map[string]interface{}{
			"slot":      res.Slot,
			"horse_id":  res.Object,
			"overwrote": res.Overwrote,
		},
	})
}

// handleSpawn восстанавливает лошадь из слота перед владельцем
func (rs *RestServer) handleSpawn(c *gin.Context) {
	slot, ok := slotParam(c)
	if !ok {
		return
	}

	res, err := rs.service.Spawn(c.Request.Context(), ownerFrom(c), slot)
	if err != nil {
		rs.respondError(c, err)
		return
	}

	message := "Лошадь восстановлена"
	if res.Partial {
		message = "Лошадь восстановлена без инвентаря: он был испорчен"
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: message,
		Data: map[string]interface{}{
			"horse_id": res.Object,
			"partial":  res.Partial,
			"horse":    newStateView(res.State),
		},
	})
}

// handleDelete удаляет запись из слота
func (rs *RestServer) handleDelete(c *gin.Context) {
	slot, ok := slotParam(c)
	if !ok {
		return
	}
	if err := rs.service.Delete(c.Request.Context(), ownerFrom(c), slot); err != nil {
		rs.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Лошадь удалена",
	})
}
