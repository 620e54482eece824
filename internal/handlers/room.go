package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sunilseervi6/SmartQ/internal/models"
	"github.com/sunilseervi6/SmartQ/internal/response"
	"github.com/sunilseervi6/SmartQ/internal/storage"

	"github.com/gin-gonic/gin"
)

type RoomRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	RoomType    string `json:"room_type" binding:"required,oneof=counter doctor service consultation other"`
	Description string `json:"description" binding:"max=300"`
	MaxCapacity int    `json:"max_capacity" binding:"omitempty,min=1,max=100"`
	OpensAt     string `json:"opens_at"`  // "09:00", пустая строка — без ограничения
	ClosesAt    string `json:"closes_at"` // "17:00"
}

type RoomResponse struct {
	ID                uint   `json:"id"`
	Name              string `json:"name"`
	RoomCode          string `json:"room_code"`
	ShopID            uint   `json:"shop_id"`
	RoomType          string `json:"room_type"`
	Description       string `json:"description,omitempty"`
	MaxCapacity       int    `json:"max_capacity"`
	IsActive          bool   `json:"is_active"`
	OpensAt           string `json:"opens_at,omitempty"`
	ClosesAt          string `json:"closes_at,omitempty"`
	CurrentQueueCount int    `json:"current_queue_count"`
}

func roomResponse(room *models.Room) RoomResponse {
	return RoomResponse{
		ID:                room.ID,
		Name:              room.Name,
		RoomCode:          room.RoomCode,
		ShopID:            room.ShopID,
		RoomType:          room.RoomType,
		Description:       room.Description,
		MaxCapacity:       room.MaxCapacity,
		IsActive:          room.IsActive,
		OpensAt:           room.OpensAt,
		ClosesAt:          room.ClosesAt,
		CurrentQueueCount: room.CurrentQueueCount,
	}
}

// validOperatingHours проверяет пару границ часов приёма: либо обе пустые,
// либо обе в формате HH:MM.
func validOperatingHours(opensAt, closesAt string) bool {
	if opensAt == "" && closesAt == "" {
		return true
	}
	if opensAt == "" || closesAt == "" {
		return false
	}
	if _, err := time.Parse("15:04", opensAt); err != nil {
		return false
	}
	if _, err := time.Parse("15:04", closesAt); err != nil {
		return false
	}
	return true
}

// CreateRoomHandler создаёт комнату в заведении владельца
// @Summary		Создание комнаты
// @Description	Создаёт точку обслуживания с уникальным кодом RM-XXXXXX
// @Tags			rooms
// @Accept			json
// @Produce		json
// @Param			id		path		string		true	"ID заведения"
// @Param			room	body		RoomRequest	true	"Данные комнаты"
// @Security		BearerAuth
// @Success		201	{object}	RoomResponse
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (INVALID_SHOP_ID, VALIDATION_ERROR, INVALID_OPERATING_HOURS)"
// @Failure		404	{object}	response.ErrorResponse	"Заведение не найдено или чужое (SHOP_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (CODE_GENERATION_ERROR, DB_ERROR)"
// @Router			/api/shops/{id}/rooms [post]
func CreateRoomHandler(c *gin.Context) {
	shop, ok := shopOwnedBy(c)
	if !ok {
		return
	}

	var req RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}
	if !validOperatingHours(req.OpensAt, req.ClosesAt) {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_OPERATING_HOURS",
			Message: "Часы приёма задаются парой значений в формате HH:MM",
		})
		return
	}

	code, err := generateUniqueCode("RM", "room_code", &models.Room{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "CODE_GENERATION_ERROR",
			Message: "Ошибка генерации кода комнаты",
		})
		return
	}

	maxCapacity := req.MaxCapacity
	if maxCapacity == 0 {
		maxCapacity = 50
	}

	room := models.Room{
		Name:        req.Name,
		RoomCode:    code,
		ShopID:      shop.ID,
		RoomType:    req.RoomType,
		Description: req.Description,
		MaxCapacity: maxCapacity,
		IsActive:    true,
		OpensAt:     req.OpensAt,
		ClosesAt:    req.ClosesAt,
	}

	if err := storage.DB.Create(&room).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка при создании комнаты",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, roomResponse(&room))
}

// GetShopRoomsHandler возвращает комнаты заведения владельца
// @Summary		Список комнат заведения
// @Tags			rooms
// @Produce		json
// @Param			id	path	string	true	"ID заведения"
// @Security		BearerAuth
// @Success		200	{array}		RoomResponse
// @Failure		404	{object}	response.ErrorResponse	"Заведение не найдено или чужое (SHOP_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/shops/{id}/rooms [get]
func GetShopRoomsHandler(c *gin.Context) {
	shop, ok := shopOwnedBy(c)
	if !ok {
		return
	}

	var rooms []models.Room
	if err := storage.DB.Where("shop_id = ? AND is_active = ?", shop.ID, true).
		Order("created_at DESC").Find(&rooms).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка загрузки комнат",
		})
		return
	}

	result := make([]RoomResponse, 0, len(rooms))
	for i := range rooms {
		result = append(result, roomResponse(&rooms[i]))
	}
	c.JSON(http.StatusOK, result)
}

// GetRoomByCodeHandler возвращает активную комнату по публичному коду
// @Summary		Комната по коду
// @Description	Публичный поиск комнаты по коду RM-XXXXXX (например, из QR)
// @Tags			rooms
// @Produce		json
// @Param			code	path	string	true	"Код комнаты"
// @Success		200	{object}	RoomResponse
// @Failure		404	{object}	response.ErrorResponse	"Комната не найдена (ROOM_NOT_FOUND)"
// @Router			/api/rooms/code/{code} [get]
func GetRoomByCodeHandler(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))

	var room models.Room
	if err := storage.DB.Where("room_code = ? AND is_active = ?", code, true).First(&room).Error; err != nil {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "ROOM_NOT_FOUND",
			Message: "Комната не найдена",
		})
		return
	}

	c.JSON(http.StatusOK, roomResponse(&room))
}

// UpdateRoomHandler обновляет комнату владельца
// @Summary		Обновление комнаты
// @Tags			rooms
// @Accept			json
// @Produce		json
// @Param			id		path		string		true	"ID комнаты"
// @Param			room	body		RoomRequest	true	"Новые данные"
// @Security		BearerAuth
// @Success		200	{object}	RoomResponse
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (INVALID_ROOM_ID, VALIDATION_ERROR, INVALID_OPERATING_HOURS)"
// @Failure		403	{object}	response.ErrorResponse	"Комната чужого заведения (FORBIDDEN)"
// @Failure		404	{object}	response.ErrorResponse	"Комната не найдена (ROOM_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/rooms/{id} [put]
func UpdateRoomHandler(c *gin.Context) {
	room, ok := roomOwnedBy(c)
	if !ok {
		return
	}

	var req RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}
	if !validOperatingHours(req.OpensAt, req.ClosesAt) {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_OPERATING_HOURS",
			Message: "Часы приёма задаются парой значений в формате HH:MM",
		})
		return
	}

	room.Name = req.Name
	room.RoomType = req.RoomType
	room.Description = req.Description
	if req.MaxCapacity != 0 {
		room.MaxCapacity = req.MaxCapacity
	}
	room.OpensAt = req.OpensAt
	room.ClosesAt = req.ClosesAt

	if err := storage.DB.Save(room).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка при обновлении комнаты",
		})
		return
	}

	c.JSON(http.StatusOK, roomResponse(room))
}

// DeleteRoomHandler деактивирует комнату владельца
// @Summary		Удаление комнаты
// @Description	Комната деактивируется, записи очереди сохраняются
// @Tags			rooms
// @Produce		json
// @Param			id	path	string	true	"ID комнаты"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse
// @Failure		400	{object}	response.ErrorResponse	"Неверный идентификатор (INVALID_ROOM_ID)"
// @Failure		403	{object}	response.ErrorResponse	"Комната чужого заведения (FORBIDDEN)"
// @Failure		404	{object}	response.ErrorResponse	"Комната не найдена (ROOM_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/rooms/{id} [delete]
func DeleteRoomHandler(c *gin.Context) {
	room, ok := roomOwnedBy(c)
	if !ok {
		return
	}

	if err := storage.DB.Model(room).Update("is_active", false).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка при удалении комнаты",
		})
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Комната деактивирована"})
}

// findRoom загружает комнату по числовому идентификатору или публичному
// коду RM-XXXXXX.
func findRoom(idOrCode string) (*models.Room, error) {
	var room models.Room
	if id, err := strconv.Atoi(idOrCode); err == nil {
		if err := storage.DB.First(&room, id).Error; err != nil {
			return nil, err
		}
		return &room, nil
	}
	if err := storage.DB.Where("room_code = ?", strings.ToUpper(idOrCode)).First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// roomOwnedBy загружает комнату из параметра id и проверяет владение через
// заведение. При ошибке ответ уже записан.
func roomOwnedBy(c *gin.Context) (*models.Room, bool) {
	room, err := findRoom(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "ROOM_NOT_FOUND",
			Message: "Комната не найдена",
		})
		return nil, false
	}

	userID := c.GetUint("userID")
	var shop models.Shop
	if err := storage.DB.Where("id = ? AND owner_id = ?", room.ShopID, userID).First(&shop).Error; err != nil {
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    "FORBIDDEN",
			Message: "Комната принадлежит чужому заведению",
		})
		return nil, false
	}
	return room, true
}
