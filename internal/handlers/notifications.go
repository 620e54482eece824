package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/sunilseervi6/SmartQ/internal/models"
	"github.com/sunilseervi6/SmartQ/internal/response"
	"github.com/sunilseervi6/SmartQ/internal/storage"

	"github.com/gin-gonic/gin"
)

// notifyUser создаёт уведомление пользователю. Сбой записи уведомления
// логируется и не влияет на основную операцию.
func notifyUser(userID uint, notifyType, title, message string, roomID, entryID uint) {
	n := models.Notification{
		UserID:  userID,
		Type:    notifyType,
		Title:   title,
		Message: message,
		RoomID:  roomID,
		EntryID: entryID,
	}
	if err := storage.DB.Create(&n).Error; err != nil {
		log.Println("Ошибка создания уведомления:", err)
	}
}

type NotificationResponse struct {
	ID        uint       `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	RoomID    uint       `json:"room_id,omitempty"`
	EntryID   uint       `json:"entry_id,omitempty"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// GetNotificationsHandler возвращает уведомления текущего пользователя
// @Summary		Список уведомлений
// @Tags			notifications
// @Produce		json
// @Security		BearerAuth
// @Success		200	{array}		NotificationResponse
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/notifications [get]
func GetNotificationsHandler(c *gin.Context) {
	userID := c.GetUint("userID")

	var notifications []models.Notification
	if err := storage.DB.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(50).Find(&notifications).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка загрузки уведомлений",
		})
		return
	}

	result := make([]NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		result = append(result, NotificationResponse{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			RoomID:    n.RoomID,
			EntryID:   n.EntryID,
			IsRead:    n.IsRead,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, result)
}

// MarkNotificationReadHandler помечает уведомление прочитанным
// @Summary		Отметка о прочтении
// @Tags			notifications
// @Produce		json
// @Param			id	path	string	true	"ID уведомления"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse
// @Failure		400	{object}	response.ErrorResponse	"Неверный идентификатор (INVALID_NOTIFICATION_ID)"
// @Failure		404	{object}	response.ErrorResponse	"Уведомление не найдено (NOTIFICATION_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/notifications/{id}/read [put]
func MarkNotificationReadHandler(c *gin.Context) {
	notificationID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_NOTIFICATION_ID",
			Message: "Неверный идентификатор уведомления",
		})
		return
	}

	userID := c.GetUint("userID")
	now := time.Now()
	res := storage.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка обновления уведомления",
		})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "NOTIFICATION_NOT_FOUND",
			Message: "Уведомление не найдено",
		})
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Уведомление прочитано"})
}
