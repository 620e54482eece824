package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sunilseervi6/SmartQ/internal/models"
	"github.com/sunilseervi6/SmartQ/internal/queue"
	"github.com/sunilseervi6/SmartQ/internal/response"
	"github.com/sunilseervi6/SmartQ/internal/storage"

	"github.com/gin-gonic/gin"
)

// QueueEngine — ядро очереди; инициализируется в main.
var QueueEngine *queue.Engine

type JoinQueueRequest struct {
	DisplayName string `json:"display_name" binding:"max=100"`
	Priority    string `json:"priority" binding:"omitempty,oneof=normal urgent vip"`
	Notes       string `json:"notes" binding:"max=200"`
}

type JoinQueueResponse struct {
	Message       string    `json:"message"`
	EntryID       uint      `json:"entry_id"`
	QueueNumber   int       `json:"queue_number"`
	Position      int       `json:"position"`
	EstimatedWait int       `json:"estimated_wait"`
	Status        string    `json:"status"`
	JoinedAt      time.Time `json:"joined_at"`
}

// JoinQueueHandler обрабатывает запрос на вступление в очередь комнаты
// @Summary		Вступление в очередь
// @Description	Проводит запрос через контроль допуска, выдаёт номер и возвращает позицию с оценкой ожидания
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			id		path		string				true	"ID или код комнаты"
// @Param			entry	body		JoinQueueRequest	false	"Параметры записи"
// @Security		BearerAuth
// @Success		201	{object}	JoinQueueResponse
// @Failure		400	{object}	response.ErrorResponse	"Отказ допуска (ROOM_INACTIVE, QUEUE_CLOSED, ALREADY_IN_QUEUE, QUEUE_FULL) или ошибка валидации (VALIDATION_ERROR)"
// @Failure		404	{object}	response.ErrorResponse	"Комната не найдена (NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/queues/{id}/join [post]
func JoinQueueHandler(c *gin.Context) {
	room, err := findRoom(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "Комната не найдена",
		})
		return
	}

	var req JoinQueueRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "Ошибка валидации данных",
				Details: err.Error(),
			})
			return
		}
	}

	userID := c.GetUint("userID")
	entry, err := QueueEngine.Join(queue.JoinParams{
		RoomID:      room.ID,
		CustomerID:  userID,
		DisplayName: req.DisplayName,
		Priority:    req.Priority,
		Notes:       req.Notes,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}

	position, wait, err := QueueEngine.Position(entry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка вычисления позиции",
		})
		return
	}

	notifyUser(userID, models.NotifyQueueJoined, "Вы в очереди",
		fmt.Sprintf("Ваш номер %d, позиция %d", entry.QueueNumber, position),
		entry.RoomID, entry.ID)

	c.JSON(http.StatusCreated, JoinQueueResponse{
		Message:       "Вступление в очередь прошло успешно",
		EntryID:       entry.ID,
		QueueNumber:   entry.QueueNumber,
		Position:      position,
		EstimatedWait: wait,
		Status:        entry.Status,
		JoinedAt:      entry.JoinedAt,
	})
}

// LeaveQueueHandler обрабатывает выход клиента из очереди
// @Summary		Выход из очереди
// @Description	Отменяет собственную запись в статусе waiting; после вызова к обслуживанию выход невозможен
// @Tags			queue
// @Produce		json
// @Param			entryId	path	string	true	"ID записи"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse
// @Failure		400	{object}	response.ErrorResponse	"Неверный идентификатор (INVALID_ENTRY_ID)"
// @Failure		403	{object}	response.ErrorResponse	"Чужая запись (FORBIDDEN)"
// @Failure		404	{object}	response.ErrorResponse	"Запись не найдена (NOT_FOUND)"
// @Failure		409	{object}	response.ErrorResponse	"Запись уже вызвана или закрыта (INVALID_TRANSITION)"
// @Router			/api/entries/{entryId} [delete]
func LeaveQueueHandler(c *gin.Context) {
	entryID, ok := entryIDParam(c)
	if !ok {
		return
	}

	userID := c.GetUint("userID")
	if err := QueueEngine.Leave(entryID, userID); err != nil {
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Вы успешно вышли из очереди"})
}

type CalledCustomerResponse struct {
	Message       string     `json:"message"`
	EntryID       uint       `json:"entry_id"`
	QueueNumber   int        `json:"queue_number"`
	CustomerID    uint       `json:"customer_id"`
	DisplayName   string     `json:"display_name,omitempty"`
	Priority      string     `json:"priority"`
	Notes         string     `json:"notes,omitempty"`
	JoinedAt      time.Time  `json:"joined_at"`
	CalledAt      *time.Time `json:"called_at"`
}

// CallNextHandler вызывает следующего клиента комнаты
// @Summary		Вызов следующего
// @Description	Выбирает ожидающего с наивысшим приоритетом (vip, urgent, normal; внутри приоритета — по номеру) и переводит его в обслуживание
// @Tags			queue
// @Produce		json
// @Param			id	path	string	true	"ID или код комнаты"
// @Security		BearerAuth
// @Success		200	{object}	CalledCustomerResponse
// @Failure		403	{object}	response.ErrorResponse	"Комната чужого заведения (FORBIDDEN)"
// @Failure		404	{object}	response.ErrorResponse	"Комната не найдена (NOT_FOUND) или нет ожидающих (NOTHING_TO_CALL)"
// @Failure		409	{object}	response.ErrorResponse	"Конфликт параллельных вызовов (TRANSIENT_CONFLICT)"
// @Router			/api/queues/{id}/call-next [post]
func CallNextHandler(c *gin.Context) {
	room, ok := roomOwnedBy(c)
	if !ok {
		return
	}

	entry, err := QueueEngine.CallNext(room.ID)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	notifyUser(entry.CustomerID, models.NotifyYourTurn, "Ваша очередь",
		fmt.Sprintf("Номер %d приглашён к обслуживанию", entry.QueueNumber),
		entry.RoomID, entry.ID)

	c.JSON(http.StatusOK, CalledCustomerResponse{
		Message:     "Клиент вызван",
		EntryID:     entry.ID,
		QueueNumber: entry.QueueNumber,
		CustomerID:  entry.CustomerID,
		DisplayName: entry.DisplayName,
		Priority:    entry.Priority,
		Notes:       entry.Notes,
		JoinedAt:    entry.JoinedAt,
		CalledAt:    entry.CalledAt,
	})
}

// CompleteHandler завершает обслуживание записи
// @Summary		Завершение обслуживания
// @Tags			queue
// @Produce		json
// @Param			entryId	path	string	true	"ID записи"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse
// @Failure		400	{object}	response.ErrorResponse	"Неверный идентификатор (INVALID_ENTRY_ID)"
// @Failure		403	{object}	response.ErrorResponse	"Запись чужого заведения (FORBIDDEN)"
// @Failure		404	{object}	response.ErrorResponse	"Запись не найдена (NOT_FOUND)"
// @Failure		409	{object}	response.ErrorResponse	"Запись не в обслуживании (INVALID_TRANSITION)"
// @Router			/api/entries/{entryId}/complete [put]
func CompleteHandler(c *gin.Context) {
	entry, ok := staffEntry(c)
	if !ok {
		return
	}

	if err := QueueEngine.Complete(entry.ID); err != nil {
		writeEngineError(c, err)
		return
	}

	notifyUser(entry.CustomerID, models.NotifyQueueCompleted, "Обслуживание завершено",
		fmt.Sprintf("Запись с номером %d закрыта", entry.QueueNumber),
		entry.RoomID, entry.ID)

	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Обслуживание завершено"})
}

// NoShowHandler помечает вызванную запись как неявку
// @Summary		Отметка неявки
// @Tags			queue
// @Produce		json
// @Param			entryId	path	string	true	"ID записи"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse
// @Failure		400	{object}	response.ErrorResponse	"Неверный идентификатор (INVALID_ENTRY_ID)"
// @Failure		403	{object}	response.ErrorResponse	"Запись чужого заведения (FORBIDDEN)"
// @Failure		404	{object}	response.ErrorResponse	"Запись не найдена (NOT_FOUND)"
// @Failure		409	{object}	response.ErrorResponse	"Запись не в обслуживании (INVALID_TRANSITION)"
// @Router			/api/entries/{entryId}/no-show [put]
func NoShowHandler(c *gin.Context) {
	entry, ok := staffEntry(c)
	if !ok {
		return
	}

	if err := QueueEngine.MarkNoShow(entry.ID); err != nil {
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Запись помечена как неявка"})
}

// ClearQueueHandler отменяет все активные записи комнаты
// @Summary		Очистка очереди
// @Description	Все активные записи переводятся в cancelled, история и дневная нумерация сохраняются
// @Tags			queue
// @Produce		json
// @Param			id	path	string	true	"ID или код комнаты"
// @Security		BearerAuth
// @Success		200	{object}	response.CountResponse
// @Failure		403	{object}	response.ErrorResponse	"Комната чужого заведения (FORBIDDEN)"
// @Failure		404	{object}	response.ErrorResponse	"Комната не найдена (NOT_FOUND)"
// @Router			/api/queues/{id}/clear [delete]
func ClearQueueHandler(c *gin.Context) {
	room, ok := roomOwnedBy(c)
	if !ok {
		return
	}

	count, err := QueueEngine.Clear(room.ID)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.CountResponse{
		Message: "Очередь очищена",
		Count:   count,
	})
}

type QueueSnapshotResponse struct {
	Room  RoomResponse   `json:"room"`
	Queue queue.Snapshot `json:"queue"`
}

// GetQueueSnapshotHandler возвращает текущее состояние очереди комнаты
// @Summary		Состояние очереди
// @Description	Публичная модель чтения: записи в порядке вызова, позиции и оценки ожидания на момент запроса
// @Tags			queue
// @Produce		json
// @Param			id	path	string	true	"ID или код комнаты"
// @Success		200	{object}	QueueSnapshotResponse
// @Failure		404	{object}	response.ErrorResponse	"Комната не найдена (NOT_FOUND)"
// @Router			/api/queues/{id} [get]
func GetQueueSnapshotHandler(c *gin.Context) {
	room, err := findRoom(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "Комната не найдена",
		})
		return
	}

	snap, err := QueueEngine.Snapshot(room.ID)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, QueueSnapshotResponse{
		Room:  roomResponse(room),
		Queue: *snap,
	})
}

// MyStatusHandler возвращает активные записи текущего клиента
// @Summary		Мои очереди
// @Description	Все активные записи клиента с живыми позициями и оценками ожидания
// @Tags			queue
// @Produce		json
// @Security		BearerAuth
// @Success		200	{array}		queue.CustomerStatus
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/my-queues [get]
func MyStatusHandler(c *gin.Context) {
	userID := c.GetUint("userID")

	statuses, err := QueueEngine.MyStatus(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка загрузки записей",
		})
		return
	}

	c.JSON(http.StatusOK, statuses)
}

// entryIDParam извлекает идентификатор записи из параметра entryId.
func entryIDParam(c *gin.Context) (uint, bool) {
	var entryID uint
	if _, err := fmt.Sscanf(c.Param("entryId"), "%d", &entryID); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_ENTRY_ID",
			Message: "Неверный идентификатор записи",
		})
		return 0, false
	}
	return entryID, true
}

// staffEntry загружает запись и проверяет, что её комнатой владеет текущий
// пользователь. При ошибке ответ уже записан.
func staffEntry(c *gin.Context) (*models.QueueEntry, bool) {
	entryID, ok := entryIDParam(c)
	if !ok {
		return nil, false
	}

	entry, err := QueueEngine.Entry(entryID)
	if err != nil {
		writeEngineError(c, err)
		return nil, false
	}

	userID := c.GetUint("userID")
	if !ownsRoom(entry.RoomID, userID) {
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    "FORBIDDEN",
			Message: "Запись принадлежит чужому заведению",
		})
		return nil, false
	}
	return entry, true
}

// writeEngineError переводит ошибки движка очереди в коды API.
func writeEngineError(c *gin.Context, err error) {
	var adm *queue.AdmissionError
	switch {
	case errors.As(err, &adm):
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    admissionCode(adm.Reason),
			Message: admissionMessage(adm.Reason),
		})
	case errors.Is(err, queue.ErrNotFound):
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "Комната или запись не найдены",
		})
	case errors.Is(err, queue.ErrEmptyQueue):
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "NOTHING_TO_CALL",
			Message: "Ожидающих в очереди нет",
		})
	case errors.Is(err, queue.ErrInvalidTransition), errors.Is(err, queue.ErrStaleState):
		c.JSON(http.StatusConflict, response.ErrorResponse{
			Code:    "INVALID_TRANSITION",
			Message: "Операция не соответствует текущему статусу записи, обновите данные",
		})
	case errors.Is(err, queue.ErrTransientConflict):
		c.JSON(http.StatusConflict, response.ErrorResponse{
			Code:    "TRANSIENT_CONFLICT",
			Message: "Конфликт параллельных операций, повторите попытку",
		})
	case errors.Is(err, queue.ErrNotOwner):
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    "FORBIDDEN",
			Message: "Запись принадлежит другому пользователю",
		})
	default:
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Внутренняя ошибка",
			Details: err.Error(),
		})
	}
}

func admissionCode(reason queue.AdmissionReason) string {
	switch reason {
	case queue.ReasonRoomInactive:
		return "ROOM_INACTIVE"
	case queue.ReasonQueueClosed:
		return "QUEUE_CLOSED"
	case queue.ReasonAlreadyQueued:
		return "ALREADY_IN_QUEUE"
	case queue.ReasonQueueFull:
		return "QUEUE_FULL"
	default:
		return "ADMISSION_REJECTED"
	}
}

func admissionMessage(reason queue.AdmissionReason) string {
	switch reason {
	case queue.ReasonRoomInactive:
		return "Комната не принимает записи"
	case queue.ReasonQueueClosed:
		return "Приём закрыт, загляните в часы работы"
	case queue.ReasonAlreadyQueued:
		return "Вы уже состоите в этой очереди"
	case queue.ReasonQueueFull:
		return "Очередь заполнена"
	default:
		return "Вступление в очередь отклонено"
	}
}

// ownsRoom проверяет, что комнатой владеет пользователь (через заведение).
func ownsRoom(roomID, userID uint) bool {
	var count int64
	err := storage.DB.Model(&models.Room{}).
		Joins("JOIN shops ON shops.id = rooms.shop_id").
		Where("rooms.id = ? AND shops.owner_id = ?", roomID, userID).
		Count(&count).Error
	return err == nil && count > 0
}
