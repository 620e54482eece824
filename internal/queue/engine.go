package queue

import (
	"errors"
	"log"
	"time"

	"github.com/sunilseervi6/SmartQ/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Сколько раз повторяем транзакцию вступления при конфликте уникального
// индекса номеров.
const maxJoinAttempts = 3

// Статусы, считающиеся активными: такие записи занимают место в очереди.
var activeStatuses = []string{models.StatusWaiting, models.StatusInProgress}

// Engine — ядро очереди: контроль допуска, выдача номеров, машина статусов
// и выбор следующего. Все изменения проходят через условные обновления и
// транзакции, поэтому движок безопасен при произвольном числе параллельных
// обработчиков запросов.
type Engine struct {
	db       *gorm.DB
	notifier Notifier
	now      func() time.Time
	dayKey   func(time.Time) string
}

type Option func(*Engine)

// WithNotifier подключает получателя снимков очереди.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock подменяет источник времени (для тестов часов приёма).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDayKey подменяет функцию ключа дня, чтобы тесты могли детерминированно
// симулировать смену суток.
func WithDayKey(fn func(time.Time) string) Option {
	return func(e *Engine) { e.dayKey = fn }
}

func NewEngine(db *gorm.DB, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		notifier: NopNotifier{},
		now:      time.Now,
		dayKey:   DayKey,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type JoinParams struct {
	RoomID      uint
	CustomerID  uint
	DisplayName string
	Priority    string
	Notes       string
}

// Join проводит запрос через контроль допуска, выдаёт номер и создаёт
// запись waiting. Строка комнаты блокируется на время транзакции, поэтому
// проверки ёмкости и выдача номера для одной комнаты сериализованы; номер и
// запись появляются только вместе.
func (e *Engine) Join(p JoinParams) (*models.QueueEntry, error) {
	priority := p.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	var created models.QueueEntry
	for attempt := 1; ; attempt++ {
		err := e.db.Transaction(func(tx *gorm.DB) error {
			var room models.Room
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, p.RoomID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}

			if !room.IsActive {
				return &AdmissionError{Reason: ReasonRoomInactive}
			}
			now := e.now()
			if !withinOperatingHours(room.OpensAt, room.ClosesAt, now) {
				return &AdmissionError{Reason: ReasonQueueClosed}
			}

			var existing int64
			if err := tx.Model(&models.QueueEntry{}).
				Where("room_id = ? AND customer_id = ? AND status IN ?", room.ID, p.CustomerID, activeStatuses).
				Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				return &AdmissionError{Reason: ReasonAlreadyQueued}
			}

			// Ёмкость считается по таблице записей внутри той же транзакции,
			// что и выдача номера; счётчику на комнате здесь доверять нельзя.
			var current int64
			if err := tx.Model(&models.QueueEntry{}).
				Where("room_id = ? AND status IN ?", room.ID, activeStatuses).
				Count(&current).Error; err != nil {
				return err
			}
			if current >= int64(room.MaxCapacity) {
				return &AdmissionError{Reason: ReasonQueueFull}
			}

			day := e.dayKey(now)
			var maxNumber int
			row := tx.Model(&models.QueueEntry{}).
				Where("room_id = ? AND day_key = ?", room.ID, day).
				Select("COALESCE(MAX(queue_number), 0)").Row()
			if err := row.Scan(&maxNumber); err != nil {
				return err
			}

			entry := models.QueueEntry{
				RoomID:      room.ID,
				CustomerID:  p.CustomerID,
				DayKey:      day,
				QueueNumber: maxNumber + 1,
				Priority:    priority,
				Status:      models.StatusWaiting,
				JoinedAt:    now,
				DisplayName: p.DisplayName,
				Notes:       p.Notes,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}

			if err := tx.Model(&models.Room{}).Where("id = ?", room.ID).
				Update("current_queue_count", current+1).Error; err != nil {
				return err
			}

			created = entry
			return nil
		})
		if err == nil {
			break
		}
		// Блокировка комнаты сериализует выдачу номеров, уникальный индекс
		// (room_id, day_key, queue_number) страхует: при конфликте повторяем
		// транзакцию целиком.
		if errors.Is(err, gorm.ErrDuplicatedKey) && attempt < maxJoinAttempts {
			continue
		}
		return nil, err
	}

	e.publish(created.RoomID)
	return &created, nil
}

// Entry возвращает запись очереди по идентификатору.
func (e *Engine) Entry(entryID uint) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := e.db.First(&entry, entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// Leave отменяет собственную запись клиента. Разрешён только статус waiting:
// после вызова к обслуживанию запись закрывает персонал (complete или
// no-show).
func (e *Engine) Leave(entryID, customerID uint) error {
	var entry models.QueueEntry
	if err := e.db.First(&entry, entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if entry.CustomerID != customerID {
		return ErrNotOwner
	}

	now := e.now()
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := transition(tx, entry.ID, models.StatusWaiting, models.StatusCancelled,
			map[string]interface{}{"completed_at": now}); err != nil {
			return err
		}
		return refreshRoomCount(tx, entry.RoomID)
	})
	if errors.Is(err, ErrStaleState) {
		return ErrInvalidTransition
	}
	if err != nil {
		return err
	}

	e.publish(entry.RoomID)
	return nil
}

// CallNext выбирает ожидающего с наименьшим ключом порядка и переводит его в
// in_progress условным обновлением. Если обновление не прошло (гонку выиграл
// параллельный вызов), кандидат выбирается заново один раз; дальше — отказ
// с ErrTransientConflict, без бесконечного цикла.
func (e *Engine) CallNext(roomID uint) (*models.QueueEntry, error) {
	var room models.Room
	if err := e.db.First(&room, roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		var next models.QueueEntry
		err := e.db.
			Where("room_id = ? AND status = ?", roomID, models.StatusWaiting).
			Order(orderExpr).
			First(&next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEmptyQueue
		}
		if err != nil {
			return nil, err
		}

		now := e.now()
		err = transition(e.db, next.ID, models.StatusWaiting, models.StatusInProgress,
			map[string]interface{}{"called_at": now})
		if errors.Is(err, ErrStaleState) {
			continue
		}
		if err != nil {
			return nil, err
		}

		next.Status = models.StatusInProgress
		next.CalledAt = &now
		e.publish(roomID)
		return &next, nil
	}

	return nil, ErrTransientConflict
}

// Complete завершает обслуживание вызванной записи.
func (e *Engine) Complete(entryID uint) error {
	return e.finish(entryID, models.StatusCompleted)
}

// MarkNoShow помечает вызванную запись как неявку.
func (e *Engine) MarkNoShow(entryID uint) error {
	return e.finish(entryID, models.StatusNoShow)
}

func (e *Engine) finish(entryID uint, terminal string) error {
	var entry models.QueueEntry
	if err := e.db.First(&entry, entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	now := e.now()
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := transition(tx, entry.ID, models.StatusInProgress, terminal,
			map[string]interface{}{"completed_at": now}); err != nil {
			return err
		}
		return refreshRoomCount(tx, entry.RoomID)
	})
	if errors.Is(err, ErrStaleState) {
		return ErrInvalidTransition
	}
	if err != nil {
		return err
	}

	e.publish(entry.RoomID)
	return nil
}

// Clear отменяет все активные записи комнаты одной условной операцией и
// возвращает число отменённых. Записи не удаляются: история и дневная
// нумерация сохраняются.
func (e *Engine) Clear(roomID uint) (int64, error) {
	var room models.Room
	if err := e.db.First(&room, roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	var cancelled int64
	now := e.now()
	err := e.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.QueueEntry{}).
			Where("room_id = ? AND status IN ?", roomID, activeStatuses).
			Updates(map[string]interface{}{
				"status":       models.StatusCancelled,
				"completed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		cancelled = res.RowsAffected
		return refreshRoomCount(tx, roomID)
	})
	if err != nil {
		return 0, err
	}

	e.publish(roomID)
	return cancelled, nil
}

// Snapshot строит модель чтения очереди комнаты: вызванные записи первыми,
// ожидающие — в порядке вызова с живыми позициями и оценкой ожидания.
func (e *Engine) Snapshot(roomID uint) (*Snapshot, error) {
	var room models.Room
	if err := e.db.First(&room, roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var entries []models.QueueEntry
	if err := e.db.
		Where("room_id = ? AND status IN ?", roomID, activeStatuses).
		Order(orderExpr).
		Find(&entries).Error; err != nil {
		return nil, err
	}

	snap := &Snapshot{
		RoomID:       room.ID,
		CurrentCount: len(entries),
		MaxCapacity:  room.MaxCapacity,
		Entries:      make([]SnapshotEntry, 0, len(entries)),
	}

	for _, en := range entries {
		if en.Status != models.StatusInProgress {
			continue
		}
		snap.Entries = append(snap.Entries, snapshotEntry(&en, 0))
	}
	position := 0
	for _, en := range entries {
		if en.Status != models.StatusWaiting {
			continue
		}
		position++
		snap.Entries = append(snap.Entries, snapshotEntry(&en, position))
	}

	return snap, nil
}

func snapshotEntry(en *models.QueueEntry, position int) SnapshotEntry {
	return SnapshotEntry{
		ID:            en.ID,
		QueueNumber:   en.QueueNumber,
		Position:      position,
		CustomerID:    en.CustomerID,
		DisplayName:   en.DisplayName,
		Priority:      en.Priority,
		Status:        en.Status,
		EstimatedWait: EstimatedWait(position),
		JoinedAt:      en.JoinedAt,
	}
}

// Position возвращает живую позицию ожидающей записи и оценку ожидания в
// минутах. Для записей вне статуса waiting позиция равна нулю.
func (e *Engine) Position(entry *models.QueueEntry) (int, int, error) {
	if entry.Status != models.StatusWaiting {
		return 0, 0, nil
	}
	rank := priorityRank(entry.Priority)
	var ahead int64
	err := e.db.Model(&models.QueueEntry{}).
		Where("room_id = ? AND status = ?", entry.RoomID, models.StatusWaiting).
		Where("("+rankExpr+" > ?) OR ("+rankExpr+" = ? AND queue_number < ?)",
			rank, rank, entry.QueueNumber).
		Count(&ahead).Error
	if err != nil {
		return 0, 0, err
	}
	position := int(ahead) + 1
	return position, EstimatedWait(position), nil
}

// CustomerStatus — активная запись клиента с живой позицией.
type CustomerStatus struct {
	EntryID       uint      `json:"entry_id"`
	RoomID        uint      `json:"room_id"`
	RoomName      string    `json:"room_name"`
	RoomCode      string    `json:"room_code"`
	QueueNumber   int       `json:"queue_number"`
	Status        string    `json:"status"`
	Position      int       `json:"position"`
	EstimatedWait int       `json:"estimated_wait"`
	JoinedAt      time.Time `json:"joined_at"`
}

// MyStatus возвращает все активные записи клиента по всем комнатам,
// позиции и оценки пересчитываются на момент запроса.
func (e *Engine) MyStatus(customerID uint) ([]CustomerStatus, error) {
	var entries []models.QueueEntry
	if err := e.db.
		Preload("Room").
		Where("customer_id = ? AND status IN ?", customerID, activeStatuses).
		Order("joined_at DESC").
		Find(&entries).Error; err != nil {
		return nil, err
	}

	statuses := make([]CustomerStatus, 0, len(entries))
	for i := range entries {
		en := &entries[i]
		position, wait, err := e.Position(en)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, CustomerStatus{
			EntryID:       en.ID,
			RoomID:        en.RoomID,
			RoomName:      en.Room.Name,
			RoomCode:      en.Room.RoomCode,
			QueueNumber:   en.QueueNumber,
			Status:        en.Status,
			Position:      position,
			EstimatedWait: wait,
			JoinedAt:      en.JoinedAt,
		})
	}
	return statuses, nil
}

// CancelStale отменяет записи, ожидающие дольше допустимого горизонта, по
// всем комнатам. Возвращает общее число отменённых.
func (e *Engine) CancelStale(olderThan time.Time) (int64, error) {
	var roomIDs []uint
	if err := e.db.Model(&models.QueueEntry{}).
		Where("status = ? AND joined_at < ?", models.StatusWaiting, olderThan).
		Distinct().
		Pluck("room_id", &roomIDs).Error; err != nil {
		return 0, err
	}

	var total int64
	now := e.now()
	for _, roomID := range roomIDs {
		var cancelled int64
		err := e.db.Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.QueueEntry{}).
				Where("room_id = ? AND status = ? AND joined_at < ?", roomID, models.StatusWaiting, olderThan).
				Updates(map[string]interface{}{
					"status":       models.StatusCancelled,
					"completed_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			cancelled = res.RowsAffected
			return refreshRoomCount(tx, roomID)
		})
		if err != nil {
			return total, err
		}
		total += cancelled
		e.publish(roomID)
	}
	return total, nil
}

// SyncRoomCounters пересчитывает денормализованные счётчики всех комнат по
// таблице записей.
func (e *Engine) SyncRoomCounters() error {
	var roomIDs []uint
	if err := e.db.Model(&models.Room{}).Pluck("id", &roomIDs).Error; err != nil {
		return err
	}
	for _, roomID := range roomIDs {
		if err := refreshRoomCount(e.db, roomID); err != nil {
			return err
		}
	}
	return nil
}

// transition выполняет единственное условное обновление статуса: перевод в
// to проходит только из статуса from. Несработавшее условие означает, что
// статус успел измениться, — возвращается ErrStaleState, перезаписи не
// происходит.
func transition(db *gorm.DB, entryID uint, from, to string, stamp map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for k, v := range stamp {
		updates[k] = v
	}
	res := db.Model(&models.QueueEntry{}).
		Where("id = ? AND status = ?", entryID, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// refreshRoomCount пересчитывает счётчик активных записей комнаты по
// таблице записей в рамках переданной транзакции.
func refreshRoomCount(tx *gorm.DB, roomID uint) error {
	var count int64
	if err := tx.Model(&models.QueueEntry{}).
		Where("room_id = ? AND status IN ?", roomID, activeStatuses).
		Count(&count).Error; err != nil {
		return err
	}
	return tx.Model(&models.Room{}).Where("id = ?", roomID).
		Update("current_queue_count", count).Error
}

// publish отправляет подписчикам свежий снимок очереди. Сбой формирования
// или доставки логируется и не влияет на уже зафиксированное изменение.
func (e *Engine) publish(roomID uint) {
	snap, err := e.Snapshot(roomID)
	if err != nil {
		log.Println("Не удалось сформировать снимок очереди:", err)
		return
	}
	if err := e.notifier.Publish(roomID, *snap); err != nil {
		log.Println("Не удалось опубликовать снимок очереди:", err)
	}
}
