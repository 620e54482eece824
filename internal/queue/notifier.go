package queue

import (
	"time"
)

// Notifier получает свежий снимок очереди комнаты после каждого
// зафиксированного изменения. Доставка best-effort: ошибка публикации
// логируется движком и не откатывает и не блокирует само изменение.
type Notifier interface {
	Publish(roomID uint, snap Snapshot) error
}

// NopNotifier — заглушка для тестов и конфигураций без подписчиков.
type NopNotifier struct{}

func (NopNotifier) Publish(uint, Snapshot) error { return nil }

// Snapshot — авторитетное представление очереди комнаты. Вызванные записи
// идут первыми, ожидающие — в порядке вызова; позиции и оценки ожидания
// вычислены на момент снимка.
type Snapshot struct {
	RoomID       uint            `json:"room_id"`
	CurrentCount int             `json:"current_count"`
	MaxCapacity  int             `json:"max_capacity"`
	Entries      []SnapshotEntry `json:"entries"`
}

type SnapshotEntry struct {
	ID            uint      `json:"id"`
	QueueNumber   int       `json:"queue_number"`
	Position      int       `json:"position"` // 0 для записей in_progress
	CustomerID    uint      `json:"customer_id"`
	DisplayName   string    `json:"display_name,omitempty"`
	Priority      string    `json:"priority"`
	Status        string    `json:"status"`
	EstimatedWait int       `json:"estimated_wait"` // Минуты
	JoinedAt      time.Time `json:"joined_at"`
}
