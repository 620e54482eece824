package models

import (
	"time"

	"gorm.io/gorm"
)

// Статусы записи в очереди. Начальный — waiting; completed, cancelled и
// no_show — терминальные.
const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

// Приоритеты записи. Задаются при вступлении и не меняются.
const (
	PriorityNormal = "normal"
	PriorityUrgent = "urgent"
	PriorityVIP    = "vip"
)

type QueueEntry struct {
	gorm.Model
	RoomID     uint `gorm:"index:idx_entries_room_status;uniqueIndex:idx_entries_room_day_number;not null"`
	Room       Room `gorm:"foreignKey:RoomID"`
	CustomerID uint `gorm:"index;not null"`
	Customer   User `gorm:"foreignKey:CustomerID"`

	// Номер уникален в пределах комнаты и календарного дня — уникальный
	// индекс страхует выдачу номеров от гонок.
	DayKey      string `gorm:"uniqueIndex:idx_entries_room_day_number;not null"` // День выдачи номера, формат 2006-01-02
	QueueNumber int    `gorm:"uniqueIndex:idx_entries_room_day_number;not null"`

	Priority string `gorm:"not null;default:normal"`
	Status   string `gorm:"index:idx_entries_room_status;not null;default:waiting"`

	JoinedAt    time.Time  `gorm:"not null"`
	CalledAt    *time.Time // Момент вызова к обслуживанию (переход в in_progress)
	CompletedAt *time.Time // Момент перехода в терминальный статус

	DisplayName string
	Notes       string
}
