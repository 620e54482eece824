package models

import (
	"time"

	"gorm.io/gorm"
)

// Типы уведомлений пользователя.
const (
	NotifyQueueJoined    = "queue_joined"
	NotifyYourTurn       = "your_turn"
	NotifyQueueCompleted = "queue_completed"
	NotifyQueueCancelled = "queue_cancelled"
)

type Notification struct {
	gorm.Model
	UserID  uint   `gorm:"index;not null"`
	Type    string `gorm:"not null"`
	Title   string `gorm:"not null"`
	Message string `gorm:"not null"`
	RoomID  uint   `gorm:"index"`
	EntryID uint
	IsRead  bool `gorm:"index;default:false"`
	ReadAt  *time.Time
}
