package models

import (
	"gorm.io/gorm"
)

type Room struct {
	gorm.Model
	Name        string `gorm:"not null"`
	RoomCode    string `gorm:"uniqueIndex;not null"` // Публичный код комнаты, формат RM-XXXXXX
	ShopID      uint   `gorm:"index;not null"`
	Shop        Shop   `gorm:"foreignKey:ShopID"`
	RoomType    string `gorm:"not null"` // counter, doctor, service, consultation, other
	Description string
	MaxCapacity int    `gorm:"not null;default:50"` // Лимит активных записей, от 1 до 100
	IsActive    bool   `gorm:"default:true"`
	OpensAt     string // Начало приёма, формат "09:00"; пустая строка — без ограничения
	ClosesAt    string // Конец приёма, формат "17:00"

	// Денормализованный счётчик активных записей. Обновляется в той же
	// транзакции, что и записи очереди, но служит только подсказкой для
	// быстрого чтения: контроль допуска всегда пересчитывает количество
	// по таблице записей.
	CurrentQueueCount int `gorm:"default:0"`
}
