package models

import (
	"gorm.io/gorm"
)

// Роли пользователей: клиент встаёт в очередь, владелец управляет заведениями.
const (
	RoleCustomer = "customer"
	RoleOwner    = "owner"
)

type User struct {
	gorm.Model
	Name         string `gorm:"not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null;default:customer"`
}
