package models

import (
	"gorm.io/gorm"
)

type Shop struct {
	gorm.Model
	Name        string `gorm:"not null"`
	Address     string `gorm:"not null"`
	Category    string `gorm:"not null"`
	ShopCode    string `gorm:"uniqueIndex;not null"` // Публичный код заведения, формат SHOP-XXXXXX
	OwnerID     uint   `gorm:"index;not null"`
	Owner       User   `gorm:"foreignKey:OwnerID"`
	Description string
	Phone       string
	Email       string
	IsActive    bool `gorm:"default:true"`
}
