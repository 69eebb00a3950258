package model

import "time"

// User is a registered seller account.
type User struct {
	ID        uint      `gorm:"primaryKey"`
	Email     string    `gorm:"type:varchar(191);uniqueIndex"`
	Password  string    `gorm:"not null"` // bcrypt hash
	StoreName string    `gorm:"type:varchar(191)"`
	Role      string    `gorm:"type:varchar(16);default:seller"` // seller / admin
	CreatedAt time.Time

	Products []Product `gorm:"foreignKey:UserID"`
}
