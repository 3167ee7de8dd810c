package users

import (
	"time"
)

type User struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	Email          string  `gorm:"size:255;not null;uniqueIndex:idx_users_email" json:"email"`
	Username       string  `gorm:"size:50;not null;uniqueIndex:idx_users_username" json:"username"`
	HashedPassword string  `gorm:"not null" json:"-"`
	FullName       *string `gorm:"size:100" json:"full_name"`
	Role           Role    `gorm:"not null" json:"role"`
	IsActive       bool    `gorm:"not null" json:"is_active"`
	IsVerified     bool    `gorm:"not null" json:"is_verified"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
