package models

import "time"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleAnonym Role = "anonym"
)

type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Role         Role      `gorm:"type:varchar(16);not null;default:user" json:"role"`
	Username     string    `gorm:"type:varchar(64);uniqueIndex" json:"username"`
	Email        *string   `gorm:"type:varchar(256);uniqueIndex" json:"email"`
	PasswordHash *string   `gorm:"type:varchar(128)" json:"-"`
	IsActivated  bool      `gorm:"not null;default:false" json:"is_activated"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
