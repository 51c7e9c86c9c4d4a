package models

import (
	"time"

	"loyalpay/internal/domain"

	"gorm.io/gorm"
)

type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Email        string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	Role         string         `gorm:"size:20;not null;index" json:"role"` // CLIENT | PARTNER | ADMIN
	PartnerID    *uint          `gorm:"index" json:"partner_id,omitempty"` // set for PARTNER accounts
	IsActive     bool           `gorm:"not null;default:true" json:"is_active"`
	IsBlocked    bool           `gorm:"not null;default:false" json:"is_blocked"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	Wallet *Wallet `gorm:"foreignKey:UserID" json:"wallet,omitempty"`
}

func (u *User) IsAdmin() bool   { return u.Role == domain.RoleAdmin }
func (u *User) IsPartner() bool { return u.Role == domain.RolePartner }

// CanTransact reports whether the account may receive or spend funds.
func (u *User) CanTransact() bool { return u.IsActive && !u.IsBlocked }
