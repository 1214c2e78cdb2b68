package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	// InkMax is the hard cap on a user's spendable ink balance.
	InkMax = 999
	// WelcomeInk is granted once when the profile is created.
	WelcomeInk = 10
)

// User represents a reader/author profile. Passwords are stored as bcrypt hashes only.
// Level is a cached projection of XP: every write path that changes XP must
// recompute and persist Level in the same update.
type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Username     string `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email        string `gorm:"size:255" json:"email"`
	PasswordHash string `gorm:"size:255" json:"-"`
	RegisterIP   string `gorm:"size:45" json:"-"`

	Ink           int `gorm:"default:0" json:"ink"`
	XP            int `gorm:"column:xp;default:0" json:"xp"`
	Level         int `gorm:"default:1" json:"level"`
	TotalInkSpent int `gorm:"default:0" json:"total_ink_spent"`

	DailyWriteCount     int     `gorm:"default:0" json:"daily_write_count"`
	LastBookCreatedDate *string `gorm:"size:10" json:"last_book_created_date"`
	LastAttendanceDate  *string `gorm:"size:10" json:"last_attendance_date"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook ensures timestamps and defaults are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Level == 0 {
		u.Level = 1
	}
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
