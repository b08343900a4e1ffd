package models

import (
	"time"
)

type AccessKey struct {
	ID             uint   `gorm:"primaryKey"`
	KeyID          string `gorm:"size:255;uniqueIndex;not null"`
	Name           string `gorm:"size:255"`
	AccessURL      string `gorm:"size:1024;not null"`
	UserID         UserID `gorm:"not null;index"`
	User           User   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	SubscriptionID uint   `gorm:"not null;index"`
	Deleted        bool   `gorm:"not null;default:false;index"`
	DeletedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// All returns every model for migrations.
func All() []any {
	return []any{&User{}, &Subscription{}, &AccessKey{}, &Payment{}}
}
