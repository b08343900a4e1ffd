package models

import (
	"time"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentCanceled  PaymentStatus = "canceled"
)

// Terminal reports whether the status can no longer change.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSucceeded || s == PaymentCanceled
}

type Payment struct {
	ID             uint          `gorm:"primaryKey"`
	PaymentID      string        `gorm:"size:255;uniqueIndex;not null"`
	UserID         UserID        `gorm:"not null;index"`
	User           User          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	SubscriptionID string        `gorm:"size:64;index"`
	Amount         float64       `gorm:"not null"`
	Currency       string        `gorm:"size:10;not null;default:'RUB'"`
	Status         PaymentStatus `gorm:"size:20;not null;default:'pending';index"`
	ConfirmURL     string        `gorm:"size:1024"`
	CreatedAt      time.Time
	CompletedAt    *time.Time
}
