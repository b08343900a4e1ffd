package models

import (
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionPending  SubscriptionStatus = "pending"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

type Subscription struct {
	ID             uint               `gorm:"primaryKey"`
	SubscriptionID string             `gorm:"size:64;uniqueIndex;not null"`
	UserID         UserID             `gorm:"not null;index"`
	User           User               `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	PlanID         string             `gorm:"size:50;not null"`
	Status         SubscriptionStatus `gorm:"size:20;not null;default:'pending';index"`
	ExpiresAt      *time.Time         `gorm:"index"`
	PricePaid      float64            `gorm:"not null;default:0"`
	PaymentID      *string            `gorm:"size:255"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsLive reports whether the subscription grants access at the given instant.
func (s *Subscription) IsLive(now time.Time) bool {
	return s.Status == SubscriptionActive && s.ExpiresAt != nil && s.ExpiresAt.After(now)
}
