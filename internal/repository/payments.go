package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"vpnbot/internal/models"
)

func (r *Repository) CreatePayment(ctx context.Context, p *models.Payment) error {
	if err := r.conn(ctx).Omit(clause.Associations).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *Repository) PaymentByProviderID(ctx context.Context, paymentID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.conn(ctx).Where("payment_id = ?", paymentID).First(&p).Error; err != nil {
		return nil, notFoundOr(err, "payment", paymentID)
	}
	return &p, nil
}

// CompletePayment moves a pending payment to a terminal status. It reports
// false when the payment was not pending, which makes redelivered
// notifications harmless.
func (r *Repository) CompletePayment(ctx context.Context, paymentID string, status models.PaymentStatus, at time.Time) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("status %q is not terminal", status)
	}
	res := r.conn(ctx).Model(&models.Payment{}).
		Where("payment_id = ? AND status = ?", paymentID, models.PaymentPending).
		Updates(map[string]any{
			"status":       status,
			"completed_at": at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to complete payment: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) StalePendingPayments(ctx context.Context, before time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.conn(ctx).
		Where("status = ? AND created_at < ?", models.PaymentPending, before).
		Order("created_at").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query pending payments: %w", err)
	}
	return payments, nil
}
