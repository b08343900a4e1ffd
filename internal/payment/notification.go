package payment

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ParseNotification decodes and validates an inbound webhook body.
func ParseNotification(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	if err := validate.Struct(n); err != nil {
		return nil, fmt.Errorf("invalid notification: %w", err)
	}
	return &n, nil
}
