package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotification(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		body := `{
			"type": "notification",
			"event": "payment.succeeded",
			"object": {
				"id": "22e12f66-000f-5000-8000-18db351245c7",
				"status": "succeeded",
				"paid": true,
				"amount": {"value": "150.00", "currency": "RUB"},
				"metadata": {"subscription_id": "sub-1", "user_id": "3"}
			}
		}`

		n, err := ParseNotification([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, EventSucceeded, n.Event)
		assert.Equal(t, "22e12f66-000f-5000-8000-18db351245c7", n.Object.ID)
		assert.Equal(t, "sub-1", n.Object.Metadata[MetaSubscriptionID])
	})

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `payment`},
		{name: "unknown event", body: `{"type":"notification","event":"refund.succeeded","object":{"id":"1","status":"succeeded"}}`},
		{name: "missing object id", body: `{"type":"notification","event":"payment.canceled","object":{"status":"canceled"}}`},
		{name: "wrong type", body: `{"type":"ping","event":"payment.canceled","object":{"id":"1","status":"canceled"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseNotification([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}
