package payment

// Payment statuses reported by YooKassa.
const (
	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"
)

// Notification events.
const (
	EventSucceeded         = "payment.succeeded"
	EventWaitingForCapture = "payment.waiting_for_capture"
	EventCanceled          = "payment.canceled"
)

// Metadata keys used to correlate a provider payment with local records.
const (
	MetaSubscriptionID = "subscription_id"
	MetaUserID         = "user_id"
	MetaPlanID         = "plan_id"
)

type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type CreatePaymentRequest struct {
	Amount       Amount            `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation Confirmation      `json:"confirmation"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// CreatePaymentInput is what the caller knows about a new charge; the client
// fills in currency, capture mode and the return URL.
type CreatePaymentInput struct {
	Amount      float64
	Description string
	Metadata    map[string]string
}

type PaymentResponse struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       Amount            `json:"amount"`
	Description  string            `json:"description,omitempty"`
	Confirmation Confirmation      `json:"confirmation"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ConfirmationURL is where the user completes the payment.
func (p *PaymentResponse) ConfirmationURL() string {
	return p.Confirmation.ConfirmationURL
}

// Webhook structures

type Notification struct {
	Type   string        `json:"type" validate:"required,eq=notification"`
	Event  string        `json:"event" validate:"required,oneof=payment.succeeded payment.waiting_for_capture payment.canceled"`
	Object WebhookObject `json:"object"`
}

type WebhookObject struct {
	ID       string            `json:"id" validate:"required"`
	Status   string            `json:"status" validate:"required"`
	Paid     bool              `json:"paid"`
	Amount   Amount            `json:"amount"`
	Metadata map[string]string `json:"metadata"`
}

type apiError struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Description string `json:"description"`
}
