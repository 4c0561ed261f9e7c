package billing

import "time"

type Payment struct {
	ID            string
	UserID        string
	TrainerID     string
	PackageID     string
	PaymentIntent string
	PaymentType   string
	AmountValue   float64
	Currency      string
	CreatedAt     time.Time
}

type CoachSelectionRequest struct {
	ID        string
	UserID    string
	TrainerID string
	PackageID string
	PaymentID string
	Status    string
	CreatedAt time.Time
}

type Membership struct {
	SubscriptionID   string
	UserID           string
	TrainerID        string
	Status           string
	CurrentPeriodEnd *time.Time
	UpdatedAt        time.Time
}

type Invoice struct {
	InvoiceID      string
	SubscriptionID string
	AmountValue    float64
	Currency       string
	Status         string
	Paid           bool
	CreatedAt      time.Time
}

const (
	EngagementStageCoachSelected  = "coach_selected"
	EngagementStageActiveTraining = "active_training"
	EngagementStageEnded          = "ended"
)
