package domain

import "time"

// Типы событий таймлайна сессии.
const (
	TimelineCheckoutStarted  = "CheckoutStarted"
	TimelineBuyerSignedIn    = "BuyerSignedIn"
	TimelineBuyerRegistered  = "BuyerRegistered"
	TimelineProfileCompleted = "ProfileCompleted"
	TimelineStepAdvanced     = "StepAdvanced"
	TimelineStepRetreated    = "StepRetreated"
	TimelineCartRefreshed    = "CartRefreshed"
	TimelineSubmissionFailed = "SubmissionFailed"
	TimelineOrderPlaced      = "OrderPlaced"
)

// TimelineEvent описывает событие в жизненном цикле сессии оформления.
type TimelineEvent struct {
	CheckoutID string    `json:"checkout_id"`
	Type       string    `json:"type"`
	Step       Step      `json:"step,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Occurred   time.Time `json:"occurred"`
}
