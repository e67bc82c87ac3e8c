package routes

import (
	"tg-tires-server/services"
	"tg-tires-server/utils"
)

// Shared collaborators, wired once in main. Tests swap in in-memory
// implementations.
var (
	Messaging     *services.MessageRouter
	Notifications *services.NotificationService
	CrossPoster   *services.CrossPostService
	WSHub         *services.Hub
	Payments      PaymentStateUpdater
	Counters      utils.CounterStore
)

// PaymentStateUpdater is the webhook handler's collaborator for applying
// payment state changes.
type PaymentStateUpdater interface {
	PaymentSucceeded(stripeID string) error
	PaymentFailed(stripeID string) error
	PaymentCanceled(stripeID string) error
	CheckoutCompleted(sessionID string) error
}
