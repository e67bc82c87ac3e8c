package services

import (
	"context"
	"fmt"

	"tg-tires-server/models"
)

type DeliveryStatus int

const (
	DeliveryOK DeliveryStatus = iota
	DeliveryRetryable
	DeliveryPermanent
)

func (s DeliveryStatus) String() string {
	switch s {
	case DeliveryOK:
		return "delivered"
	case DeliveryRetryable:
		return "retryable_failure"
	default:
		return "permanent_failure"
	}
}

// DeliveryResult is the typed outcome of a send attempt. Callers decide on
// retry policy; the router itself never retries.
type DeliveryResult struct {
	Status DeliveryStatus
	Err    error
}

func Delivered() DeliveryResult {
	return DeliveryResult{Status: DeliveryOK}
}

func RetryableFailure(err error) DeliveryResult {
	return DeliveryResult{Status: DeliveryRetryable, Err: err}
}

func PermanentFailure(err error) DeliveryResult {
	return DeliveryResult{Status: DeliveryPermanent, Err: err}
}

// DeliveryError surfaces a failed send as a typed error so HTTP handlers can
// map retryable vs permanent failures to distinct responses.
type DeliveryError struct {
	Result DeliveryResult
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed (%s): %v", e.Result.Status, e.Result.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Result.Err }

// ChannelSender delivers one outbound message over its transport. At most one
// attempt per call; no retry, no idempotency key.
type ChannelSender interface {
	Send(ctx context.Context, msg *models.Message) DeliveryResult
}

// NotificationSink records business-side notifications. The router writes
// through this interface and never touches delivery state.
type NotificationSink interface {
	Notify(n *models.Notification) error
}
