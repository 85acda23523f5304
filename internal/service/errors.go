package service

import (
	"errors"

	"commerce-service/internal/models"
)

// Business-rule failures. These are permanent: the event is recorded as
// processed with success=false and is never retried, because retrying cannot
// change the outcome.
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Programming-error conditions. Seeing one of these means the dispatcher's
// transaction boundaries are broken, not that the data is bad.
var (
	ErrEventNotFound    = errors.New("event was never recorded")
	ErrAlreadyProcessed = errors.New("event already marked processed")
)

// IsPermanent reports whether err is a business-rule failure that should be
// durably recorded against the event instead of rolled back for redelivery.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, models.ErrUnknownEventType) ||
		errors.Is(err, models.ErrMalformedPayload)
}
