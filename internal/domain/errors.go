package domain

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrRecordNotFound       = errors.New("cooldown record not found")
	ErrNoDeliveryTarget     = errors.New("no delivery target")
	ErrMessageTooLong       = errors.New("message exceeds transport limits")
)
