package dashboard

import (
	"fmt"
	"strings"
)

// Action is a status change the dashboard may offer for a booking.
type Action string

const (
	ActionCheckIn  Action = "CheckIn"
	ActionCheckOut Action = "CheckOut"
)

// String returns the action as sent to the backend.
func (action Action) String() string {
	return string(action)
}

// NextAction returns the single forward action offered for a booking status.
// Only Confirmed and CheckIn bookings have one.
func NextAction(status BookingStatus) (Action, bool) {
	switch status {
	case BookingStatusConfirmed:
		return ActionCheckIn, true
	case BookingStatusCheckIn:
		return ActionCheckOut, true
	}
	return "", false
}

// ParseAction maps a submitted action name onto the canonical action.
func ParseAction(raw string) (Action, bool) {
	switch canonicalToken(raw) {
	case "checkin":
		return ActionCheckIn, true
	case "checkout":
		return ActionCheckOut, true
	}
	return "", false
}

// ActionSource returns the booking status an action is offered from.
func ActionSource(action Action) (BookingStatus, bool) {
	switch action {
	case ActionCheckIn:
		return BookingStatusConfirmed, true
	case ActionCheckOut:
		return BookingStatusCheckIn, true
	}
	return "", false
}

// StatusUpdateRequest is the intent to move a booking one step forward.
type StatusUpdateRequest struct {
	BookingID      string
	From           BookingStatus
	Action         Action
	IdempotencyKey IdempotencyKey
}

// NewStatusUpdateRequest builds the request for applying action to a booking.
// The idempotency key depends only on booking id and action, so a repeated
// request carries the same key whatever the booking's status has become.
func NewStatusUpdateRequest(bookingID string, action Action) (StatusUpdateRequest, error) {
	trimmed := strings.TrimSpace(bookingID)
	if trimmed == "" {
		return StatusUpdateRequest{}, fmt.Errorf("%w: empty value", ErrInvalidBookingID)
	}
	from, ok := ActionSource(action)
	if !ok {
		return StatusUpdateRequest{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	key, err := NewIdempotencyKey(strings.Join([]string{trimmed, from.String(), action.String()}, idempotencyKeyDelimiter))
	if err != nil {
		return StatusUpdateRequest{}, err
	}
	return StatusUpdateRequest{
		BookingID:      trimmed,
		From:           from,
		Action:         action,
		IdempotencyKey: key,
	}, nil
}

// CheckApplicable reports whether the request can be applied to booking in
// its current state. A booking that has moved on returns ErrStaleTransition;
// one with no forward action at all returns ErrNoTransition.
func (request StatusUpdateRequest) CheckApplicable(booking Booking) error {
	if booking.Status == request.From {
		return nil
	}
	if _, ok := NextAction(booking.Status); !ok {
		return fmt.Errorf("%w: booking %s is %s", ErrNoTransition, request.BookingID, booking.Status)
	}
	return fmt.Errorf("%w: booking %s is %s, %s needs %s", ErrStaleTransition, request.BookingID, booking.Status, request.Action, request.From)
}
