package entities

import (
	"errors"
	"fmt"
)

// OrderAction is an event that may move an order to another status.
type OrderAction string

const (
	ActionLockEscrow OrderAction = "lock_escrow"
	ActionVerify     OrderAction = "verify"
	ActionDispute    OrderAction = "dispute"
	ActionCancel     OrderAction = "cancel"
	ActionExpire     OrderAction = "expire"
)

// ErrInvalidTransition is matched by every *TransitionError.
var ErrInvalidTransition = errors.New("invalid order transition")

// TransitionError rejects an action that is not allowed from the current status.
type TransitionError struct {
	From   OrderStatus
	Action OrderAction
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s via %s", e.From, e.Action)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

type transitionKey struct {
	from   OrderStatus
	action OrderAction
}

var transitions = map[transitionKey]OrderStatus{
	{OrderStatusPending, ActionLockEscrow}:   OrderStatusEscrowLocked,
	{OrderStatusPending, ActionCancel}:       OrderStatusCancelled,
	{OrderStatusPending, ActionExpire}:       OrderStatusCancelled,
	{OrderStatusEscrowLocked, ActionVerify}:  OrderStatusCompleted,
	{OrderStatusEscrowLocked, ActionDispute}: OrderStatusDisputed,
}

// NextStatus looks up the status reached by applying action in status from.
func NextStatus(from OrderStatus, action OrderAction) (OrderStatus, error) {
	next, ok := transitions[transitionKey{from: from, action: action}]
	if !ok {
		return from, &TransitionError{From: from, Action: action}
	}
	return next, nil
}
