package orders

import (
	"github.com/sarqyt/sarqyt-backend/pkg/enums"
	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
)

// forwardTransitions lists the allowed forward edges of the lifecycle.
// Terminal states have no outgoing edges; cancellation/rejection paths
// are handled separately because they carry a reason.
var forwardTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusPreparing},
	enums.OrderStatusPreparing:  {enums.OrderStatusReady},
	enums.OrderStatusReady:      {enums.OrderStatusDelivering, enums.OrderStatusCompleted},
	enums.OrderStatusDelivering: {enums.OrderStatusCompleted},
}

// CanAdvance reports whether an order of the given type may move from
// one status to another. Delivery orders must pass through delivering;
// pickup orders complete straight from ready.
func CanAdvance(orderType enums.OrderType, from, to enums.OrderStatus) bool {
	for _, candidate := range forwardTransitions[from] {
		if candidate != to {
			continue
		}
		switch to {
		case enums.OrderStatusDelivering:
			return orderType == enums.OrderTypeDelivery
		case enums.OrderStatusCompleted:
			if from == enums.OrderStatusReady {
				return orderType == enums.OrderTypePickup
			}
			return true
		default:
			return true
		}
	}
	return false
}

// CanTerminate reports whether an order may still be cancelled or rejected.
func CanTerminate(from enums.OrderStatus) bool {
	return !from.IsTerminal()
}

func validateAdvance(orderType enums.OrderType, from, to enums.OrderStatus) error {
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown target status")
	}
	if to == enums.OrderStatusCancelled || to == enums.OrderStatusRejected {
		return pkgerrors.New(pkgerrors.CodeValidation, "cancellation states require a reason; use cancel or reject")
	}
	if !CanAdvance(orderType, from, to) {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "transition not allowed").
			WithDetails(map[string]string{"from": from.String(), "to": to.String()})
	}
	return nil
}
