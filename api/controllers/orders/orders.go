package orders

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sarqyt/sarqyt-backend/api/middleware"
	"github.com/sarqyt/sarqyt-backend/api/responses"
	"github.com/sarqyt/sarqyt-backend/api/validators"
	internalorders "github.com/sarqyt/sarqyt-backend/internal/orders"
	"github.com/sarqyt/sarqyt-backend/pkg/enums"
	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
	"github.com/sarqyt/sarqyt-backend/pkg/logger"
)

type createLineRequest struct {
	OfferID string `json:"offer_id" validate:"required,uuid4"`
	Qty     int    `json:"qty" validate:"required,gt=0"`
}

type createOrderRequest struct {
	StoreID         string              `json:"store_id" validate:"required,uuid4"`
	Type            string              `json:"order_type" validate:"required,oneof=pickup delivery"`
	PaymentProvider string              `json:"payment_provider" validate:"required"`
	Lines           []createLineRequest `json:"lines" validate:"required,min=1,dive"`
	DeliveryAddress *string             `json:"delivery_address,omitempty"`
	PickupTime      *time.Time          `json:"pickup_time,omitempty"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type advanceOrderRequest struct {
	Target string `json:"target" validate:"required"`
}

// Create places a new order for the authenticated customer.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user identity"))
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := buildCreateInput(userID, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// Status returns the current order projection.
func Status(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Status(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Cancel terminates an order on behalf of the customer.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reason, err := enums.ParseCancelReason(req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cancel reason"))
			return
		}

		view, err := svc.Cancel(r.Context(), internalorders.CancelOrderInput{
			OrderID: orderID,
			Reason:  reason,
			Actor:   actorFromContext(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Advance moves an order forward through the lifecycle. Operator only.
func Advance(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req advanceOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		target, err := enums.ParseOrderStatus(req.Target)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}

		view, err := svc.Advance(r.Context(), internalorders.AdvanceOrderInput{
			OrderID: orderID,
			Target:  target,
			Actor:   actorFromContext(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Reject terminates a pending or active order from the store side. Operator only.
func Reject(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reason, err := enums.ParseCancelReason(req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cancel reason"))
			return
		}

		view, err := svc.Reject(r.Context(), internalorders.CancelOrderInput{
			OrderID: orderID,
			Reason:  reason,
			Actor:   actorFromContext(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func buildCreateInput(userID int64, req createOrderRequest) (internalorders.CreateOrderInput, error) {
	storeID, err := uuid.Parse(req.StoreID)
	if err != nil {
		return internalorders.CreateOrderInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid store id")
	}

	orderType, err := enums.ParseOrderType(req.Type)
	if err != nil {
		return internalorders.CreateOrderInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order type")
	}

	provider, err := enums.ParsePaymentProvider(req.PaymentProvider)
	if err != nil {
		return internalorders.CreateOrderInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment provider")
	}

	lines := make([]internalorders.LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		offerID, err := uuid.Parse(line.OfferID)
		if err != nil {
			return internalorders.CreateOrderInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid offer id")
		}
		lines = append(lines, internalorders.LineInput{OfferID: offerID, Qty: line.Qty})
	}

	return internalorders.CreateOrderInput{
		UserID:          userID,
		StoreID:         storeID,
		Lines:           lines,
		Type:            orderType,
		PaymentProvider: provider,
		DeliveryAddress: req.DeliveryAddress,
		PickupTime:      req.PickupTime,
	}, nil
}

func actorFromContext(r *http.Request) internalorders.ActorInput {
	return internalorders.ActorInput{
		UserID: middleware.UserIDFromContext(r.Context()),
		Role:   middleware.RoleFromContext(r.Context()),
	}
}
