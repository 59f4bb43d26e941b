package payments

import (
	"fmt"
	"net/http"

	"github.com/sarqyt/sarqyt-backend/api/middleware"
	"github.com/sarqyt/sarqyt-backend/api/responses"
	"github.com/sarqyt/sarqyt-backend/api/validators"
	internalpayments "github.com/sarqyt/sarqyt-backend/internal/payments"
	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
	"github.com/sarqyt/sarqyt-backend/pkg/logger"
)

type submitProofRequest struct {
	ImageRef string `json:"image_ref" validate:"required,min=1,max=512"`
}

type reviewProofRequest struct {
	Decision string  `json:"decision" validate:"required,oneof=confirm reject"`
	Note     *string `json:"note,omitempty" validate:"omitempty,max=512"`
}

// SubmitProof attaches a transfer receipt image to a card-transfer order.
func SubmitProof(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user identity"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req submitProofRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.SubmitProof(r.Context(), internalpayments.SubmitProofInput{
			OrderID:  orderID,
			ImageRef: req.ImageRef,
			UserID:   userID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ReviewProof records the operator verdict on a submitted proof. Operator only.
func ReviewProof(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req reviewProofRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.ReviewProof(r.Context(), internalpayments.ReviewProofInput{
			OrderID:  orderID,
			Decision: internalpayments.ReviewDecision(req.Decision),
			Note:     req.Note,
			Operator: fmt.Sprintf("%d", middleware.UserIDFromContext(r.Context())),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Proof returns the current proof state for an order.
func Proof(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Proof(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
