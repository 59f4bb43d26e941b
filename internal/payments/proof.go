package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sarqyt/sarqyt-backend/internal/orders"
	"github.com/sarqyt/sarqyt-backend/pkg/db/models"
	"github.com/sarqyt/sarqyt-backend/pkg/enums"
	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
	"github.com/sarqyt/sarqyt-backend/pkg/outbox"
)

// SubmitProof attaches a transfer receipt image to the order's proof
// workflow. Resubmitting after a rejection overwrites the previous
// image; a proof under review, confirmed, or finally rejected turns
// the upload away.
func (s *service) SubmitProof(ctx context.Context, input SubmitProofInput) (*ProofView, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ImageRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "proof image required")
	}

	var view *ProofView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		proof, err := s.loadProof(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if !proof.Status.AllowsSubmission() {
			return pkgerrors.New(pkgerrors.CodeConflict, "proof is not accepting submissions").
				WithDetails(map[string]string{"status": proof.Status.String()})
		}

		now := time.Now()
		if err := repo.UpdateProof(ctx, proof.ID, map[string]any{
			"status":       enums.ProofStatusSubmitted,
			"image_ref":    input.ImageRef,
			"submitted_at": now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update proof")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventProofSubmitted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   input.OrderID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: "customer"},
			Data: ProofEvent{
				OrderID:     input.OrderID,
				Status:      enums.ProofStatusSubmitted,
				RejectCount: proof.RejectCount,
			},
			Version: 1,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit proof submitted")
		}

		imageRef := input.ImageRef
		view = &ProofView{
			OrderID:     input.OrderID,
			Status:      enums.ProofStatusSubmitted,
			ImageRef:    &imageRef,
			RejectCount: proof.RejectCount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ReviewProof applies an operator decision to a submitted proof.
// Confirming settles the order exactly like a successful provider
// callback: a confirmed card_transfer ledger entry, order to preparing,
// fiscal receipt opened. A first rejection hands the proof back as
// awaiting_proof for one replacement image; rejecting the replacement
// lands in payment_rejected, which accepts no further submissions.
func (s *service) ReviewProof(ctx context.Context, input ReviewProofInput) (*ProofView, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.Decision != ReviewConfirm && input.Decision != ReviewReject {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be confirm or reject")
	}

	var view *ProofView
	var receiptID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		receiptID = uuid.Nil
		repo := s.repo.WithTx(tx)

		proof, err := s.loadProof(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if proof.Status != enums.ProofStatusSubmitted {
			return pkgerrors.New(pkgerrors.CodeConflict, "no submitted proof to review").
				WithDetails(map[string]string{"status": proof.Status.String()})
		}

		switch input.Decision {
		case ReviewConfirm:
			rid, err := s.confirmProofInTx(ctx, tx, proof, input)
			if err != nil {
				return err
			}
			receiptID = rid
			view = &ProofView{
				OrderID:     input.OrderID,
				Status:      enums.ProofStatusConfirmed,
				ImageRef:    proof.ImageRef,
				RejectCount: proof.RejectCount,
			}
		case ReviewReject:
			next, err := s.rejectProofInTx(ctx, tx, proof, input)
			if err != nil {
				return err
			}
			view = &ProofView{
				OrderID:     input.OrderID,
				Status:      next,
				ImageRef:    proof.ImageRef,
				RejectCount: proof.RejectCount + 1,
			}
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventProofReviewed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   input.OrderID,
			Actor:         &outbox.ActorRef{Role: "operator"},
			Data: ProofEvent{
				OrderID:     input.OrderID,
				Status:      view.Status,
				RejectCount: view.RejectCount,
			},
			Version: 1,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit proof reviewed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if receiptID != uuid.Nil {
		s.fiscal.DispatchAsync(receiptID)
	}
	return view, nil
}

// Proof reads the proof workflow state for an order.
func (s *service) Proof(ctx context.Context, orderID uuid.UUID) (*ProofView, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	proof, err := s.loadProof(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	return &ProofView{
		OrderID:     proof.OrderID,
		Status:      proof.Status,
		ImageRef:    proof.ImageRef,
		RejectCount: proof.RejectCount,
	}, nil
}

func (s *service) confirmProofInTx(ctx context.Context, tx *gorm.DB, proof *models.PaymentProof, input ReviewProofInput) (uuid.UUID, error) {
	repo := s.repo.WithTx(tx)
	now := time.Now()

	order, err := repo.FindOrder(ctx, proof.OrderID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if err := repo.UpdateProof(ctx, proof.ID, map[string]any{
		"status":      enums.ProofStatusConfirmed,
		"review_note": input.Note,
		"reviewed_at": now,
	}); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update proof")
	}

	// The manual flow gets a ledger entry too, so downstream consumers
	// see one shape regardless of how the order was paid. The proof id
	// doubles as the provider-side reference.
	row := &models.PaymentTransaction{
		ID:           uuid.New(),
		OrderID:      order.ID,
		Provider:     enums.PaymentProviderCardTransfer,
		ProviderTxID: fmt.Sprintf("proof-%s", proof.ID),
		AmountMinor:  order.TotalMinor,
		Status:       enums.PaymentTxStatusConfirmed,
		PreparedAt:   now,
		ConfirmedAt:  &now,
	}
	if err := repo.CreateTransaction(ctx, row); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create ledger entry")
	}

	actor := orders.ActorInput{Role: "operator"}
	if err := s.orders.AdvanceInTx(ctx, tx, order.ID, enums.OrderStatusPreparing, actor); err != nil {
		return uuid.Nil, err
	}

	receipt := &models.FiscalReceipt{
		ID:                   uuid.New(),
		OrderID:              order.ID,
		PaymentTransactionID: row.ID,
		Status:               enums.FiscalStatusPending,
	}
	if err := repo.CreateFiscalReceipt(ctx, receipt); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create fiscal receipt")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventPaymentConfirmed,
		AggregateType: enums.AggregatePaymentTransaction,
		AggregateID:   row.ID,
		Data: PaymentFinalizedEvent{
			TransactionID: row.ID,
			OrderID:       order.ID,
			Provider:      enums.PaymentProviderCardTransfer,
			Status:        enums.PaymentTxStatusConfirmed,
		},
		Version: 1,
	}
	if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment confirmed")
	}
	return receipt.ID, nil
}

// rejectProofInTx records an operator rejection. The first rejection
// hands the workflow back as awaiting_proof so the customer may upload
// one replacement; a rejected replacement is final.
func (s *service) rejectProofInTx(ctx context.Context, tx *gorm.DB, proof *models.PaymentProof, input ReviewProofInput) (enums.ProofStatus, error) {
	repo := s.repo.WithTx(tx)
	now := time.Now()

	next := enums.ProofStatusAwaitingProof
	if proof.RejectCount >= 1 {
		next = enums.ProofStatusRejected
	}

	if err := repo.UpdateProof(ctx, proof.ID, map[string]any{
		"status":       next,
		"review_note":  input.Note,
		"reject_count": proof.RejectCount + 1,
		"reviewed_at":  now,
	}); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update proof")
	}
	return next, nil
}

func (s *service) loadProof(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.PaymentProof, error) {
	proof, err := repo.FindProofByOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no proof workflow for order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load proof")
	}
	return proof, nil
}
