package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sarqyt/sarqyt-backend/internal/orders"
	"github.com/sarqyt/sarqyt-backend/pkg/db"
	"github.com/sarqyt/sarqyt-backend/pkg/db/models"
	"github.com/sarqyt/sarqyt-backend/pkg/enums"
	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
	"github.com/sarqyt/sarqyt-backend/pkg/logger"
	"github.com/sarqyt/sarqyt-backend/pkg/outbox"
)

const providerTxConstraint = "ux_payment_tx_provider_tx"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type orderDriver interface {
	AdvanceInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, actor orders.ActorInput) error
	TerminateInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, reason enums.CancelReason, actor orders.ActorInput) error
}

type fiscalDispatcher interface {
	DispatchAsync(receiptID uuid.UUID)
}

// Service is the provider-agnostic payment ledger. Provider adapters
// translate their wire protocols into PrepareInput/CompleteInput and all
// idempotency decisions happen here, keyed on (provider, provider_tx_id).
type Service interface {
	HandlePrepare(ctx context.Context, input PrepareInput) (*Result, error)
	HandleComplete(ctx context.Context, input CompleteInput) (*Result, error)

	// ValidatePayable runs the prepare-time checks without opening a
	// transaction; providers with a pre-create probe call use this.
	ValidatePayable(ctx context.Context, provider enums.PaymentProvider, orderID uuid.UUID, amountMinor int64) error
	// Lookup reads a transaction's current state without side effects.
	Lookup(ctx context.Context, provider enums.PaymentProvider, providerTxID string) (*Result, error)

	SubmitProof(ctx context.Context, input SubmitProofInput) (*ProofView, error)
	ReviewProof(ctx context.Context, input ReviewProofInput) (*ProofView, error)
	Proof(ctx context.Context, orderID uuid.UUID) (*ProofView, error)
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Repo   Repository
	Orders orderDriver
	Tx     txRunner
	Outbox outboxPublisher
	Fiscal fiscalDispatcher
	Logger *logger.Logger
}

type service struct {
	repo   Repository
	orders orderDriver
	tx     txRunner
	outbox outboxPublisher
	fiscal fiscalDispatcher
	logg   *logger.Logger
}

// NewService builds the payment ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order driver required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Fiscal == nil {
		return nil, fmt.Errorf("fiscal dispatcher required")
	}
	return &service{
		repo:   params.Repo,
		orders: params.Orders,
		tx:     params.Tx,
		outbox: params.Outbox,
		fiscal: params.Fiscal,
		logg:   params.Logger,
	}, nil
}

// HandlePrepare opens a provider transaction against a pending order.
// A replayed prepare for the same (provider, provider_tx_id) returns the
// original result without touching the ledger.
func (s *service) HandlePrepare(ctx context.Context, input PrepareInput) (*Result, error) {
	if !input.Provider.IsOnline() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider does not reconcile through callbacks")
	}
	if input.ProviderTxID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider transaction id required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindTransactionByProviderTxID(ctx, input.Provider, input.ProviderTxID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup transaction")
		}
		if existing != nil {
			result = resultOf(existing)
			return nil
		}

		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order")
		}
		if err := orderPayable(order, input.Provider, input.AmountMinor); err != nil {
			return err
		}

		row := &models.PaymentTransaction{
			ID:           uuid.New(),
			OrderID:      order.ID,
			Provider:     input.Provider,
			ProviderTxID: input.ProviderTxID,
			AmountMinor:  input.AmountMinor,
			Status:       enums.PaymentTxStatusPrepared,
			RawRequest:   input.RawRequest,
			PreparedAt:   time.Now(),
		}
		if err := repo.CreateTransaction(ctx, row); err != nil {
			// A concurrent delivery of the same callback won the insert.
			if db.IsUniqueViolation(err, providerTxConstraint) {
				winner, ferr := repo.FindTransactionByProviderTxID(ctx, input.Provider, input.ProviderTxID)
				if ferr != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, ferr, "refetch transaction")
				}
				result = resultOf(winner)
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventPaymentPrepared,
			AggregateType: enums.AggregatePaymentTransaction,
			AggregateID:   row.ID,
			Data: PaymentPreparedEvent{
				TransactionID: row.ID,
				OrderID:       order.ID,
				Provider:      input.Provider,
				ProviderTxID:  input.ProviderTxID,
				AmountMinor:   input.AmountMinor,
			},
			Version: 1,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment prepared")
		}

		result = resultOf(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// orderPayable checks that an order can accept a charge from the given
// provider for the given amount.
func orderPayable(order *models.Order, provider enums.PaymentProvider, amountMinor int64) error {
	if order.PaymentProvider != provider {
		return pkgerrors.New(pkgerrors.CodePaymentProvider, "order is not payable with this provider").
			WithDetails(map[string]any{
				"reason":            ReasonWrongProvider,
				"expected_provider": order.PaymentProvider,
			})
	}
	if order.Status != enums.OrderStatusPending {
		return pkgerrors.New(pkgerrors.CodePaymentProvider, "order is not awaiting payment").
			WithDetails(map[string]any{
				"reason":       ReasonOrderNotPayable,
				"order_status": order.Status,
			})
	}
	if amountMinor != order.TotalMinor {
		return pkgerrors.New(pkgerrors.CodePaymentProvider, "amount does not match order total").
			WithDetails(map[string]any{
				"reason":         ReasonAmountMismatch,
				"expected_minor": order.TotalMinor,
				"received_minor": amountMinor,
			})
	}
	return nil
}

// ValidatePayable runs the prepare-time order checks without creating a
// ledger entry.
func (s *service) ValidatePayable(ctx context.Context, provider enums.PaymentProvider, orderID uuid.UUID, amountMinor int64) error {
	if !provider.IsOnline() {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider does not reconcile through callbacks")
	}
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if amountMinor <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order")
	}
	return orderPayable(order, provider, amountMinor)
}

// Lookup reads a transaction's current state without side effects.
func (s *service) Lookup(ctx context.Context, provider enums.PaymentProvider, providerTxID string) (*Result, error) {
	if providerTxID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider transaction id required")
	}
	row, err := s.repo.FindTransactionByProviderTxID(ctx, provider, providerTxID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup transaction")
	}
	return resultOf(row), nil
}

// HandleComplete finalizes a prepared transaction. Replays against an
// already-final transaction return its current state unchanged; the
// adapter decides how to answer the provider from that state.
func (s *service) HandleComplete(ctx context.Context, input CompleteInput) (*Result, error) {
	if !input.Outcome.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown completion outcome")
	}
	if input.ProviderTxID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider transaction id required")
	}

	var result *Result
	var receiptID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		receiptID = uuid.Nil
		repo := s.repo.WithTx(tx)

		row, err := repo.FindTransactionByProviderTxID(ctx, input.Provider, input.ProviderTxID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup transaction")
		}
		if row.Status.IsFinal() {
			result = resultOf(row)
			return nil
		}

		switch input.Outcome {
		case OutcomeSuccess:
			rid, err := s.confirmInTx(ctx, tx, row, input)
			if err != nil {
				return err
			}
			receiptID = rid
		case OutcomeCancelled:
			if err := s.voidInTx(ctx, tx, row, input); err != nil {
				return err
			}
		case OutcomeFailed:
			if err := s.failInTx(ctx, tx, row, input); err != nil {
				return err
			}
		}

		updated, err := repo.FindTransaction(ctx, row.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload transaction")
		}
		result = resultOf(updated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if receiptID != uuid.Nil {
		s.fiscal.DispatchAsync(receiptID)
	}
	return result, nil
}

// confirmInTx settles a successful charge: the transaction is confirmed,
// the order moves to preparing and a fiscal receipt is opened. Returns
// the receipt id so dispatch can start after commit.
func (s *service) confirmInTx(ctx context.Context, tx *gorm.DB, row *models.PaymentTransaction, input CompleteInput) (uuid.UUID, error) {
	repo := s.repo.WithTx(tx)
	now := time.Now()

	ok, err := repo.FinalizeTransaction(ctx, row.ID, enums.PaymentTxStatusConfirmed, map[string]any{
		"confirmed_at": now,
		"raw_response": input.RawResponse,
	})
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm transaction")
	}
	if !ok {
		// A concurrent delivery finalized the row first; the reload in
		// HandleComplete reports whatever state won.
		return uuid.Nil, nil
	}

	actor := orders.ActorInput{Role: "payment_provider"}
	if err := s.orders.AdvanceInTx(ctx, tx, row.OrderID, enums.OrderStatusPreparing, actor); err != nil {
		return uuid.Nil, err
	}

	receipt := &models.FiscalReceipt{
		ID:                   uuid.New(),
		OrderID:              row.OrderID,
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
			OrderID:       row.OrderID,
			Provider:      row.Provider,
			Status:        enums.PaymentTxStatusConfirmed,
		},
		Version: 1,
	}
	if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment confirmed")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"transaction_id": row.ID.String(),
			"order_id":       row.OrderID.String(),
			"provider":       row.Provider,
		})
		s.logg.Info(logCtx, "payment confirmed")
	}
	return receipt.ID, nil
}

// voidInTx handles a provider-side cancellation of a prepared
// transaction: the order is rejected and its reservations released.
func (s *service) voidInTx(ctx context.Context, tx *gorm.DB, row *models.PaymentTransaction, input CompleteInput) error {
	repo := s.repo.WithTx(tx)
	now := time.Now()

	ok, err := repo.FinalizeTransaction(ctx, row.ID, enums.PaymentTxStatusCancelled, map[string]any{
		"cancelled_at": now,
		"error_code":   input.ErrorCode,
		"error_note":   input.ErrorNote,
		"raw_response": input.RawResponse,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel transaction")
	}
	if !ok {
		return nil
	}

	actor := orders.ActorInput{Role: "payment_provider"}
	if err := s.orders.TerminateInTx(ctx, tx, row.OrderID, enums.OrderStatusRejected, enums.CancelReasonTechnicalIssue, actor); err != nil {
		// The order may already be terminal (payment-window expiry races
		// with the provider callback). The ledger entry still records
		// the cancellation.
		if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
			return err
		}
	}

	return s.emitRejected(ctx, tx, row, input.ErrorCode)
}

// failInTx records a provider failure without touching the order, which
// stays pending for the expiry job or manual follow-up.
func (s *service) failInTx(ctx context.Context, tx *gorm.DB, row *models.PaymentTransaction, input CompleteInput) error {
	repo := s.repo.WithTx(tx)

	ok, err := repo.FinalizeTransaction(ctx, row.ID, enums.PaymentTxStatusRejected, map[string]any{
		"error_code":   input.ErrorCode,
		"error_note":   input.ErrorNote,
		"raw_response": input.RawResponse,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject transaction")
	}
	if !ok {
		return nil
	}
	return s.emitRejected(ctx, tx, row, input.ErrorCode)
}

func (s *service) emitRejected(ctx context.Context, tx *gorm.DB, row *models.PaymentTransaction, errorCode *string) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventPaymentRejected,
		AggregateType: enums.AggregatePaymentTransaction,
		AggregateID:   row.ID,
		Data: PaymentFinalizedEvent{
			TransactionID: row.ID,
			OrderID:       row.OrderID,
			Provider:      row.Provider,
			Status:        enums.PaymentTxStatusRejected,
			ErrorCode:     errorCode,
		},
		Version: 1,
	}
	if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment rejected")
	}
	return nil
}

func resultOf(row *models.PaymentTransaction) *Result {
	return &Result{
		TransactionID: row.ID,
		OrderID:       row.OrderID,
		Status:        row.Status,
		AmountMinor:   row.AmountMinor,
		PreparedAt:    row.PreparedAt,
		ConfirmedAt:   row.ConfirmedAt,
		CancelledAt:   row.CancelledAt,
	}
}
