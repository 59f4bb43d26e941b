package orders

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sarqyt/sarqyt-backend/internal/inventory"
	"github.com/sarqyt/sarqyt-backend/internal/money"
	"github.com/sarqyt/sarqyt-backend/pkg/config"
	"github.com/sarqyt/sarqyt-backend/pkg/db/models"
	"github.com/sarqyt/sarqyt-backend/pkg/enums"
	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
	"github.com/sarqyt/sarqyt-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines the order lifecycle operations exposed to collaborators.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*OrderView, error)
	Advance(ctx context.Context, input AdvanceOrderInput) (*OrderView, error)
	Cancel(ctx context.Context, input CancelOrderInput) (*OrderView, error)
	Reject(ctx context.Context, input CancelOrderInput) (*OrderView, error)
	Status(ctx context.Context, orderID uuid.UUID) (*OrderView, error)

	// AdvanceInTx and TerminateInTx run inside a caller-owned transaction;
	// the payment ledger drives order state through these.
	AdvanceInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, actor ActorInput) error
	TerminateInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, reason enums.CancelReason, actor ActorInput) error
}

type service struct {
	repo          Repository
	tx            txRunner
	outbox        outboxPublisher
	pickupCodeLen int
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher, cfg config.OrdersConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	codeLen := cfg.PickupCodeLength
	if codeLen <= 0 {
		codeLen = 4
	}
	return &service{
		repo:          repo,
		tx:            tx,
		outbox:        outboxSvc,
		pickupCodeLen: codeLen,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*OrderView, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	var view *OrderView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		offers, err := s.loadOffers(ctx, repo, input)
		if err != nil {
			return err
		}

		order := &models.Order{
			ID:              uuid.New(),
			UserID:          input.UserID,
			StoreID:         input.StoreID,
			Type:            input.Type,
			Status:          enums.OrderStatusPending,
			PaymentProvider: input.PaymentProvider,
			PickupTime:      input.PickupTime,
			DeliveryAddress: input.DeliveryAddress,
		}

		var lineTotals []money.Minor
		for _, line := range input.Lines {
			offer := offers[line.OfferID]

			if err := inventory.ReserveStock(ctx, tx, line.OfferID, line.Qty); err != nil {
				return err
			}

			// Offer rows come from the store-management surface, which
			// historically stored sub-threshold prices in major units.
			// Normalize once here, where the price enters the order line.
			unitPrice := money.ToMinor(offer.DiscountPriceMinor, false)
			lineTotal, err := unitPrice.MulQty(line.Qty)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "line total")
			}
			lineTotals = append(lineTotals, lineTotal)
			order.Lines = append(order.Lines, models.OrderLine{
				ID:             uuid.New(),
				OrderID:        order.ID,
				OfferID:        line.OfferID,
				Qty:            line.Qty,
				UnitPriceMinor: unitPrice.Int64(),
				TotalMinor:     lineTotal.Int64(),
			})
		}

		total, err := money.Sum(lineTotals...)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "order total")
		}
		order.TotalMinor = total.Int64()

		if input.Type == enums.OrderTypePickup {
			if err := inventory.ReserveSlot(ctx, tx, input.StoreID, *input.PickupTime); err != nil {
				return err
			}
			code, err := generatePickupCode(s.pickupCodeLen)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate pickup code")
			}
			order.PickupCode = &code
		}

		if _, err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		// Proof reconciliation only applies to delivery transfers; an
		// in-person card payment settles at the counter.
		if input.Type == enums.OrderTypeDelivery && input.PaymentProvider.RequiresProof() {
			proof := &models.PaymentProof{
				ID:      uuid.New(),
				OrderID: order.ID,
				Status:  enums.ProofStatusAwaitingPayment,
			}
			if err := repo.CreatePaymentProof(ctx, proof); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment proof")
			}
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: "customer"},
			Data: OrderCreatedEvent{
				OrderID:         order.ID,
				UserID:          order.UserID,
				StoreID:         order.StoreID,
				Type:            order.Type,
				PaymentProvider: order.PaymentProvider,
				TotalMinor:      order.TotalMinor,
				LineCount:       len(order.Lines),
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		view = toView(order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) Advance(ctx context.Context, input AdvanceOrderInput) (*OrderView, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var view *OrderView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.AdvanceInTx(ctx, tx, input.OrderID, input.Target, input.Actor); err != nil {
			return err
		}
		order, err := s.repo.WithTx(tx).FindOrder(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		view = toView(order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) AdvanceInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, actor ActorInput) error {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if err := validateAdvance(order.Type, order.Status, target); err != nil {
		return err
	}

	won, err := repo.UpdateOrderStatus(ctx, orderID, order.Status, target, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !won {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order changed state concurrently")
	}

	return s.emitStatusChange(ctx, tx, order, target, nil, actor)
}

func (s *service) Cancel(ctx context.Context, input CancelOrderInput) (*OrderView, error) {
	return s.terminate(ctx, input, enums.OrderStatusCancelled)
}

func (s *service) Reject(ctx context.Context, input CancelOrderInput) (*OrderView, error) {
	return s.terminate(ctx, input, enums.OrderStatusRejected)
}

func (s *service) terminate(ctx context.Context, input CancelOrderInput, target enums.OrderStatus) (*OrderView, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancel reason required")
	}

	var view *OrderView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.TerminateInTx(ctx, tx, input.OrderID, target, input.Reason, input.Actor); err != nil {
			return err
		}
		order, err := s.repo.WithTx(tx).FindOrder(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		view = toView(order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// TerminateInTx cancels or rejects an order and releases every stock and
// slot reservation the order holds, all inside the caller's transaction.
func (s *service) TerminateInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, reason enums.CancelReason, actor ActorInput) error {
	if target != enums.OrderStatusCancelled && target != enums.OrderStatusRejected {
		return pkgerrors.New(pkgerrors.CodeValidation, "terminate target must be cancelled or rejected")
	}
	if !reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "cancel reason required")
	}

	repo := s.repo.WithTx(tx)
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if !CanTerminate(order.Status) {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order already in a terminal state").
			WithDetails(map[string]string{"status": order.Status.String()})
	}

	won, err := repo.UpdateOrderStatus(ctx, orderID, order.Status, target, map[string]any{
		"cancel_reason": reason,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !won {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order changed state concurrently")
	}

	for _, line := range order.Lines {
		if err := inventory.ReleaseStock(ctx, tx, line.OfferID, line.Qty); err != nil {
			return err
		}
	}
	if order.Type == enums.OrderTypePickup && order.PickupTime != nil {
		if err := inventory.ReleaseSlot(ctx, tx, order.StoreID, *order.PickupTime); err != nil {
			return err
		}
	}

	return s.emitStatusChange(ctx, tx, order, target, &reason, actor)
}

func (s *service) Status(ctx context.Context, orderID uuid.UUID) (*OrderView, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return toView(order), nil
}

func (s *service) emitStatusChange(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus, reason *enums.CancelReason, actor ActorInput) error {
	eventType := enums.EventOrderStatusChanged
	if target == enums.OrderStatusCancelled || target == enums.OrderStatusRejected {
		eventType = enums.EventOrderCancelled
	}
	var actorRef *outbox.ActorRef
	if actor.UserID != 0 || actor.Role != "" {
		actorRef = &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role}
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Actor:         actorRef,
		Data: OrderStatusChangedEvent{
			OrderID:      order.ID,
			UserID:       order.UserID,
			StoreID:      order.StoreID,
			From:         order.Status,
			To:           target,
			CancelReason: reason,
		},
	})
}

func (s *service) loadOffers(ctx context.Context, repo Repository, input CreateOrderInput) (map[uuid.UUID]models.Offer, error) {
	ids := make([]uuid.UUID, 0, len(input.Lines))
	seen := make(map[uuid.UUID]bool, len(input.Lines))
	for _, line := range input.Lines {
		if seen[line.OfferID] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate offer in order lines")
		}
		seen[line.OfferID] = true
		ids = append(ids, line.OfferID)
	}

	offers, err := repo.FindOffers(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offers")
	}
	byID := make(map[uuid.UUID]models.Offer, len(offers))
	for _, offer := range offers {
		byID[offer.ID] = offer
	}
	for _, id := range ids {
		offer, ok := byID[id]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found").
				WithDetails(map[string]string{"offer_id": id.String()})
		}
		if offer.StoreID != input.StoreID {
			return nil, pkgerrors.New(pkgerrors.CodeMultiStoreOrder, "order lines span multiple stores")
		}
	}
	return byID, nil
}

func validateCreateInput(input CreateOrderInput) error {
	if input.UserID == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.StoreID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id required")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one line")
	}
	for _, line := range input.Lines {
		if line.OfferID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "offer id required")
		}
		if line.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive")
		}
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown order type")
	}
	if !input.PaymentProvider.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown payment provider")
	}
	if input.Type == enums.OrderTypePickup && input.PickupTime == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "pickup orders require a pickup time")
	}
	if input.Type == enums.OrderTypeDelivery && (input.DeliveryAddress == nil || *input.DeliveryAddress == "") {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery orders require an address")
	}
	return nil
}

func generatePickupCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

func toView(order *models.Order) *OrderView {
	view := &OrderView{
		ID:              order.ID,
		UserID:          order.UserID,
		StoreID:         order.StoreID,
		Type:            order.Type,
		Status:          order.Status,
		CancelReason:    order.CancelReason,
		PaymentProvider: order.PaymentProvider,
		PickupCode:      order.PickupCode,
		PickupTime:      order.PickupTime,
		DeliveryAddress: order.DeliveryAddress,
		TotalMinor:      order.TotalMinor,
		CreatedAt:       order.CreatedAt,
	}
	for _, line := range order.Lines {
		view.Lines = append(view.Lines, OrderLineView{
			OfferID:        line.OfferID,
			Qty:            line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
			TotalMinor:     line.TotalMinor,
		})
	}
	return view
}
