package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/sarqyt/sarqyt-backend/internal/orders"
	"github.com/sarqyt/sarqyt-backend/pkg/db/models"
	"github.com/sarqyt/sarqyt-backend/pkg/enums"
	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
	"github.com/sarqyt/sarqyt-backend/pkg/logger"
	"github.com/sarqyt/sarqyt-backend/pkg/outbox"
)

const expiryBatchSize = 100

// payment providers whose orders wait on an external confirmation
var expiryProviders = []enums.PaymentProvider{
	enums.PaymentProviderClick,
	enums.PaymentProviderPayme,
	enums.PaymentProviderCardTransfer,
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type staleOrderReader interface {
	FindStalePendingOrders(ctx context.Context, cutoff time.Time, providers []enums.PaymentProvider, limit int) ([]models.Order, error)
}

type orderTerminator interface {
	TerminateInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, reason enums.CancelReason, actor orders.ActorInput) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OrderExpiryJobParams configure the payment-window expiry job.
type OrderExpiryJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Reader     staleOrderReader
	Terminator orderTerminator
	Outbox     outboxEmitter
	PaymentTTL time.Duration
}

// NewOrderExpiryJob builds the job that cancels pending orders whose
// payment never arrived within the payment window.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("stale order reader required")
	}
	if params.Terminator == nil {
		return nil, fmt.Errorf("order terminator required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	ttl := params.PaymentTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &orderExpiryJob{
		logg:       params.Logger,
		db:         params.DB,
		reader:     params.Reader,
		terminator: params.Terminator,
		outbox:     params.Outbox,
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg       *logger.Logger
	db         txRunner
	reader     staleOrderReader
	terminator orderTerminator
	outbox     outboxEmitter
	ttl        time.Duration
	now        func() time.Time
}

// OrderExpiredEvent is the outbox payload for expired orders.
type OrderExpiredEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	ExpiredAt time.Time `json:"expired_at"`
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.reader.FindStalePendingOrders(ctx, cutoff, expiryProviders, expiryBatchSize)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}

	var errs []error
	expired := 0
	for _, order := range stale {
		if err := j.expireOrder(ctx, order); err != nil {
			errs = append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		expired++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"count": expired})
	j.logg.Info(logCtx, "order expiry loop complete")
	return multierr.Combine(errs...)
}

// expireOrder cancels one stale order; the terminator releases its
// stock and slot reservations inside the same transaction.
func (j *orderExpiryJob) expireOrder(ctx context.Context, order models.Order) error {
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		actor := orders.ActorInput{Role: "system"}
		err := j.terminator.TerminateInTx(ctx, tx, order.ID, enums.OrderStatusCancelled, enums.CancelReasonTechnicalIssue, actor)
		if err != nil {
			// A payment confirmed between the query and this transaction
			// wins; the order is no longer stale.
			if pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
				return nil
			}
			return err
		}

		now := j.now().UTC()
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    now,
			Data: OrderExpiredEvent{
				OrderID:   order.ID,
				ExpiredAt: now,
			},
		}
		return j.outbox.EmitIfNotExists(ctx, tx, event)
	})
}
