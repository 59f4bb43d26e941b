// Package payme adapts the Payme Merchant API (JSON-RPC 2.0 over a
// single endpoint, amounts already in tiyin) onto the provider-agnostic
// payment ledger.
package payme

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sarqyt/sarqyt-backend/internal/payments"
	"github.com/sarqyt/sarqyt-backend/pkg/config"
	"github.com/sarqyt/sarqyt-backend/pkg/enums"
	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
	"github.com/sarqyt/sarqyt-backend/pkg/logger"
)

// Merchant API error codes.
const (
	codeInvalidAmount    = -31001
	codeTxNotFound       = -31003
	codeCannotPerform    = -31008
	codeOrderNotFound    = -31050
	codeOrderUnavailable = -31051
	codeInvalidJSONRPC   = -32600
	codeMethodNotFound   = -32601
)

// Merchant API transaction states.
const (
	stateCreated   = 1
	statePerformed = 2
	stateCancelled = -1
)

// Request is one JSON-RPC call from Payme.
type Request struct {
	ID     any             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type txParams struct {
	ID      string          `json:"id"`
	Time    int64           `json:"time"`
	Amount  int64           `json:"amount"`
	Account map[string]any  `json:"account"`
	Reason  json.RawMessage `json:"reason"`
}

// Response is the JSON-RPC reply envelope.
type Response struct {
	ID     any       `json:"id"`
	Result any       `json:"result,omitempty"`
	Error  *RPCError `json:"error,omitempty"`
}

// RPCError is the Merchant API error shape.
type RPCError struct {
	Code    int            `json:"code"`
	Message map[string]any `json:"message,omitempty"`
	Data    string         `json:"data,omitempty"`
}

// Adapter translates Payme JSON-RPC calls into ledger operations.
type Adapter struct {
	cfg  config.PaymeConfig
	svc  payments.Service
	logg *logger.Logger
}

// NewAdapter builds the Payme adapter.
func NewAdapter(cfg config.PaymeConfig, svc payments.Service, logg *logger.Logger) (*Adapter, error) {
	if svc == nil {
		return nil, fmt.Errorf("payments service required")
	}
	return &Adapter{cfg: cfg, svc: svc, logg: logg}, nil
}

// Handle dispatches one JSON-RPC request. Transport auth (Basic header
// against the merchant key) happens in the HTTP layer before this.
func (a *Adapter) Handle(ctx context.Context, body []byte) Response {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return rpcError(nil, codeInvalidJSONRPC, "invalid request")
	}

	var params txParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return rpcError(req.ID, codeInvalidJSONRPC, "invalid params")
		}
	}

	switch req.Method {
	case "CheckPerformTransaction":
		return a.checkPerform(ctx, req, params)
	case "CreateTransaction":
		return a.create(ctx, req, params, body)
	case "PerformTransaction":
		return a.perform(ctx, req, params, body)
	case "CancelTransaction":
		return a.cancel(ctx, req, params, body)
	case "CheckTransaction":
		return a.check(ctx, req, params)
	default:
		return rpcError(req.ID, codeMethodNotFound, "method not found")
	}
}

// checkPerform validates the account and amount without creating
// anything. Payme calls it before CreateTransaction.
func (a *Adapter) checkPerform(ctx context.Context, req Request, params txParams) Response {
	orderID, ok := accountOrderID(params.Account)
	if !ok {
		return rpcError(req.ID, codeOrderNotFound, "order not found")
	}
	if err := a.svc.ValidatePayable(ctx, enums.PaymentProviderPayme, orderID, params.Amount); err != nil {
		return a.mapError(req.ID, err)
	}
	return Response{ID: req.ID, Result: map[string]any{"allow": true}}
}

func (a *Adapter) create(ctx context.Context, req Request, params txParams, body []byte) Response {
	orderID, ok := accountOrderID(params.Account)
	if !ok {
		return rpcError(req.ID, codeOrderNotFound, "order not found")
	}
	result, err := a.svc.HandlePrepare(ctx, payments.PrepareInput{
		Provider:     enums.PaymentProviderPayme,
		ProviderTxID: params.ID,
		OrderID:      orderID,
		AmountMinor:  params.Amount,
		RawRequest:   body,
	})
	if err != nil {
		return a.mapError(req.ID, err)
	}
	if result.Status != enums.PaymentTxStatusPrepared {
		// Replay of an id that already finalized.
		return rpcError(req.ID, codeCannotPerform, "transaction already finalized")
	}
	return Response{ID: req.ID, Result: map[string]any{
		"create_time": millis(result.PreparedAt),
		"transaction": result.TransactionID.String(),
		"state":       stateCreated,
	}}
}

func (a *Adapter) perform(ctx context.Context, req Request, params txParams, body []byte) Response {
	result, err := a.svc.HandleComplete(ctx, payments.CompleteInput{
		Provider:     enums.PaymentProviderPayme,
		ProviderTxID: params.ID,
		Outcome:      payments.OutcomeSuccess,
		RawResponse:  body,
	})
	if err != nil {
		return a.mapError(req.ID, err)
	}
	if result.Status != enums.PaymentTxStatusConfirmed {
		return rpcError(req.ID, codeCannotPerform, "transaction cancelled")
	}
	var performTime int64
	if result.ConfirmedAt != nil {
		performTime = millis(*result.ConfirmedAt)
	}
	return Response{ID: req.ID, Result: map[string]any{
		"perform_time": performTime,
		"transaction":  result.TransactionID.String(),
		"state":        statePerformed,
	}}
}

func (a *Adapter) cancel(ctx context.Context, req Request, params txParams, body []byte) Response {
	reason := string(params.Reason)
	result, err := a.svc.HandleComplete(ctx, payments.CompleteInput{
		Provider:     enums.PaymentProviderPayme,
		ProviderTxID: params.ID,
		Outcome:      payments.OutcomeCancelled,
		ErrorCode:    &reason,
		RawResponse:  body,
	})
	if err != nil {
		return a.mapError(req.ID, err)
	}
	if result.Status == enums.PaymentTxStatusConfirmed {
		// We settled the order before the cancel arrived; Payme has to
		// resolve this through its review channel, not the API.
		return rpcError(req.ID, codeCannotPerform, "transaction already performed")
	}
	var cancelTime int64
	if result.CancelledAt != nil {
		cancelTime = millis(*result.CancelledAt)
	}
	return Response{ID: req.ID, Result: map[string]any{
		"cancel_time": cancelTime,
		"transaction": result.TransactionID.String(),
		"state":       stateCancelled,
	}}
}

func (a *Adapter) check(ctx context.Context, req Request, params txParams) Response {
	result, err := a.svc.Lookup(ctx, enums.PaymentProviderPayme, params.ID)
	if err != nil {
		return a.mapError(req.ID, err)
	}
	return Response{ID: req.ID, Result: statusResult(result)}
}

func statusResult(result *payments.Result) map[string]any {
	out := map[string]any{
		"create_time":  millis(result.PreparedAt),
		"perform_time": int64(0),
		"cancel_time":  int64(0),
		"transaction":  result.TransactionID.String(),
		"state":        stateOf(result.Status),
	}
	if result.ConfirmedAt != nil {
		out["perform_time"] = millis(*result.ConfirmedAt)
	}
	if result.CancelledAt != nil {
		out["cancel_time"] = millis(*result.CancelledAt)
	}
	return out
}

func stateOf(status enums.PaymentTxStatus) int {
	switch status {
	case enums.PaymentTxStatusConfirmed:
		return statePerformed
	case enums.PaymentTxStatusCancelled, enums.PaymentTxStatusRejected:
		return stateCancelled
	default:
		return stateCreated
	}
}

func (a *Adapter) mapError(id any, err error) Response {
	if a.logg != nil {
		ctx := a.logg.WithProvider(context.Background(), enums.PaymentProviderPayme.String())
		a.logg.Warn(a.logg.WithField(ctx, "error", err.Error()), "payme call rejected")
	}

	switch {
	case pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		return rpcError(id, codeTxNotFound, "transaction not found")
	case pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition):
		return rpcError(id, codeCannotPerform, "order no longer payable")
	case pkgerrors.HasCode(err, pkgerrors.CodePaymentProvider):
		switch payments.FailureReason(err) {
		case payments.ReasonAmountMismatch:
			return rpcError(id, codeInvalidAmount, "invalid amount")
		case payments.ReasonOrderNotPayable:
			return rpcError(id, codeOrderUnavailable, "order is not awaiting payment")
		default:
			return rpcError(id, codeOrderNotFound, "order not payable")
		}
	case pkgerrors.HasCode(err, pkgerrors.CodeValidation):
		return rpcError(id, codeInvalidJSONRPC, "invalid params")
	default:
		return rpcError(id, codeCannotPerform, "internal error")
	}
}

func accountOrderID(account map[string]any) (uuid.UUID, bool) {
	raw, _ := account["order_id"].(string)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func rpcError(id any, code int, message string) Response {
	return Response{ID: id, Error: &RPCError{
		Code: code,
		Message: map[string]any{
			"en": message,
		},
	}}
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}
