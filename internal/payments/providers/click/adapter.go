// Package click adapts the Click SHOP-API callback protocol (a single
// form-encoded endpoint multiplexed by an action field, MD5 request
// signing) onto the provider-agnostic payment ledger.
package click

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/sarqyt/sarqyt-backend/internal/money"
	"github.com/sarqyt/sarqyt-backend/internal/payments"
	"github.com/sarqyt/sarqyt-backend/pkg/config"
	"github.com/sarqyt/sarqyt-backend/pkg/enums"
	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
	"github.com/sarqyt/sarqyt-backend/pkg/logger"
)

// Click action codes.
const (
	actionPrepare  = "0"
	actionComplete = "1"
)

// Click SHOP-API error codes.
const (
	codeOK              = 0
	codeSignCheckFailed = -1
	codeIncorrectAmount = -2
	codeActionNotFound  = -3
	codeAlreadyPaid     = -4
	codeOrderNotFound   = -5
	codeTxNotFound      = -6
	codeBadRequest      = -8
	codeTxCancelled     = -9
)

// Request is one parsed Click callback.
type Request struct {
	ClickTransID      string
	ServiceID         string
	ClickPaydocID     string
	MerchantTransID   string
	MerchantPrepareID string
	Amount            string
	Action            string
	Error             string
	ErrorNote         string
	SignTime          string
	SignString        string
}

// Response is the JSON body Click expects back on every callback.
type Response struct {
	ClickTransID      string `json:"click_trans_id"`
	MerchantTransID   string `json:"merchant_trans_id"`
	MerchantPrepareID string `json:"merchant_prepare_id,omitempty"`
	MerchantConfirmID string `json:"merchant_confirm_id,omitempty"`
	Error             int    `json:"error"`
	ErrorNote         string `json:"error_note"`
}

// Adapter translates Click callbacks into ledger operations.
type Adapter struct {
	cfg  config.ClickConfig
	svc  payments.Service
	logg *logger.Logger
}

// NewAdapter builds the Click adapter.
func NewAdapter(cfg config.ClickConfig, svc payments.Service, logg *logger.Logger) (*Adapter, error) {
	if svc == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("click secret key required")
	}
	return &Adapter{cfg: cfg, svc: svc, logg: logg}, nil
}

// ParseForm reads a Click callback out of form values.
func ParseForm(form url.Values) Request {
	return Request{
		ClickTransID:      form.Get("click_trans_id"),
		ServiceID:         form.Get("service_id"),
		ClickPaydocID:     form.Get("click_paydoc_id"),
		MerchantTransID:   form.Get("merchant_trans_id"),
		MerchantPrepareID: form.Get("merchant_prepare_id"),
		Amount:            form.Get("amount"),
		Action:            form.Get("action"),
		Error:             form.Get("error"),
		ErrorNote:         form.Get("error_note"),
		SignTime:          form.Get("sign_time"),
		SignString:        form.Get("sign_string"),
	}
}

// Handle processes one callback end to end. It never returns an error:
// every failure is expressed through the protocol's error field.
func (a *Adapter) Handle(ctx context.Context, req Request) Response {
	resp := Response{
		ClickTransID:    req.ClickTransID,
		MerchantTransID: req.MerchantTransID,
	}

	if !a.verifySignature(req) {
		return withError(resp, codeSignCheckFailed, "signature check failed")
	}

	switch req.Action {
	case actionPrepare:
		return a.prepare(ctx, req, resp)
	case actionComplete:
		return a.complete(ctx, req, resp)
	default:
		return withError(resp, codeActionNotFound, "unknown action")
	}
}

func (a *Adapter) prepare(ctx context.Context, req Request, resp Response) Response {
	orderID, err := uuid.Parse(req.MerchantTransID)
	if err != nil {
		return withError(resp, codeOrderNotFound, "order not found")
	}
	amount, err := money.FromDecimalString(req.Amount)
	if err != nil {
		return withError(resp, codeIncorrectAmount, "unparseable amount")
	}

	raw, _ := json.Marshal(req)
	result, err := a.svc.HandlePrepare(ctx, payments.PrepareInput{
		Provider:     enums.PaymentProviderClick,
		ProviderTxID: req.ClickTransID,
		OrderID:      orderID,
		AmountMinor:  amount.Int64(),
		RawRequest:   raw,
	})
	if err != nil {
		return a.mapError(resp, err)
	}

	// Click replays prepare freely; an already-final transaction answers
	// from its settled state.
	switch result.Status {
	case enums.PaymentTxStatusConfirmed:
		return withError(resp, codeAlreadyPaid, "already paid")
	case enums.PaymentTxStatusCancelled, enums.PaymentTxStatusRejected:
		return withError(resp, codeTxCancelled, "transaction cancelled")
	}

	resp.MerchantPrepareID = result.TransactionID.String()
	resp.ErrorNote = "success"
	return resp
}

func (a *Adapter) complete(ctx context.Context, req Request, resp Response) Response {
	outcome := payments.OutcomeSuccess
	var errorCode, errorNote *string
	if req.Error != "" && req.Error != "0" {
		outcome = payments.OutcomeCancelled
		errorCode = &req.Error
		if req.ErrorNote != "" {
			errorNote = &req.ErrorNote
		}
	}

	raw, _ := json.Marshal(req)
	result, err := a.svc.HandleComplete(ctx, payments.CompleteInput{
		Provider:     enums.PaymentProviderClick,
		ProviderTxID: req.ClickTransID,
		Outcome:      outcome,
		ErrorCode:    errorCode,
		ErrorNote:    errorNote,
		RawResponse:  raw,
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return withError(resp, codeTxNotFound, "transaction not found")
		}
		return a.mapError(resp, err)
	}

	switch result.Status {
	case enums.PaymentTxStatusConfirmed:
		if outcome != payments.OutcomeSuccess {
			// Provider voids a charge it already confirmed with us.
			return withError(resp, codeAlreadyPaid, "already paid")
		}
		resp.MerchantConfirmID = result.TransactionID.String()
		resp.ErrorNote = "success"
		return resp
	case enums.PaymentTxStatusCancelled, enums.PaymentTxStatusRejected:
		if outcome != payments.OutcomeSuccess {
			// Cancellation replay, or first delivery of the void.
			resp.MerchantConfirmID = result.TransactionID.String()
			resp.ErrorNote = "cancelled"
			return resp
		}
		return withError(resp, codeTxCancelled, "transaction cancelled")
	default:
		return withError(resp, codeTxNotFound, "transaction not finalized")
	}
}

func (a *Adapter) mapError(resp Response, err error) Response {
	if a.logg != nil {
		ctx := a.logg.WithProvider(context.Background(), enums.PaymentProviderClick.String())
		a.logg.Warn(a.logg.WithField(ctx, "error", err.Error()), "click callback rejected")
	}

	switch {
	case pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		return withError(resp, codeOrderNotFound, "order not found")
	case pkgerrors.HasCode(err, pkgerrors.CodeValidation):
		return withError(resp, codeBadRequest, "bad request")
	case pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition):
		return withError(resp, codeTxCancelled, "order no longer payable")
	case pkgerrors.HasCode(err, pkgerrors.CodePaymentProvider):
		switch payments.FailureReason(err) {
		case payments.ReasonAmountMismatch:
			return withError(resp, codeIncorrectAmount, "incorrect amount")
		case payments.ReasonOrderNotPayable:
			return withError(resp, codeAlreadyPaid, "order is not awaiting payment")
		default:
			return withError(resp, codeOrderNotFound, "order not payable")
		}
	default:
		return withError(resp, codeBadRequest, "internal error")
	}
}

// verifySignature checks the MD5 request signature. The prepare id joins
// the digest only on complete callbacks.
func (a *Adapter) verifySignature(req Request) bool {
	if req.SignString == "" {
		return false
	}
	payload := req.ClickTransID + req.ServiceID + a.cfg.SecretKey + req.MerchantTransID
	if req.Action == actionComplete {
		payload += req.MerchantPrepareID
	}
	payload += req.Amount + req.Action + req.SignTime

	sum := md5.Sum([]byte(payload))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(req.SignString)) == 1
}

func withError(resp Response, code int, note string) Response {
	resp.Error = code
	resp.ErrorNote = note
	return resp
}
