package webhooks

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sarqyt/sarqyt-backend/internal/payments"
	"github.com/sarqyt/sarqyt-backend/internal/payments/providers/click"
	"github.com/sarqyt/sarqyt-backend/internal/payments/providers/payme"
	"github.com/sarqyt/sarqyt-backend/pkg/config"
	"github.com/sarqyt/sarqyt-backend/pkg/enums"
)

type stubLedger struct {
	prepare  func(ctx context.Context, input payments.PrepareInput) (*payments.Result, error)
	complete func(ctx context.Context, input payments.CompleteInput) (*payments.Result, error)
}

func (s *stubLedger) HandlePrepare(ctx context.Context, input payments.PrepareInput) (*payments.Result, error) {
	if s.prepare != nil {
		return s.prepare(ctx, input)
	}
	panic("not implemented")
}

func (s *stubLedger) HandleComplete(ctx context.Context, input payments.CompleteInput) (*payments.Result, error) {
	if s.complete != nil {
		return s.complete(ctx, input)
	}
	panic("not implemented")
}

func (s *stubLedger) ValidatePayable(ctx context.Context, provider enums.PaymentProvider, orderID uuid.UUID, amountMinor int64) error {
	panic("not implemented")
}

func (s *stubLedger) Lookup(ctx context.Context, provider enums.PaymentProvider, providerTxID string) (*payments.Result, error) {
	panic("not implemented")
}

func (s *stubLedger) SubmitProof(ctx context.Context, input payments.SubmitProofInput) (*payments.ProofView, error) {
	panic("not implemented")
}

func (s *stubLedger) ReviewProof(ctx context.Context, input payments.ReviewProofInput) (*payments.ProofView, error) {
	panic("not implemented")
}

func (s *stubLedger) Proof(ctx context.Context, orderID uuid.UUID) (*payments.ProofView, error) {
	panic("not implemented")
}

func clickSign(secret string, form url.Values) string {
	payload := form.Get("click_trans_id") + form.Get("service_id") + secret + form.Get("merchant_trans_id")
	if form.Get("action") == "1" {
		payload += form.Get("merchant_prepare_id")
	}
	payload += form.Get("amount") + form.Get("action") + form.Get("sign_time")
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func TestClickWebhookUnavailableWithoutAdapter(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/click", nil)
	resp := httptest.NewRecorder()
	ClickWebhook(nil, nil, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestClickWebhookPrepare(t *testing.T) {
	orderID := uuid.New()
	txID := uuid.New()
	secret := "click-secret"

	ledger := &stubLedger{
		prepare: func(ctx context.Context, input payments.PrepareInput) (*payments.Result, error) {
			if input.Provider != enums.PaymentProviderClick {
				t.Fatalf("unexpected provider %s", input.Provider)
			}
			if input.ProviderTxID != "776655" {
				t.Fatalf("unexpected provider tx id %q", input.ProviderTxID)
			}
			if input.OrderID != orderID {
				t.Fatalf("unexpected order id %s", input.OrderID)
			}
			if input.AmountMinor != 2500000 {
				t.Fatalf("unexpected amount %d", input.AmountMinor)
			}
			return &payments.Result{
				TransactionID: txID,
				OrderID:       orderID,
				Status:        enums.PaymentTxStatusPrepared,
				AmountMinor:   input.AmountMinor,
				PreparedAt:    time.Now(),
			}, nil
		},
	}
	adapter, err := click.NewAdapter(config.ClickConfig{ServiceID: "11", SecretKey: secret}, ledger, nil)
	if err != nil {
		t.Fatalf("build adapter: %v", err)
	}

	form := url.Values{}
	form.Set("click_trans_id", "776655")
	form.Set("service_id", "11")
	form.Set("merchant_trans_id", orderID.String())
	form.Set("amount", "25000.00")
	form.Set("action", "0")
	form.Set("sign_time", "2026-08-31 10:00:00")
	form.Set("sign_string", clickSign(secret, form))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/click", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()
	ClickWebhook(adapter, nil, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var body click.Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error != 0 {
		t.Fatalf("expected success, got error %d (%s)", body.Error, body.ErrorNote)
	}
	if body.MerchantPrepareID != txID.String() {
		t.Fatalf("unexpected merchant_prepare_id %q", body.MerchantPrepareID)
	}
}

func TestClickWebhookBadSignatureStillHTTP200(t *testing.T) {
	adapter, err := click.NewAdapter(config.ClickConfig{SecretKey: "click-secret"}, &stubLedger{}, nil)
	if err != nil {
		t.Fatalf("build adapter: %v", err)
	}

	form := url.Values{}
	form.Set("click_trans_id", "776655")
	form.Set("merchant_trans_id", uuid.NewString())
	form.Set("action", "0")
	form.Set("sign_string", "deadbeef")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/click", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()
	ClickWebhook(adapter, nil, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var body click.Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error != -1 {
		t.Fatalf("expected sign check failure, got %d", body.Error)
	}
}

func TestPaymeWebhookUnavailableWithoutAdapter(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payme", nil)
	resp := httptest.NewRecorder()
	PaymeWebhook(config.PaymeConfig{SecretKey: "s"}, nil, nil, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestPaymeWebhookRejectsBadAuth(t *testing.T) {
	adapter, err := payme.NewAdapter(config.PaymeConfig{SecretKey: "payme-secret"}, &stubLedger{}, nil)
	if err != nil {
		t.Fatalf("build adapter: %v", err)
	}

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Bearer abc",
		"wrong secret":   "Basic " + base64.StdEncoding.EncodeToString([]byte("Paycom:wrong")),
		"wrong login":    "Basic " + base64.StdEncoding.EncodeToString([]byte("merchant:payme-secret")),
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payme", strings.NewReader(`{"method":"CheckPerformTransaction"}`))
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp := httptest.NewRecorder()
		PaymeWebhook(config.PaymeConfig{SecretKey: "payme-secret"}, adapter, nil, nil).ServeHTTP(resp, req)

		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", name, resp.Code)
		}
		var body payme.Response
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode response: %v", name, err)
		}
		if body.Error == nil || body.Error.Code != -32504 {
			t.Fatalf("%s: expected -32504, got %+v", name, body.Error)
		}
	}
}

func TestPaymeWebhookAcceptsValidAuth(t *testing.T) {
	adapter, err := payme.NewAdapter(config.PaymeConfig{SecretKey: "payme-secret"}, &stubLedger{}, nil)
	if err != nil {
		t.Fatalf("build adapter: %v", err)
	}

	// Unknown method passes auth and fails inside the adapter with a
	// protocol error, not the transport auth code.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payme", strings.NewReader(`{"id":1,"method":"NoSuchMethod","params":{}}`))
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("Paycom:payme-secret")))

	resp := httptest.NewRecorder()
	PaymeWebhook(config.PaymeConfig{SecretKey: "payme-secret"}, adapter, nil, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var body payme.Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error == nil {
		t.Fatal("expected protocol error for unknown method")
	}
	if body.Error.Code == -32504 {
		t.Fatal("valid credentials must not fail transport auth")
	}
}
