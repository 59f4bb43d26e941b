package fiscal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sarqyt/sarqyt-backend/pkg/config"
	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
)

func testIssueRequest() IssueRequest {
	return IssueRequest{
		ReceiptID:            uuid.New(),
		OrderID:              uuid.New(),
		PaymentTransactionID: uuid.New(),
		AmountMinor:          1_500_000,
	}
}

func TestHTTPSenderIssue(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/receipts" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")

		var req IssueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.AmountMinor != 1_500_000 {
			t.Fatalf("unexpected amount %d", req.AmountMinor)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"qr_code_url": "https://ofd.example/qr/xyz"})
	}))
	defer server.Close()

	sender, err := NewHTTPSender(config.FiscalConfig{
		BaseURL: server.URL,
		Token:   "fiscal-token",
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewHTTPSender: %v", err)
	}

	qr, err := sender.Issue(context.Background(), testIssueRequest())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if qr != "https://ofd.example/qr/xyz" {
		t.Fatalf("unexpected qr %q", qr)
	}
	if gotAuth != "Bearer fiscal-token" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
}

func TestHTTPSenderGatewayErrors(t *testing.T) {
	status := http.StatusInternalServerError
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	sender, err := NewHTTPSender(config.FiscalConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewHTTPSender: %v", err)
	}

	_, err = sender.Issue(context.Background(), testIssueRequest())
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error for 5xx, got %v", err)
	}

	status = http.StatusBadRequest
	_, err = sender.Issue(context.Background(), testIssueRequest())
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for 4xx, got %v", err)
	}
}

func TestHTTPSenderRequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPSender(config.FiscalConfig{}); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
