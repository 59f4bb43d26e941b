package fiscal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sarqyt/sarqyt-backend/pkg/config"
	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
)

const responseBodyReadLimit int64 = 1024

// IssueRequest is everything the tax-authority endpoint needs to
// register one receipt.
type IssueRequest struct {
	ReceiptID            uuid.UUID `json:"receipt_id"`
	OrderID              uuid.UUID `json:"order_id"`
	PaymentTransactionID uuid.UUID `json:"payment_transaction_id"`
	AmountMinor          int64     `json:"amount_minor"`
}

// Sender registers a receipt with the fiscal authority and returns the
// QR verification URL.
type Sender interface {
	Issue(ctx context.Context, req IssueRequest) (string, error)
}

var errBaseURLRequired = errors.New("fiscal base url is required")

// HTTPSender talks to the fiscalization gateway over HTTP.
type HTTPSender struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// SenderOption configures optional sender behavior.
type SenderOption func(*HTTPSender)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) SenderOption {
	return func(s *HTTPSender) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewHTTPSender builds the gateway sender from config.
func NewHTTPSender(cfg config.FiscalConfig, opts ...SenderOption) (*HTTPSender, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	sender := &HTTPSender{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sender)
		}
	}
	return sender, nil
}

// Issue registers the receipt. Gateway 5xx and transport failures come
// back as DEPENDENCY_ERROR so callers can retry; 4xx means the request
// itself is bad and retrying will not help.
func (s *HTTPSender) Issue(ctx context.Context, req IssueRequest) (string, error) {
	if s == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "fiscal sender not configured")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal receipt request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/receipts", bytes.NewReader(payload))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build receipt request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute receipt request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		wrapped := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, wrapped, "fiscal gateway unavailable")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, wrapped, "fiscal gateway rejected receipt")
	}

	var apiResp struct {
		QRCodeURL string `json:"qr_code_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode receipt response")
	}
	if apiResp.QRCodeURL == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "fiscal gateway returned no qr code url")
	}
	return apiResp.QRCodeURL, nil
}
