package webhooks

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/sarqyt/sarqyt-backend/internal/payments/providers/payme"
	"github.com/sarqyt/sarqyt-backend/pkg/config"
	"github.com/sarqyt/sarqyt-backend/pkg/logger"
	"github.com/sarqyt/sarqyt-backend/pkg/metrics"
)

const (
	paymeAuthLogin        = "Paycom"
	paymeCodeUnauthorized = -32504

	maxPaymeBody = 1 << 20
)

// PaymeWebhook handles Payme Merchant API JSON-RPC calls. Transport auth
// is a Basic header carrying the merchant key; everything past that is
// delegated to the adapter. Replies are always HTTP 200 per the protocol.
func PaymeWebhook(cfg config.PaymeConfig, adapter *payme.Adapter, paymentMetrics *metrics.PaymentMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if adapter == nil {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}

		if !paymeAuthorized(r, cfg.SecretKey) {
			if logg != nil {
				logg.Warn(ctx, "payme callback auth failed")
			}
			writeProviderJSON(w, payme.Response{Error: &payme.RPCError{
				Code:    paymeCodeUnauthorized,
				Message: map[string]any{"en": "insufficient privileges"},
			}})
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxPaymeBody))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		if paymentMetrics != nil {
			paymentMetrics.IncWebhook("payme", methodOf(body))
		}

		resp := adapter.Handle(ctx, body)

		if paymentMetrics != nil {
			outcome := "ok"
			if resp.Error != nil {
				outcome = "error"
			}
			paymentMetrics.IncOutcome("payme", outcome)
		}

		writeProviderJSON(w, resp)
	}
}

func paymeAuthorized(r *http.Request, secret string) bool {
	if secret == "" {
		return false
	}
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(raw, "Basic ") {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw[6:]))
	if err != nil {
		return false
	}
	expected := paymeAuthLogin + ":" + secret
	return subtle.ConstantTimeCompare(decoded, []byte(expected)) == 1
}

func methodOf(body []byte) string {
	var probe struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Method == "" {
		return "unknown"
	}
	return probe.Method
}
