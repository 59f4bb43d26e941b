package webhooks

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/sarqyt/sarqyt-backend/internal/payments/providers/click"
	"github.com/sarqyt/sarqyt-backend/pkg/logger"
	"github.com/sarqyt/sarqyt-backend/pkg/metrics"
)

// ClickWebhook handles Click SHOP-API prepare/complete callbacks. The
// protocol expects HTTP 200 with an error field on every reply, so this
// handler never writes a non-200 status for protocol-level failures.
func ClickWebhook(adapter *click.Adapter, paymentMetrics *metrics.PaymentMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if adapter == nil {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}

		if err := r.ParseForm(); err != nil {
			http.Error(w, "malformed form body", http.StatusBadRequest)
			return
		}

		req := click.ParseForm(r.PostForm)

		if paymentMetrics != nil {
			paymentMetrics.IncWebhook("click", req.Action)
		}

		resp := adapter.Handle(ctx, req)

		if paymentMetrics != nil {
			paymentMetrics.IncOutcome("click", strconv.Itoa(resp.Error))
		}
		if logg != nil && resp.Error != 0 {
			ctx = logg.WithFields(ctx, map[string]any{
				"click_trans_id": req.ClickTransID,
				"click_error":    resp.Error,
			})
			logg.Warn(ctx, "click callback rejected")
		}

		writeProviderJSON(w, resp)
	}
}

func writeProviderJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode provider response","err":"%v"}`, err)
	}
}
