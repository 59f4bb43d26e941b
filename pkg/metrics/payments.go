package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics tracks webhook traffic and reconciliation outcomes per provider.
type PaymentMetrics struct {
	webhooks *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	fiscal   *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_total",
		Help: "Provider webhook requests by provider and action.",
	}, []string{"provider", "action"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_outcomes_total",
		Help: "Final payment transaction outcomes by provider and status.",
	}, []string{"provider", "status"})
	fiscal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscal_dispatch_total",
		Help: "Fiscal receipt dispatch attempts by result.",
	}, []string{"result"})
	reg.MustRegister(webhooks, outcomes, fiscal)
	return &PaymentMetrics{
		webhooks: webhooks,
		outcomes: outcomes,
		fiscal:   fiscal,
	}
}

// IncWebhook counts an inbound webhook request.
func (p *PaymentMetrics) IncWebhook(provider, action string) {
	if p == nil || p.webhooks == nil {
		return
	}
	p.webhooks.WithLabelValues(normalizeLabel(provider), normalizeLabel(action)).Inc()
}

// IncOutcome counts a finalized transaction outcome.
func (p *PaymentMetrics) IncOutcome(provider, status string) {
	if p == nil || p.outcomes == nil {
		return
	}
	p.outcomes.WithLabelValues(normalizeLabel(provider), normalizeLabel(status)).Inc()
}

// IncFiscal counts a fiscal dispatch result ("ok" or "error").
func (p *PaymentMetrics) IncFiscal(result string) {
	if p == nil || p.fiscal == nil {
		return
	}
	p.fiscal.WithLabelValues(normalizeLabel(result)).Inc()
}
