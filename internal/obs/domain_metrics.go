package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics groups Prometheus collectors describing the cart engine.
type CartMetrics struct {
	// MutationsTotal counts quantity changes by outcome.
	MutationsTotal *prometheus.CounterVec
	// RecalcDuration records recalculation latency in milliseconds.
	RecalcDuration prometheus.Histogram
	// GrandTotal exposes the current payable amount in minor units.
	GrandTotal prometheus.Gauge
	// ProductQty exposes the current number of products in the cart.
	ProductQty prometheus.Gauge
	// Shops exposes the current number of shops in the cart.
	Shops prometheus.Gauge
}

// NewCartMetrics initialises and registers cart-specific Prometheus collectors.
func NewCartMetrics(namespace string, reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &CartMetrics{
		MutationsTotal: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart item quantity changes by outcome.",
		}, []string{"result"})),
		RecalcDuration: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cart_recalc_duration_ms",
			Help:      "Latency of a full cart recalculation in milliseconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		})),
		GrandTotal: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cart_grand_total_minor_units",
			Help:      "Current cart grand total in minor currency units.",
		})),
		ProductQty: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cart_product_qty",
			Help:      "Current number of products in the cart.",
		})),
		Shops: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cart_shop_qty",
			Help:      "Current number of shops in the cart.",
		})),
	}
}

// ObserveMutation records a mutation outcome. Safe on a nil receiver.
func (m *CartMetrics) ObserveMutation(result string) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(result).Inc()
}

// ObserveRecalc records the latency and resulting totals of a recalculation.
func (m *CartMetrics) ObserveRecalc(took time.Duration, grandTotal, productQty int64, shops int) {
	if m == nil {
		return
	}
	m.RecalcDuration.Observe(DurationMillis(took))
	m.GrandTotal.Set(float64(grandTotal))
	m.ProductQty.Set(float64(productQty))
	m.Shops.Set(float64(shops))
}
