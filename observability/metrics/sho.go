package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type SHOMetrics struct {
	deposits    *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	accumulated *prometheus.GaugeVec
	swaps       *prometheus.CounterVec
	admin       *prometheus.CounterVec
}

var (
	shoOnce     sync.Once
	shoRegistry *SHOMetrics
)

func SHO() *SHOMetrics {
	shoOnce.Do(func() {
		shoRegistry = &SHOMetrics{
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sho_deposits_total",
				Help: "Count of deposit attempts by outcome.",
			}, []string{"outcome"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sho_deposit_rejections_total",
				Help: "Count of rejected deposits by reason.",
			}, []string{"reason"}),
			accumulated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "sho_sale_accumulated",
				Help: "Cumulative amount deposited per sale, in base units.",
			}, []string{"sale"}),
			swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sho_swaps_total",
				Help: "Count of swap-assisted deposits by outcome.",
			}, []string{"outcome"}),
			admin: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sho_admin_operations_total",
				Help: "Count of owner operations by name and outcome.",
			}, []string{"operation", "outcome"}),
		}
		prometheus.MustRegister(
			shoRegistry.deposits,
			shoRegistry.rejections,
			shoRegistry.accumulated,
			shoRegistry.swaps,
			shoRegistry.admin,
		)
	})
	return shoRegistry
}

func outcome(ok bool) string {
	if ok {
		return "accepted"
	}
	return "rejected"
}

// ObserveDeposit records a deposit attempt. reason is ignored for accepted
// deposits.
func (m *SHOMetrics) ObserveDeposit(ok bool, reason string) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(outcome(ok)).Inc()
	if ok {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *SHOMetrics) ObserveSwap(ok bool) {
	if m == nil {
		return
	}
	m.swaps.WithLabelValues(outcome(ok)).Inc()
}

func (m *SHOMetrics) SetAccumulated(sale string, amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	if sale == "" {
		sale = "unknown"
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.accumulated.WithLabelValues(sale).Set(value)
}

func (m *SHOMetrics) ObserveAdmin(operation string, ok bool) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.admin.WithLabelValues(operation, outcome(ok)).Inc()
}
