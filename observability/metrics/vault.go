package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// VaultMetrics tracks the instruction engine's outcomes.
type VaultMetrics struct {
	writesApplied  *prometheus.CounterVec
	writesRejected *prometheus.CounterVec
	fundingMoved   *prometheus.CounterVec
	capacityBytes  prometheus.Gauge
}

var (
	vaultOnce     sync.Once
	vaultRegistry *VaultMetrics
)

// Vault returns the process-wide vault metrics, registering them on first
// use.
func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			writesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_writes_applied_total",
				Help: "Count of applied vault writes by outcome.",
			}, []string{"outcome"}),
			writesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_writes_rejected_total",
				Help: "Count of rejected vault writes by reason.",
			}, []string{"reason"}),
			fundingMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_funding_moved_total",
				Help: "Balance units moved between owners and slots by direction.",
			}, []string{"direction"}),
			capacityBytes: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_capacity_bytes",
				Help: "Total bytes currently allocated across all slots.",
			}),
		}
		prometheus.MustRegister(
			vaultRegistry.writesApplied,
			vaultRegistry.writesRejected,
			vaultRegistry.fundingMoved,
			vaultRegistry.capacityBytes,
		)
	})
	return vaultRegistry
}

// ObserveWrite records a successful write. Outcome is "created", "resized" or
// "rewritten".
func (m *VaultMetrics) ObserveWrite(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.writesApplied.WithLabelValues(outcome).Inc()
}

// ObserveRejected records a rejected write by stable reason label.
func (m *VaultMetrics) ObserveRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "internal"
	}
	m.writesRejected.WithLabelValues(reason).Inc()
}

// ObserveFunding records balance movement. Direction is "topup" or "refund".
func (m *VaultMetrics) ObserveFunding(direction string, units float64) {
	if m == nil || units <= 0 {
		return
	}
	m.fundingMoved.WithLabelValues(direction).Add(units)
}

// SetCapacityBytes publishes the aggregate capacity after a commit.
func (m *VaultMetrics) SetCapacityBytes(total float64) {
	if m == nil {
		return
	}
	m.capacityBytes.Set(total)
}
