// Package observability provides Prometheus metrics for the vault engine and keeper.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"liquidityVault/internal/ledger"
)

const namespace = "vaultd"

// Keeper rebalance results.
const (
	ResultOK      = "ok"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// Metrics holds all collectors. Each instance owns its registry so that
// several engines (and tests) never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	// Engine
	CallsCommitted prometheus.Counter
	CallsReverted  *prometheus.CounterVec
	EventsEmitted  prometheus.Counter

	// Keeper
	KeeperRebalance     *prometheus.CounterVec
	KeeperRunDuration   prometheus.Histogram
	LastRebalance       *prometheus.GaugeVec
	VaultTotalAmount    *prometheus.GaugeVec
	VaultTotalSupply    *prometheus.GaugeVec
	KeeperVaultsTracked prometheus.Gauge
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CallsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "calls_committed_total",
			Help:      "Total number of committed calls",
		}),
		CallsReverted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "calls_reverted_total",
			Help:      "Total number of aborted calls by failure kind and tag",
		}, []string{"kind", "tag"}),
		EventsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_emitted_total",
			Help:      "Total number of events emitted by committed calls",
		}),

		KeeperRebalance: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "rebalance_total",
			Help:      "Rebalance attempts by vault and result",
		}, []string{"vault", "result"}),
		KeeperRunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "run_duration_seconds",
			Help:      "Duration of one keeper pass over all vaults",
			Buckets:   prometheus.DefBuckets,
		}),
		LastRebalance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "last_rebalance_timestamp",
			Help:      "Settlement timestamp of the last successful rebalance",
		}, []string{"vault"}),
		VaultTotalAmount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "total_amount",
			Help:      "Total token amount held by the vault in display units",
		}, []string{"vault", "token"}),
		VaultTotalSupply: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "total_supply",
			Help:      "Outstanding vault shares in display units",
		}, []string{"vault"}),
		KeeperVaultsTracked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "vaults_tracked",
			Help:      "Number of vaults visited on the last keeper pass",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CallCommitted implements ledger.Observer.
func (m *Metrics) CallCommitted(events int) {
	m.CallsCommitted.Inc()
	m.EventsEmitted.Add(float64(events))
}

// CallReverted implements ledger.Observer.
func (m *Metrics) CallReverted(err error) {
	kind, ok := ledger.KindOf(err)
	if !ok {
		m.CallsReverted.WithLabelValues("other", "").Inc()
		return
	}
	m.CallsReverted.WithLabelValues(kind.String(), ledger.TagOf(err)).Inc()
}

// RecordRebalance counts one keeper attempt for vault.
func (m *Metrics) RecordRebalance(vault, result string) {
	m.KeeperRebalance.WithLabelValues(vault, result).Inc()
}

// RecordRebalanceSuccess sets the last rebalance gauge for vault.
func (m *Metrics) RecordRebalanceSuccess(vault string, timestamp uint64) {
	m.LastRebalance.WithLabelValues(vault).Set(float64(timestamp))
}

// SetVaultTotals updates the holdings gauges for vault.
func (m *Metrics) SetVaultTotals(vault, token0, token1 string, total0, total1, supply float64) {
	m.VaultTotalAmount.WithLabelValues(vault, token0).Set(total0)
	m.VaultTotalAmount.WithLabelValues(vault, token1).Set(total1)
	m.VaultTotalSupply.WithLabelValues(vault).Set(supply)
}

var _ ledger.Observer = (*Metrics)(nil)
