package engine

import "github.com/rawblock/tradeloop-engine/pkg/models"

// TenantMetrics accumulates running totals across every Discover/delta call
// for one tenant, alongside the per-call stats each individual result
// already carries.
type TenantMetrics struct {
	CyclesFound            int
	PermutationsEliminated int
	TimeoutsHit            int
	PartitionsProcessed    int
	LoopsDiscovered        int
	LoopsInvalidated       int
}

func (e *Engine) tenantMetrics(tenant models.TenantID) *TenantMetrics {
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	m, ok := e.perTenantMetrics[tenant]
	if !ok {
		m = &TenantMetrics{}
		e.perTenantMetrics[tenant] = m
	}
	return m
}

// Metrics returns a copy of tenant's cumulative counters. Absent tenants
// report a zero value rather than an error: metrics are observational and
// never fail a call.
func (e *Engine) Metrics(tenant models.TenantID) TenantMetrics {
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	if m, ok := e.perTenantMetrics[tenant]; ok {
		return *m
	}
	return TenantMetrics{}
}

func (e *Engine) recordDiscoveryStats(tenant models.TenantID, stats models.DiscoveryStats, discovered int) {
	m := e.tenantMetrics(tenant)
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	m.CyclesFound += stats.CyclesFound
	m.PermutationsEliminated += stats.PermutationsEliminated
	if stats.TimedOut {
		m.TimeoutsHit++
	}
	m.PartitionsProcessed += stats.PartitionsProcessed
	m.LoopsDiscovered += discovered
}

func (e *Engine) recordInvalidations(tenant models.TenantID, n int) {
	m := e.tenantMetrics(tenant)
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	m.LoopsInvalidated += n
}
