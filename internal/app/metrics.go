package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/isp-ops/internal/metrics"
)

// NewMetrics creates the registry and the business metrics.
func NewMetrics() (*prometheus.Registry, *metrics.AppMetrics) {
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)
	return reg, appm
}
