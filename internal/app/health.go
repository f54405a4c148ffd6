package app

import (
	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/isp-ops/internal/health"
)

// NewHealthAggregator starts with the two dependencies every instance has.
func NewHealthAggregator(acsClient health.ACSProbe, store health.Pinger) *health.Aggregator {
	return health.NewAggregator(
		health.NewACSChecker(acsClient),
		health.NewBillingChecker(store),
	)
}

// RegisterHealthRoutes mounts /health, /health/ready and /health/live.
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}
