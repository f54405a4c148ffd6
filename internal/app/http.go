package app

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/taoyao-code/isp-ops/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/isp-ops/internal/config"
	"github.com/taoyao-code/isp-ops/internal/httpserver"
)

// NewHTTPServer builds the HTTP server with request ids and access logging.
func NewHTTPServer(cfg cfgpkg.HTTPConfig, metricsPath string, metricsHandler http.Handler, readyFn func() bool, log *zap.Logger) *httpserver.Server {
	srv := httpserver.New(cfg, metricsPath, metricsHandler, readyFn)
	srv.Use(middleware.RequestID(), middleware.AccessLog(log))
	return srv
}
