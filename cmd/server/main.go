package main

import (
	"flag"

	"go.uber.org/zap"

	"github.com/taoyao-code/isp-ops/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/isp-ops/internal/config"
	"github.com/taoyao-code/isp-ops/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file (default $ISPOPS_CONFIG or configs/example.yaml)")
	flag.Parse()

	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := bootstrap.Run(cfg, logger); err != nil {
		logger.Fatal("isp-ops exited", zap.Error(err))
	}
}
