package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"fedbridge/internal/app"
	"fedbridge/pkg/config"
	"fedbridge/pkg/logger"
)

// build metadata - set via ldflags during build/release
var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	var (
		cfgPath = flag.String("config", "", "path to yaml config file")
		addr    = flag.String("addr", "", "listen address (host:port), overrides config")
		dbPath  = flag.String("db", "", "pebble db path, overrides config")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// explicit flags win over config/env
	if *addr != "" {
		cfg.Server.Address, cfg.Server.Port = splitAddr(*addr, cfg.Server.Port)
	}
	if *dbPath != "" {
		cfg.Storage.DBPath = *dbPath
	}

	logger.Init(cfg.Logging.Level)
	defer logger.Sync()

	a, err := app.New(cfg, version)
	if err != nil {
		logger.Log.Fatal("startup_failed", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Log.Warn("close_failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logger.Log.Fatal("server_failed", zap.Error(err))
	}
	logger.Log.Info("shutdown_complete")
}

// splitAddr splits "host:port" into parts, keeping the fallback port when
// the flag has no port.
func splitAddr(addr string, fallbackPort int) (string, int) {
	host := addr
	port := fallbackPort
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			host = addr[:i]
			p := 0
			for _, c := range addr[i+1:] {
				if c < '0' || c > '9' {
					return addr, fallbackPort
				}
				p = p*10 + int(c-'0')
			}
			if p > 0 {
				port = p
			}
			break
		}
	}
	return host, port
}
