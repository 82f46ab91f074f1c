package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
	"liyu1981.xyz/greenhouse-relay/pkg/common"
	"liyu1981.xyz/greenhouse-relay/pkg/db"
	relayGrpc "liyu1981.xyz/greenhouse-relay/pkg/grpc"
	relayHttp "liyu1981.xyz/greenhouse-relay/pkg/http"
	"liyu1981.xyz/greenhouse-relay/pkg/metrics"
	"liyu1981.xyz/greenhouse-relay/pkg/relay"
)

const shutdownTimeout = 10 * time.Second

func dialectorFor(cfg *common.Config) gorm.Dialector {
	switch cfg.DBType {
	case common.DBTypePostgres:
		return db.UsePostgresDialector(cfg.DatabaseURL)
	case common.DBTypeMemory:
		return db.UseMemorySqliteDialector()
	default:
		return db.UseSqliteDialector(cfg.DBPath)
	}
}

func main() {
	defer common.SyncLogger()

	logger := common.GetLogger()

	if err := godotenv.Load(); err != nil && !common.IsProduction() {
		logger.Info("No .env file loaded, using process environment only", zap.Error(err))
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if cfg.APIKey == common.DefaultAPIKey {
		logger.Warn("API_KEY is not set, using the built-in default key")
	}

	dbInstance, err := db.Open(dialectorFor(cfg), cfg.DBConnectTimeout)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer func() {
		if err := dbInstance.Close(); err != nil {
			logger.Error("Failed to close database", zap.Error(err))
		}
	}()

	m := metrics.New()
	relayCore := relay.New(dbInstance, m)

	var limiterStore *relay.RateLimiterStore
	if cfg.RateLimited {
		limiterStore = relay.NewRateLimiterStore(rate.Limit(cfg.DefaultRate), cfg.DefaultBurst)
		logger.Info("Per-device rate limiting enabled",
			zap.Float64("default_rate", cfg.DefaultRate),
			zap.Int("default_burst", cfg.DefaultBurst))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)

	var grpcServer interface{ GracefulStop() }
	if cfg.GrpcHostPort != "" {
		relayGrpcServer := &relayGrpc.RelayServer{
			Relay:            relayCore,
			RateLimiterStore: limiterStore,
			Metrics:          m,
			APIKey:           cfg.APIKey,
		}
		s := relayGrpcServer.NewServer()
		grpcServer = s

		listener, err := net.Listen("tcp", cfg.GrpcHostPort)
		if err != nil {
			log.Fatalf("failed to listen: %v", err)
		}

		logger.Info("Starting gRPC server on " + cfg.GrpcHostPort)
		go func() {
			if err := s.Serve(listener); err != nil {
				errCh <- err
			}
		}()
	}

	if common.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	rs := &relayHttp.RestfulServer{
		Server:           gin.Default(),
		Relay:            relayCore,
		RateLimiterStore: limiterStore,
		Metrics:          m,
		APIKey:           cfg.APIKey,
	}
	rs.Setup()

	httpServer := &http.Server{
		Addr:    cfg.HTTPHostPort,
		Handler: rs.Server,
	}

	logger.Info("Starting HTTP server on " + cfg.HTTPHostPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	logger.Info("Server stopped")
}
