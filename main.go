package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"booking/clients"
	"booking/config"
	"booking/postgres"
	"booking/service"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	log.Init(logrus.InfoLevel)
	logger := watermill.NewStdLogger(false, false)

	if err := run(logger); err != nil {
		logger.Error("failed to run", err, nil)
		os.Exit(1)
	}
}

func run(logger watermill.LoggerAdapter) error {
	cfg := config.Load()

	gateway := clients.NewPaymentGatewayClient(cfg.GatewayAddr)
	email := clients.NewEmailClient(cfg.EmailAddr)

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("failed to close redis connection", err, nil)
		}
	}()

	db, err := sqlx.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close db connection", err, nil)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := postgres.InitialiseDB(ctx, db); err != nil {
		return fmt.Errorf("initialising db: %w", err)
	}

	svc, err := service.New(cfg, logger, rdb, db, gateway, email)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	return svc.Run(ctx)
}
