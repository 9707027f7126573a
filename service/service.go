// Package service wires the checkout pipeline together: storage, lock
// coordinator, messaging and the HTTP surface, with one Run loop
// supervising all of them.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking/cache"
	"booking/config"
	"booking/expiry"
	"booking/http"
	"booking/lock"
	"booking/message"
	msgcommand "booking/message/command"
	msgevent "booking/message/event"
	"booking/order"
	"booking/postgres"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// seatLocker adapts the concrete coordinator to the orchestrator's
// Locker interface.
type seatLocker struct {
	coordinator *lock.Coordinator
}

func (l seatLocker) Acquire(ctx context.Context, seatIDs []int64, wait, hold time.Duration) (order.LockHandle, error) {
	return l.coordinator.Acquire(ctx, seatIDs, wait, hold)
}

type Service struct {
	msgRouter  *message.Router
	forwarder  *message.Forwarder
	httpRouter *echo.Echo
	sweeper    *expiry.Sweeper
	addr       string
}

func New(
	cfg config.Config,
	logger watermill.LoggerAdapter,
	redisClient *redis.Client,
	db *sqlx.DB,
	gateway order.PaymentGateway,
	email msgevent.EmailSender,
) (*Service, error) {
	orderRepo := postgres.NewOrderRepo(db, logger)
	seatRepo := postgres.NewSeatRepo(db)
	seatCache := cache.NewSeatStatus(redisClient, cfg.SeatCacheTTL)

	orchestrator := order.NewService(
		seatLocker{coordinator: lock.NewCoordinator(redisClient)},
		orderRepo,
		gateway,
		seatCache,
		cfg.LockWaitTimeout,
		cfg.LockHoldTimeout,
	)

	publisher, err := message.NewPublisher(redisClient, logger)
	if err != nil {
		return nil, err
	}

	eventBus, err := message.NewEventBus(publisher, logger)
	if err != nil {
		return nil, fmt.Errorf("creating event bus: %w", err)
	}

	commandBus, err := msgcommand.NewBus(publisher, logger)
	if err != nil {
		return nil, fmt.Errorf("creating command bus: %w", err)
	}

	msgRouter, err := message.NewRouter(message.RouterDeps{
		Logger:       logger,
		RedisClient:  redisClient,
		EventHandler: msgevent.NewHandler(orderRepo, email),
		CmdHandler:   msgcommand.NewHandler(orderRepo),
		MaxRetries:   cfg.SettlementMaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("creating message router: %w", err)
	}

	forwarder, err := message.NewForwarder(db, redisClient, logger)
	if err != nil {
		return nil, fmt.Errorf("creating forwarder: %w", err)
	}

	httpRouter := http.NewRouter(orchestrator, orderRepo, seatRepo, seatCache, eventBus, commandBus)

	return &Service{
		msgRouter:  msgRouter,
		forwarder:  forwarder,
		httpRouter: httpRouter,
		sweeper:    expiry.NewSweeper(orderRepo, cfg.OrderHoldTTL, cfg.SweepInterval),
		addr:       ":" + cfg.Port,
	}, nil
}

func (s Service) Run(ctx context.Context) error {
	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.msgRouter.Run(runCtx); err != nil {
			return fmt.Errorf("running messaging router: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		if err := s.forwarder.Run(runCtx); err != nil {
			return fmt.Errorf("running outbox forwarder: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		return s.sweeper.Run(runCtx)
	})

	g.Go(func() error {
		// Wait for message router
		<-s.msgRouter.Running()

		logrus.Info("Starting HTTP server...")
		err := s.httpRouter.Start(s.addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("starting http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-runCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		logrus.Info("Shutting down HTTP server...")
		if err := s.httpRouter.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("waiting for shutdown: %w", err)
	}
	logrus.Info("Shutdown complete.")

	return nil
}
