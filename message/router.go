package message

import (
	"fmt"
	"time"

	msgcommand "booking/message/command"
	msgevent "booking/message/event"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/redis/go-redis/v9"
)

// DeadLetterTopic receives settlement messages that exhausted their
// retries. They stay there for manual reconciliation; the admin replay
// endpoint is the way back in.
const DeadLetterTopic = "settlements.dead_letter"

type RouterDeps struct {
	Logger       watermill.LoggerAdapter
	RedisClient  *redis.Client
	EventHandler msgevent.Handler
	CmdHandler   msgcommand.Handler
	MaxRetries   int
}

type Router struct {
	*message.Router
}

func NewRouter(deps RouterDeps) (*Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	poisonPublisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: deps.RedisClient,
	}, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating poison publisher: %w", err)
	}

	poisonMiddleware, err := middleware.PoisonQueue(poisonPublisher, DeadLetterTopic)
	if err != nil {
		return nil, fmt.Errorf("creating poison queue middleware: %w", err)
	}

	router.AddMiddleware(correlationIDMiddleware)
	router.AddMiddleware(loggerMiddleware)
	router.AddMiddleware(handlerLogMiddleware)
	// Poison queue sits outside Retry: a message is dead-lettered only
	// once the bounded retries are exhausted.
	router.AddMiddleware(poisonMiddleware)
	router.AddMiddleware(middleware.Retry{
		MaxRetries:      deps.MaxRetries,
		InitialInterval: time.Millisecond * 100,
		MaxInterval:     time.Second,
		Multiplier:      2,
		Logger:          deps.Logger,
	}.Middleware)

	ep, err := cqrs.NewEventProcessorWithConfig(router, msgevent.NewProcessorConfig(deps.Logger, deps.RedisClient))
	if err != nil {
		return nil, fmt.Errorf("creating event processor: %w", err)
	}

	// Settlement and email run in separate consumer groups, so a stuck
	// email collaborator cannot block payment settlement.
	eventHandlers := []cqrs.EventHandler{
		cqrs.NewEventHandler("settle-payment", deps.EventHandler.SettlePayment),
		cqrs.NewEventHandler("send-confirmation-email", deps.EventHandler.SendConfirmationEmail),
	}

	if err := ep.AddHandlers(eventHandlers...); err != nil {
		return nil, fmt.Errorf("adding event handlers: %w", err)
	}

	cp, err := cqrs.NewCommandProcessorWithConfig(router, msgcommand.NewProcessorConfig(deps.Logger, deps.RedisClient))
	if err != nil {
		return nil, fmt.Errorf("creating command processor: %w", err)
	}

	if err := cp.AddHandlers(cqrs.NewCommandHandler("replay-settlement", deps.CmdHandler.ReplaySettlement)); err != nil {
		return nil, fmt.Errorf("adding command handlers: %w", err)
	}

	return &Router{router}, nil
}
