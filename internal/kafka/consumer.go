package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"github.com/diffduel/internal/config"
	"github.com/diffduel/internal/domain"
	"github.com/diffduel/internal/protocol"
)

// Dispatcher receives the score submissions read from Kafka
type Dispatcher interface {
	Dispatch(ctx context.Context, ev protocol.Event) error
}

// Consumer consumes score submissions from Kafka and feeds them to the
// event router
type Consumer struct {
	config        *config.KafkaConfig
	dispatcher    Dispatcher
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, dispatcher Dispatcher, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		dispatcher:    dispatcher,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				dispatcher: c.dispatcher,
				logger:     c.logger,
				ready:      c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	<-c.ready
	c.logger.Info("Kafka consumer ready")

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	ready      chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	if h.ready != nil {
		close(h.ready)
	}
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim forwards every valid submission of a partition to the router.
// Malformed messages are logged and skipped.
//
// A message is marked once Dispatch has queued it on the router, before the
// router has handled it. Submissions still queued when the process stops are
// lost, so delivery is at most once past that point.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			ev, err := ScoreEvent(message.Value)
			if err != nil {
				h.logger.Warn("invalid score submission",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			if err := h.dispatcher.Dispatch(session.Context(), ev); err != nil {
				// not marked, the submission is redelivered to the next session
				return nil
			}
			session.MarkMessage(message, "")
		}
	}
}

// ScoreEvent turns a Kafka message into a submit-score event
func ScoreEvent(value []byte) (protocol.Event, error) {
	var submission protocol.SubmitScorePayload
	if err := json.Unmarshal(value, &submission); err != nil {
		return protocol.Event{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if submission.GameID == "" || submission.Score.Username == "" {
		return protocol.Event{}, fmt.Errorf("%w: game id and username are required", domain.ErrInvalidPayload)
	}
	if err := submission.Mode.Validate(); err != nil {
		return protocol.Event{}, err
	}
	return protocol.NewEvent(protocol.EventSubmitScore, "", submission)
}
