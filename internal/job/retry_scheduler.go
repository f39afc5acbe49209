package job

import (
	"context"
	"time"

	"pairelay/internal/client"
	"pairelay/internal/config"
	"pairelay/internal/model"
	"pairelay/internal/repository"

	"github.com/rs/zerolog"
)

// Deliverer performs one delivery attempt for a payload.
type Deliverer interface {
	AttemptDelivery(ctx context.Context, payload client.Payload) client.Outcome
}

// RetryScheduler periodically re-attempts delivery of eligible outbox
// messages. A single logical worker processes each cycle's snapshot
// sequentially so priority ordering holds within a cycle.
type RetryScheduler struct {
	repo       *repository.MessageRepository
	deliverer  Deliverer
	logger     zerolog.Logger
	stopCh     chan struct{}
	interval   time.Duration
	maxRetries int
}

func NewRetryScheduler(repo *repository.MessageRepository, deliverer Deliverer, cfg *config.RetryConfig, logger zerolog.Logger) *RetryScheduler {
	return &RetryScheduler{
		repo:       repo,
		deliverer:  deliverer,
		logger:     logger.With().Str("component", "retry_scheduler").Logger(),
		stopCh:     make(chan struct{}),
		interval:   cfg.Interval(),
		maxRetries: cfg.MaxRetries,
	}
}

// Start runs the retry loop until the context is cancelled or Stop is called.
func (s *RetryScheduler) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Int("max_retries", s.maxRetries).Msg("retry scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("retry scheduler stopped: context cancelled")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("retry scheduler stopped")
			return
		case <-ticker.C:
			s.processCycle(ctx)
		}
	}
}

// Stop signals the loop to exit. An in-flight delivery attempt completes;
// remaining messages in the cycle are skipped.
func (s *RetryScheduler) Stop() {
	close(s.stopCh)
}

// processCycle runs one wake cycle. Errors are logged and swallowed so a bad
// message or a transient store failure never kills the loop.
func (s *RetryScheduler) processCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("retry cycle panicked")
		}
	}()

	messages, err := s.repo.GetPending(ctx, s.maxRetries)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to query retry queue")
		return
	}
	if len(messages) == 0 {
		s.logger.Debug().Msg("retry queue empty")
		return
	}

	s.logger.Info().Int("count", len(messages)).Msg("processing retry queue")

	for _, msg := range messages {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}
		s.retryMessage(ctx, msg)
	}
}

func (s *RetryScheduler) retryMessage(ctx context.Context, msg *model.Message) {
	attempt := msg.RetryCount + 1
	s.logger.Debug().Str("id", msg.ID).Int("attempt", attempt).Int("max", s.maxRetries).Msg("retrying message")

	if err := s.repo.IncrementRetry(ctx, msg.ID); err != nil {
		s.logger.Warn().Err(err).Str("id", msg.ID).Msg("failed to increment retry count")
		return
	}

	outcome := s.deliverer.AttemptDelivery(ctx, client.Payload{
		Sender:      msg.Sender,
		Content:     msg.Content,
		Priority:    msg.Priority,
		MessageType: msg.MessageType,
		ContextID:   msg.ContextID,
	})

	switch {
	case outcome.Delivered():
		if err := s.repo.UpdateStatus(ctx, msg.ID, model.StatusSent, ""); err != nil {
			s.logger.Warn().Err(err).Str("id", msg.ID).Msg("failed to mark message sent")
			return
		}
		s.logger.Info().Str("id", msg.ID).Int("attempt", attempt).Msg("retry successful")

	case outcome.Kind == client.OutcomeResolutionFailed:
		s.logger.Warn().Str("id", msg.ID).Str("reason", outcome.Reason).Msg("retry failed at resolution")
		if attempt >= s.maxRetries {
			s.markExhausted(ctx, msg.ID, outcome.Reason)
		}

	default:
		s.logger.Warn().Str("id", msg.ID).Int("attempt", attempt).Str("reason", outcome.Reason).Msg("retry failed")
		if attempt >= s.maxRetries {
			s.markExhausted(ctx, msg.ID, "Max retries exceeded: "+outcome.Reason)
		}
	}
}

func (s *RetryScheduler) markExhausted(ctx context.Context, id, reason string) {
	if err := s.repo.UpdateStatus(ctx, id, model.StatusFailed, reason); err != nil {
		s.logger.Warn().Err(err).Str("id", id).Msg("failed to mark message failed")
		return
	}
	s.logger.Error().Str("id", id).Int("retries", s.maxRetries).Msg("message permanently failed")
}
