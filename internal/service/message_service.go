package service

import (
	"context"

	"pairelay/internal/client"
	"pairelay/internal/config"
	"pairelay/internal/model"
	"pairelay/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Deliverer performs one delivery attempt for a payload.
type Deliverer interface {
	AttemptDelivery(ctx context.Context, payload client.Payload) client.Outcome
}

// MessageService orchestrates message persistence and the immediate delivery
// attempt for sends. Retries past the first attempt belong to the scheduler.
type MessageService struct {
	repo      *repository.MessageRepository
	deliverer Deliverer
	cfg       *config.Config
	logger    zerolog.Logger
}

func NewMessageService(repo *repository.MessageRepository, deliverer Deliverer, cfg *config.Config, logger zerolog.Logger) *MessageService {
	return &MessageService{
		repo:      repo,
		deliverer: deliverer,
		cfg:       cfg,
		logger:    logger.With().Str("component", "message_service").Logger(),
	}
}

type SendRequest struct {
	Content     string
	Priority    model.Priority
	MessageType model.MessageType
	ContextID   string
}

// Send persists an outbox row and performs one immediate delivery attempt.
// The returned message is the acknowledgment: delivery success or failure is
// observable through later history queries, not through this call.
func (s *MessageService) Send(ctx context.Context, req SendRequest) (*model.Message, error) {
	if req.Priority == "" {
		req.Priority = model.PriorityNormal
	}
	if req.MessageType == "" {
		req.MessageType = model.TypeText
	}

	msg := &model.Message{
		ID:          uuid.NewString(),
		Sender:      s.cfg.System.Name,
		Content:     req.Content,
		MessageType: req.MessageType,
		Priority:    req.Priority,
		ContextID:   req.ContextID,
		Direction:   model.DirectionOutbox,
		Status:      model.StatusPending,
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, err
	}

	outcome := s.deliverer.AttemptDelivery(ctx, client.Payload{
		Sender:      msg.Sender,
		Content:     msg.Content,
		Priority:    msg.Priority,
		MessageType: msg.MessageType,
		ContextID:   msg.ContextID,
	})
	if outcome.Delivered() {
		if err := s.repo.UpdateStatus(ctx, msg.ID, model.StatusSent, ""); err != nil {
			s.logger.Warn().Err(err).Str("id", msg.ID).Msg("failed to mark message sent")
		} else {
			s.logger.Info().Str("id", msg.ID).Msg("message delivered on first attempt")
		}
		return msg, nil
	}

	// Non-terminal failure: the row stays eligible and the scheduler takes
	// over. Only the error text is recorded.
	s.logger.Warn().Str("id", msg.ID).Str("reason", outcome.Reason).Msg("immediate delivery failed, queued for retry")
	if err := s.repo.UpdateStatus(ctx, msg.ID, model.StatusFailed, outcome.Reason); err != nil {
		s.logger.Warn().Err(err).Str("id", msg.ID).Msg("failed to record delivery error")
	}
	return msg, nil
}

type ReceiveRequest struct {
	Sender      string
	Content     string
	Priority    model.Priority
	MessageType model.MessageType
	ContextID   string
}

// Receive stores an inbound message. Inbox rows are write-once.
func (s *MessageService) Receive(ctx context.Context, req ReceiveRequest) (*model.Message, error) {
	if req.Priority == "" {
		req.Priority = model.PriorityNormal
	}
	if req.MessageType == "" {
		req.MessageType = model.TypeText
	}

	msg := &model.Message{
		ID:          uuid.NewString(),
		Sender:      req.Sender,
		Content:     req.Content,
		MessageType: req.MessageType,
		Priority:    req.Priority,
		ContextID:   req.ContextID,
		Direction:   model.DirectionInbox,
		Status:      model.StatusReceived,
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.logger.Info().Str("id", msg.ID).Str("sender", msg.Sender).Str("type", string(msg.MessageType)).Msg("message received")
	return msg, nil
}

// History lists stored messages newest first with optional filters.
func (s *MessageService) History(ctx context.Context, limit int, sender string, direction model.Direction) ([]*model.Message, error) {
	return s.repo.GetHistory(ctx, limit, sender, direction)
}

// Get returns a single message by id.
func (s *MessageService) Get(ctx context.Context, id string) (*model.Message, error) {
	return s.repo.GetByID(ctx, id)
}
