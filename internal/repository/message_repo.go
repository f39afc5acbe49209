package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pairelay/internal/model"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when an id does not exist (or is not an outbox
	// row for outbox-only operations). Callers decide whether to log or fail.
	ErrNotFound = errors.New("message not found")
	// ErrDuplicateID is returned when an insert collides on the primary key.
	ErrDuplicateID = errors.New("message id already exists")
	// ErrIllegalTransition is returned when a status update violates the
	// outbox transition table.
	ErrIllegalTransition = errors.New("illegal status transition")
)

// prioritySQL maps the priority enum to its rank so that pending selection
// orders urgent > high > normal. Lexicographic ordering would misplace high.
const prioritySQL = "CASE priority WHEN 'urgent' THEN 2 WHEN 'high' THEN 1 ELSE 0 END DESC"

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create validates and durably inserts a new message row.
func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).Create(msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, msg.ID)
		}
		return err
	}
	return nil
}

// UpdateStatus applies a transition to an outbox row. The transition table is
// enforced here, at the write boundary, rather than trusted to callers.
// A repeated write of sent is an idempotent no-op. errMsg is recorded on
// failure transitions and cleared when the message is marked sent.
func (r *MessageRepository) UpdateStatus(ctx context.Context, id string, status model.Status, errMsg string) error {
	current, err := r.getOutbox(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == model.StatusSent && status == model.StatusSent {
		return nil
	}
	if !model.CanTransition(current.Status, status) {
		return fmt.Errorf("%w: %s -> %s (id=%s)", ErrIllegalTransition, current.Status, status, id)
	}

	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if status == model.StatusSent {
		updates["error_message"] = nil
	} else {
		updates["error_message"] = errMsg
	}

	res := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ? AND direction = ?", id, model.DirectionOutbox).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// IncrementRetry bumps the retry counter and stamps last_retry_at. Called
// immediately before a retry delivery attempt.
func (r *MessageRepository) IncrementRetry(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ? AND direction = ?", id, model.DirectionOutbox).
		Updates(map[string]interface{}{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_retry_at": now,
			"updated_at":    now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// GetPending returns every outbox row still eligible for delivery, ordered by
// priority rank descending then creation time ascending. Rows at or past
// maxRetries are permanently excluded.
func (r *MessageRepository) GetPending(ctx context.Context, maxRetries int) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.WithContext(ctx).
		Where("direction = ? AND status IN ? AND retry_count < ?",
			model.DirectionOutbox,
			[]model.Status{model.StatusPending, model.StatusFailed},
			maxRetries).
		Order(prioritySQL).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

// GetByID fetches a single message in either direction.
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &msg, nil
}

// GetHistory lists messages newest first with optional sender and direction
// filters.
func (r *MessageRepository) GetHistory(ctx context.Context, limit int, sender string, direction model.Direction) ([]*model.Message, error) {
	q := r.db.WithContext(ctx).Model(&model.Message{})
	if sender != "" {
		q = q.Where("sender = ?", sender)
	}
	if direction != "" {
		q = q.Where("direction = ?", direction)
	}

	var messages []*model.Message
	err := q.Order("created_at DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

func (r *MessageRepository) getOutbox(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).
		Where("id = ? AND direction = ?", id, model.DirectionOutbox).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &msg, nil
}
