package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation wraps all field-level rejections raised before a row is written.
var ErrValidation = errors.New("invalid message")

// Direction fixes which side of the relay a message belongs to. It is set at
// creation and never changes.
type Direction string

const (
	DirectionInbox  Direction = "inbox"
	DirectionOutbox Direction = "outbox"
)

// MessageType categorizes the payload.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeTask  MessageType = "task"
	TypeQuery MessageType = "query"
)

// Priority influences the order in which pending outbox messages are retried.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Status is the lifecycle state of a message. Inbox rows are fixed at
// StatusReceived; outbox rows move along the transition table below.
type Status string

const (
	StatusReceived Status = "received"
	StatusPending  Status = "pending"
	StatusSent     Status = "sent"
	StatusFailed   Status = "failed"
)

type Message struct {
	ID           string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Sender       string      `gorm:"type:varchar(128);index;not null" json:"sender"`
	Content      string      `gorm:"type:text;not null" json:"content"`
	MessageType  MessageType `gorm:"type:varchar(20);not null;default:text" json:"message_type"`
	Priority     Priority    `gorm:"type:varchar(20);not null;default:normal" json:"priority"`
	ContextID    string      `gorm:"type:varchar(128);index" json:"context_id,omitempty"`
	Direction    Direction   `gorm:"type:varchar(10);not null;index:idx_outbox_retry,priority:1" json:"direction"`
	Status       Status      `gorm:"type:varchar(20);not null;index:idx_outbox_retry,priority:2" json:"status"`
	RetryCount   int         `gorm:"not null;default:0;index:idx_outbox_retry,priority:3" json:"retry_count"`
	LastRetryAt  *time.Time  `json:"last_retry_at,omitempty"`
	ErrorMessage *string     `json:"error_message,omitempty"`
	CreatedAt    time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

// Validate checks required fields, enum values and the direction/status pairing
// before the row reaches the store.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if m.Sender == "" {
		return fmt.Errorf("%w: sender is required", ErrValidation)
	}
	if m.Content == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	switch m.MessageType {
	case TypeText, TypeTask, TypeQuery:
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrValidation, m.MessageType)
	}
	switch m.Priority {
	case PriorityNormal, PriorityHigh, PriorityUrgent:
	default:
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, m.Priority)
	}
	switch m.Direction {
	case DirectionInbox:
		if m.Status != StatusReceived {
			return fmt.Errorf("%w: inbox messages must start as %q, got %q", ErrValidation, StatusReceived, m.Status)
		}
	case DirectionOutbox:
		switch m.Status {
		case StatusPending, StatusSent, StatusFailed:
		default:
			return fmt.Errorf("%w: illegal outbox status %q", ErrValidation, m.Status)
		}
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrValidation, m.Direction)
	}
	return nil
}

// outboxTransitions is the exhaustive legal transition table for outbox rows.
// Nothing moves out of sent; failed may be re-written with a fresh error.
var outboxTransitions = map[Status]map[Status]bool{
	StatusPending: {StatusSent: true, StatusFailed: true},
	StatusFailed:  {StatusSent: true, StatusFailed: true},
}

// CanTransition reports whether an outbox row may move from one status to
// another. Same-status writes to sent are handled as idempotent no-ops by the
// repository and are not part of this table.
func CanTransition(from, to Status) bool {
	return outboxTransitions[from][to]
}

// PriorityRank orders priorities for retry selection: urgent before high
// before normal. The string values themselves do not sort correctly.
func PriorityRank(p Priority) int {
	switch p {
	case PriorityUrgent:
		return 2
	case PriorityHigh:
		return 1
	default:
		return 0
	}
}
