package transaction

import (
	"context"
	"strings"

	domain "github.com/BruksfildServices01/marketplace-exchange/internal/domain/transaction"
	"github.com/BruksfildServices01/marketplace-exchange/internal/events"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
)

// The conversation never takes the transaction lock, so it keeps working
// while a decision or capture is in flight.

type MessageInput struct {
	TransactionID string
	SenderID      uint
	Content       string
}

type AppendMessage struct {
	*Deps
}

func NewAppendMessage(deps *Deps) *AppendMessage {
	return &AppendMessage{Deps: deps}
}

func (uc *AppendMessage) Execute(ctx context.Context, in MessageInput) (*models.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, domain.ErrValidation("empty_message", "Message cannot be empty")
	}

	tx, err := uc.load(ctx, in.TransactionID)
	if err != nil {
		return nil, err
	}
	if !tx.IsParty(in.SenderID) {
		return nil, domain.ErrUnauthorized("you are not part of this conversation")
	}

	msg := &models.Message{
		TransactionID: tx.ID,
		SenderID:      in.SenderID,
		Content:       content,
		CreatedAt:     uc.now(),
	}
	if err := uc.Transactions.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	uc.emit(tx, events.KindMessage, in.SenderID, map[string]any{"content": content})
	return msg, nil
}

type SeenInput struct {
	TransactionID string
	PersonID      uint
}

type MarkSeen struct {
	*Deps
}

func NewMarkSeen(deps *Deps) *MarkSeen {
	return &MarkSeen{Deps: deps}
}

func (uc *MarkSeen) Execute(ctx context.Context, in SeenInput) error {
	tx, err := uc.load(ctx, in.TransactionID)
	if err != nil {
		return err
	}
	if !tx.IsParty(in.PersonID) {
		return domain.ErrUnauthorized("you are not part of this conversation")
	}
	return uc.Transactions.MarkSeen(ctx, tx.ID, in.PersonID, uc.now())
}
