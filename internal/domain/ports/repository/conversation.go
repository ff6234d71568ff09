package repository

import (
	"context"

	"stellium-ask/internal/domain/model"
)

// ConversationRepository persists conversations and their turns. qx is an
// optional transaction/connection handle (pgx.Tx or *pgxpool.Conn); nil uses
// the pool.
type ConversationRepository interface {
	Save(ctx context.Context, qx any, conv *model.Conversation) error
	SaveMessage(ctx context.Context, qx any, convID string, msg *model.Message) error
	DeleteMessage(ctx context.Context, qx any, convID, msgID string) error
	FindBySubject(ctx context.Context, qx any, userID string, ct model.ContentType, contentID string) (*model.Conversation, error)
	// History returns up to limit prior turns for a subject, oldest first.
	History(ctx context.Context, qx any, ct model.ContentType, contentID string, limit int) ([]model.Message, error)
	// CleanupOld deletes conversations idle for longer than retentionDays.
	CleanupOld(ctx context.Context, retentionDays int) (int64, error)
}
