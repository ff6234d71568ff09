package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"stellium-ask/internal/domain"
	"stellium-ask/internal/domain/model"
	"stellium-ask/internal/domain/ports/repository"
	red "stellium-ask/internal/infra/redis"
	"stellium-ask/internal/infra/security"
)

var _ repository.ConversationRepository = (*ConversationRepo)(nil)

// nullableTime lets the COALESCE defaults in the insert statements apply
// when the caller left a timestamp unset.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// ConversationRepo persists conversations and their turns, with optional
// encryption-at-rest of message content based on user privacy settings, and
// a Redis history cache in front of reads.
type ConversationRepo struct {
	pool  *pgxpool.Pool
	cache *red.ConversationCache
	enc   *security.EncryptionService
}

func NewConversationRepo(pool *pgxpool.Pool, cache *red.ConversationCache, enc *security.EncryptionService) *ConversationRepo {
	return &ConversationRepo{pool: pool, cache: cache, enc: enc}
}

func (r *ConversationRepo) Save(ctx context.Context, qx any, conv *model.Conversation) error {
	const q = `
INSERT INTO conversations (id, user_id, content_type, content_id, period, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,COALESCE($6,NOW()),COALESCE($7,NOW()))
ON CONFLICT (id) DO UPDATE SET
  period = EXCLUDED.period,
  updated_at = EXCLUDED.updated_at;`
	_, err := pick(r.pool, qx).Exec(ctx, q,
		conv.ID, conv.UserID, string(conv.ContentType), conv.ContentID, string(conv.Period),
		nullableTime(conv.CreatedAt), nullableTime(conv.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) SaveMessage(ctx context.Context, qx any, convID string, m *model.Message) error {
	h := pick(r.pool, qx)

	const qOwner = `
SELECT c.content_type, c.content_id, u.data_encrypted, u.allow_message_storage
FROM conversations c JOIN users u ON u.id = c.user_id
WHERE c.id = $1;`
	var ct, contentID string
	var dataEncrypted, allowStore bool
	if err := h.QueryRow(ctx, qOwner, convID).Scan(&ct, &contentID, &dataEncrypted, &allowStore); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("conversation owner lookup: %w", err)
	}
	if !allowStore {
		return nil // user declined message storage
	}

	content := m.Content
	encFlag := false
	if dataEncrypted && r.enc != nil {
		enc, err := r.enc.Encrypt(m.Content)
		if err != nil {
			return fmt.Errorf("encrypt message: %w", err)
		}
		content = enc
		encFlag = true
	}

	var selected []byte
	if len(m.SelectedElements) > 0 {
		b, err := json.Marshal(m.SelectedElements)
		if err != nil {
			return fmt.Errorf("marshal selection snapshot: %w", err)
		}
		selected = b
	}

	const q = `
INSERT INTO messages (id, conversation_id, role, content, selected_elements, encrypted, created_at)
VALUES ($1,$2,$3,$4,$5,$6,COALESCE($7,NOW()))
ON CONFLICT (id) DO NOTHING;`
	if _, err := h.Exec(ctx, q, m.ID, convID, m.Role, content, selected, encFlag, nullableTime(m.Timestamp)); err != nil {
		return fmt.Errorf("save message: %w", err)
	}

	if r.cache != nil {
		_ = r.cache.Invalidate(ctx, model.ContentType(ct), contentID)
	}
	return nil
}

func (r *ConversationRepo) DeleteMessage(ctx context.Context, qx any, convID, msgID string) error {
	const q = `DELETE FROM messages WHERE conversation_id = $1 AND id = $2;`
	if _, err := pick(r.pool, qx).Exec(ctx, q, convID, msgID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (r *ConversationRepo) FindBySubject(ctx context.Context, qx any, userID string, ct model.ContentType, contentID string) (*model.Conversation, error) {
	const q = `
SELECT id, period, created_at, updated_at
FROM conversations
WHERE user_id = $1 AND content_type = $2 AND content_id = $3
ORDER BY updated_at DESC LIMIT 1;`
	conv := model.Conversation{UserID: userID, ContentType: ct, ContentID: contentID}
	var period string
	err := pick(r.pool, qx).QueryRow(ctx, q, userID, string(ct), contentID).
		Scan(&conv.ID, &period, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	conv.Period = model.Period(period)
	if conv.Period == "" {
		conv.Period = model.PeriodDaily
	}

	msgs, err := r.History(ctx, qx, ct, contentID, 0)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	conv.Messages = msgs
	return &conv, nil
}

func (r *ConversationRepo) History(ctx context.Context, qx any, ct model.ContentType, contentID string, limit int) ([]model.Message, error) {
	if r.cache != nil && limit > 0 {
		if msgs, ok, err := r.cache.GetHistory(ctx, ct, contentID); err == nil && ok {
			if len(msgs) > limit {
				msgs = msgs[len(msgs)-limit:]
			}
			return msgs, nil
		}
	}

	q := `
SELECT m.id, m.role, m.content, m.selected_elements, m.encrypted, m.created_at
FROM messages m
JOIN conversations c ON c.id = m.conversation_id
WHERE c.content_type = $1 AND c.content_id = $2
ORDER BY m.created_at ASC`
	args := []interface{}{string(ct), contentID}
	if limit > 0 {
		// take the most recent turns, oldest first
		q = `SELECT * FROM (
SELECT m.id, m.role, m.content, m.selected_elements, m.encrypted, m.created_at
FROM messages m
JOIN conversations c ON c.id = m.conversation_id
WHERE c.content_type = $1 AND c.content_id = $2
ORDER BY m.created_at DESC LIMIT $3) sub ORDER BY created_at ASC`
		args = append(args, limit)
	}

	rows, err := pick(r.pool, qx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var selected []byte
		var encrypted bool
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &selected, &encrypted, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("history scan: %w", err)
		}
		if encrypted && r.enc != nil {
			if pt, err := r.enc.Decrypt(m.Content); err == nil {
				m.Content = pt
			}
		}
		if len(selected) > 0 {
			_ = json.Unmarshal(selected, &m.SelectedElements)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}

	if r.cache != nil && limit > 0 && len(out) > 0 {
		_ = r.cache.StoreHistory(ctx, ct, contentID, out)
	}
	return out, nil
}

func (r *ConversationRepo) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	const q = `
DELETE FROM conversations
WHERE updated_at < NOW() - ($1 || ' days')::interval;`
	tag, err := r.pool.Exec(ctx, q, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("cleanup conversations: %w", err)
	}
	return tag.RowsAffected(), nil
}
