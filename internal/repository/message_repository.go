package repository

import (
	"context"
	"time"

	"pulse-chat/internal/domain/chat"
	pulse_errors "pulse-chat/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func withReceipts(db *gorm.DB) *gorm.DB {
	return db.
		Preload("ReadBy", "kind = ?", chat.ReceiptRead).
		Preload("DeliveredTo", "kind = ?", chat.ReceiptDelivered)
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m *chat.Message) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(m).Error
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id string) (chat.Message, error) {
	var m chat.Message
	err := r.db.WithContext(ctx).
		Scopes(notDeleted, withReceipts).
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		return chat.Message{}, translate(err, "Message not found")
	}
	return m, nil
}

func (r *PostgresMessageRepository) ListByChat(ctx context.Context, chatID string, page, limit int) ([]chat.Message, int64, error) {
	var messages []chat.Message
	var total int64

	q := r.db.WithContext(ctx).
		Model(&chat.Message{}).
		Scopes(notDeleted).
		Where("chat_id = ?", chatID).
		Session(&gorm.Session{})

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.
		Scopes(withReceipts, paginate(page, limit)).
		Order("created_at DESC").
		Order("id DESC").
		Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

func (r *PostgresMessageRepository) Search(ctx context.Context, chatID, query string, limit int) ([]chat.Message, error) {
	if limit < 1 {
		limit = 50
	}
	var messages []chat.Message
	err := r.db.WithContext(ctx).
		Scopes(notDeleted).
		Where("chat_id = ?", chatID).
		Scopes(matchText(query, messageSearchVector, "content")).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *PostgresMessageRepository) Latest(ctx context.Context, chatID string) (chat.Message, error) {
	var m chat.Message
	err := r.db.WithContext(ctx).
		Scopes(notDeleted).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		return chat.Message{}, translate(err, "Message not found")
	}
	return m, nil
}

func (r *PostgresMessageRepository) UnreadBy(ctx context.Context, chatID, userID string, limit int) ([]string, error) {
	if limit < 1 {
		limit = 500
	}
	read := r.db.Model(&chat.Receipt{}).
		Select("1").
		Where("message_receipts.message_id = messages.id AND message_receipts.user_id = ? AND message_receipts.kind = ?", userID, chat.ReceiptRead)

	var ids []string
	err := r.db.WithContext(ctx).
		Model(&chat.Message{}).
		Scopes(notDeleted).
		Where("chat_id = ? AND sender_id <> ?", chatID, userID).
		Where("NOT EXISTS (?)", read).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresMessageRepository) AddReceipt(ctx context.Context, rec chat.Receipt) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PostgresMessageRepository) AdvanceStatus(ctx context.Context, id string, status chat.MessageStatus) error {
	from := chat.StatusesBelow(status)
	if len(from) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&chat.Message{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", status).Error
}

func (r *PostgresMessageRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&chat.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{"is_deleted": true, "deleted_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pulse_errors.NotFound("Message not found")
	}
	return nil
}
