package repository

import (
	"context"
	"time"

	"pulse-chat/internal/domain/chat"
	pulse_errors "pulse-chat/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresSessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &PostgresSessionRepository{db: db}
}

func (r *PostgresSessionRepository) Create(ctx context.Context, s *chat.Session) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(s).Error; err != nil {
			if isUniqueViolation(err) {
				return pulse_errors.Conflict("Chat already exists")
			}
			return err
		}
		return insertMembership(tx, s)
	})
}

func (r *PostgresSessionRepository) UpsertPrivate(ctx context.Context, s *chat.Session) (chat.Session, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "chat_id"}}, DoNothing: true}).
			Create(s).Error
		if err != nil {
			return err
		}
		// participants of a private chat are fixed by its id, so re-inserting them is harmless
		return insertMembership(tx, s)
	})
	if err != nil {
		return chat.Session{}, err
	}
	return r.GetByChatID(ctx, s.ChatID)
}

func insertMembership(tx *gorm.DB, s *chat.Session) error {
	if len(s.Participants) == 0 {
		return nil
	}
	participants := make([]chat.Participant, len(s.Participants))
	counts := make([]chat.UnreadCount, len(s.Participants))
	for i, p := range s.Participants {
		p.ChatID = s.ChatID
		participants[i] = p
		counts[i] = chat.UnreadCount{ChatID: s.ChatID, UserID: p.UserID, Count: s.UnreadFor(p.UserID)}
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&participants).Error; err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&counts).Error
}

func (r *PostgresSessionRepository) GetByChatID(ctx context.Context, chatID string) (chat.Session, error) {
	var s chat.Session
	err := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("joined_at ASC") }).
		Preload("UnreadCounts").
		Where("chat_id = ?", chatID).
		First(&s).Error
	if err != nil {
		return chat.Session{}, translate(err, "Chat not found")
	}
	return s, nil
}

func (r *PostgresSessionRepository) ListForUser(ctx context.Context, userID string, includeArchived bool) ([]chat.Session, error) {
	var sessions []chat.Session

	subQuery := r.db.Model(&chat.Participant{}).
		Select("chat_id").
		Where("user_id = ?", userID)

	q := r.db.WithContext(ctx).
		Model(&chat.Session{}).
		Where("chat_id IN (?)", subQuery)
	if !includeArchived {
		q = q.Where("is_archived = ?", false)
	}

	err := q.
		Preload("Participants").
		Preload("UnreadCounts").
		Order("is_pinned DESC").
		Order("last_activity DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *PostgresSessionRepository) AddParticipant(ctx context.Context, chatID string, p chat.Participant) (bool, error) {
	added := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&chat.Session{}).Where("chat_id = ?", chatID).Update("last_activity", p.JoinedAt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return pulse_errors.NotFound("Chat not found")
		}

		p.ChatID = chatID
		res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&p)
		if res.Error != nil {
			return res.Error
		}
		added = res.RowsAffected > 0
		if !added {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&chat.UnreadCount{ChatID: chatID, UserID: p.UserID}).Error
	})
	return added, err
}

func (r *PostgresSessionRepository) RemoveParticipant(ctx context.Context, chatID, userID string, at time.Time) (bool, error) {
	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("chat_id = ? AND user_id = ?", chatID, userID).Delete(&chat.Participant{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected > 0
		if !removed {
			return nil
		}
		if err := tx.Where("chat_id = ? AND user_id = ?", chatID, userID).Delete(&chat.UnreadCount{}).Error; err != nil {
			return err
		}
		return tx.Model(&chat.Session{}).Where("chat_id = ?", chatID).Update("last_activity", at).Error
	})
	return removed, err
}

func (r *PostgresSessionRepository) SetParticipantRole(ctx context.Context, chatID, userID string, role chat.Role) error {
	res := r.db.WithContext(ctx).
		Model(&chat.Participant{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pulse_errors.NotFound("Participant not found")
	}
	return nil
}

func (r *PostgresSessionRepository) UpdateLastMessage(ctx context.Context, chatID string, snapshot chat.LastMessage, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&chat.Session{}).
		Where("chat_id = ?", chatID).
		Updates(map[string]interface{}{
			"last_message_id":        snapshot.ID,
			"last_message_content":   snapshot.Content,
			"last_message_type":      snapshot.Type,
			"last_message_sender_id": snapshot.SenderID,
			"last_message_at":        snapshot.At,
			"last_activity":          at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pulse_errors.NotFound("Chat not found")
	}
	return nil
}

func (r *PostgresSessionRepository) IncrementUnread(ctx context.Context, chatID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := make([]chat.UnreadCount, len(userIDs))
		for i, id := range userIDs {
			seed[i] = chat.UnreadCount{ChatID: chatID, UserID: id}
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}
		return tx.Model(&chat.UnreadCount{}).
			Where("chat_id = ? AND user_id IN ?", chatID, userIDs).
			UpdateColumn("count", gorm.Expr("count + ?", 1)).Error
	})
}

func (r *PostgresSessionRepository) ClearUnread(ctx context.Context, chatID, userID string) error {
	return r.db.WithContext(ctx).
		Model(&chat.UnreadCount{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		UpdateColumn("count", 0).Error
}

func (r *PostgresSessionRepository) UpdateFlags(ctx context.Context, chatID string, flags SessionFlags) error {
	updates := map[string]interface{}{}
	if flags.IsPinned != nil {
		updates["is_pinned"] = *flags.IsPinned
	}
	if flags.IsMuted != nil {
		updates["is_muted"] = *flags.IsMuted
	}
	if flags.IsArchived != nil {
		updates["is_archived"] = *flags.IsArchived
	}
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&chat.Session{}).Where("chat_id = ?", chatID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pulse_errors.NotFound("Chat not found")
	}
	return nil
}

func (r *PostgresSessionRepository) UpdateGroupProfile(ctx context.Context, chatID string, g *chat.Group) error {
	return r.db.WithContext(ctx).
		Model(&chat.Session{}).
		Where("chat_id = ?", chatID).
		Updates(map[string]interface{}{
			"name":              g.Name,
			"avatar_url":        g.AvatarURL,
			"description":       g.Description,
			"group_max_members": g.MaxMembers,
			"group_is_public":   g.Type == chat.GroupPublic,
			"group_invite_code": g.InviteCode,
		}).Error
}
