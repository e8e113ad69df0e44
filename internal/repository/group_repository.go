package repository

import (
	"context"
	"time"

	"pulse-chat/internal/domain/chat"
	pulse_errors "pulse-chat/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresGroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &PostgresGroupRepository{db: db}
}

func membersByJoin(db *gorm.DB) *gorm.DB {
	return db.Order("joined_at ASC")
}

func (r *PostgresGroupRepository) Create(ctx context.Context, g *chat.Group) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(g).Error; err != nil {
			if isUniqueViolation(err) {
				return pulse_errors.Conflict("Group already exists")
			}
			return err
		}
		if len(g.Members) == 0 {
			return nil
		}
		for i := range g.Members {
			g.Members[i].GroupID = g.ID
		}
		return tx.Create(&g.Members).Error
	})
}

func (r *PostgresGroupRepository) GetByID(ctx context.Context, id string) (chat.Group, error) {
	var g chat.Group
	err := r.db.WithContext(ctx).
		Preload("Members", membersByJoin).
		Where("id = ?", id).
		First(&g).Error
	if err != nil {
		return chat.Group{}, translate(err, "Group not found")
	}
	return g, nil
}

func (r *PostgresGroupRepository) GetByIDForUpdate(ctx context.Context, id string) (chat.Group, error) {
	var g chat.Group
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&g).Error
	if err != nil {
		return chat.Group{}, translate(err, "Group not found")
	}
	if err := r.db.WithContext(ctx).Scopes(membersByJoin).Where("group_id = ?", id).Find(&g.Members).Error; err != nil {
		return chat.Group{}, err
	}
	return g, nil
}

func (r *PostgresGroupRepository) GetByInviteCode(ctx context.Context, code string) (chat.Group, error) {
	var g chat.Group
	err := r.db.WithContext(ctx).
		Preload("Members", membersByJoin).
		Where("invite_code = ?", code).
		First(&g).Error
	if err != nil {
		return chat.Group{}, translate(err, "Invalid invite code")
	}
	return g, nil
}

func (r *PostgresGroupRepository) ListForUser(ctx context.Context, userID string) ([]chat.Group, error) {
	var groups []chat.Group

	subQuery := r.db.Model(&chat.Member{}).
		Select("group_id").
		Where("user_id = ? AND is_active = ?", userID, true)

	err := r.db.WithContext(ctx).
		Preload("Members", membersByJoin).
		Where("id IN (?)", subQuery).
		Order("updated_at DESC").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *PostgresGroupRepository) Search(ctx context.Context, q GroupQuery) ([]chat.Group, int64, error) {
	var groups []chat.Group
	var total int64

	db := r.db.WithContext(ctx).
		Model(&chat.Group{}).
		Where("type = ?", chat.GroupPublic)
	if q.Text != "" {
		db = matchText(q.Text, groupSearchVector, "name", "description")(db)
	}
	if q.Category != "" {
		db = db.Where("category = ?", q.Category)
	}
	if q.Tag != "" {
		// tags are stored as a JSON array of strings
		db = db.Where("tags LIKE ? ESCAPE '\\'", "%\""+likeEscaper.Replace(q.Tag)+"\"%")
	}
	db = db.Session(&gorm.Session{})

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.
		Preload("Members", membersByJoin).
		Scopes(paginate(q.Page, q.Limit)).
		Order("message_count DESC").
		Order("created_at DESC").
		Find(&groups).Error
	if err != nil {
		return nil, 0, err
	}
	return groups, total, nil
}

func (r *PostgresGroupRepository) UpdateProfile(ctx context.Context, g *chat.Group) error {
	g.UpdatedAt = time.Now()
	res := r.db.WithContext(ctx).
		Model(g).
		Select(
			"name", "description", "avatar_url", "type", "max_members", "tags", "category",
			"setting_allow_member_invite", "setting_allow_member_view", "setting_allow_member_message",
			"setting_allow_member_media", "setting_allow_member_edit", "setting_require_approval",
			"setting_enable_moderation", "updated_at",
		).
		Updates(g)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pulse_errors.NotFound("Group not found")
	}
	return nil
}

func (r *PostgresGroupRepository) UpdateInviteCode(ctx context.Context, groupID, code, link string) error {
	res := r.db.WithContext(ctx).
		Model(&chat.Group{}).
		Where("id = ?", groupID).
		Updates(map[string]interface{}{"invite_code": code, "invite_link": link})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return pulse_errors.Conflict("Invite code already in use")
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pulse_errors.NotFound("Group not found")
	}
	return nil
}

func (r *PostgresGroupRepository) UpsertMember(ctx context.Context, m chat.Member) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "joined_at", "last_seen", "is_active"}),
		}).
		Create(&m).Error
}

func (r *PostgresGroupRepository) DeactivateMember(ctx context.Context, groupID, userID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&chat.Member{}).
		Where("group_id = ? AND user_id = ? AND is_active = ? AND role <> ?", groupID, userID, true, chat.RoleCreator).
		Update("is_active", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PostgresGroupRepository) UpdateMemberRole(ctx context.Context, groupID, userID string, role chat.Role) error {
	res := r.db.WithContext(ctx).
		Model(&chat.Member{}).
		Where("group_id = ? AND user_id = ? AND is_active = ?", groupID, userID, true).
		Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pulse_errors.NotFound("User is not a member of this group")
	}
	return nil
}

func (r *PostgresGroupRepository) TouchMember(ctx context.Context, groupID, userID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&chat.Member{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Update("last_seen", at).Error
}

func (r *PostgresGroupRepository) IncrementMessageCount(ctx context.Context, groupID string) error {
	return r.db.WithContext(ctx).
		Model(&chat.Group{}).
		Where("id = ?", groupID).
		UpdateColumn("message_count", gorm.Expr("message_count + ?", 1)).Error
}
