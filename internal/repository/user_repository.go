package repository

import (
	"context"
	"time"

	"pulse-chat/internal/domain/user"
	pulse_errors "pulse-chat/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		return user.User{}, translate(err, "User not found")
	}
	return u, nil
}

func (r *PostgresUserRepository) GetByIDs(ctx context.Context, ids []string) ([]user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []user.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *PostgresUserRepository) Save(ctx context.Context, u *user.User) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "display_name", "avatar_url", "updated_at"}),
		}).
		Create(u).Error
}

func (r *PostgresUserRepository) SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&user.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_online": online, "last_seen_at": lastSeen})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pulse_errors.NotFound("User not found")
	}
	return nil
}
