package repository

import (
	"pulse-chat/internal/domain/chat"
	"pulse-chat/internal/domain/user"

	"gorm.io/gorm"
)

// Models lists every table owned by the conversation store.
func Models() []any {
	return []any{
		&user.User{},
		&chat.Session{},
		&chat.Participant{},
		&chat.UnreadCount{},
		&chat.Message{},
		&chat.Receipt{},
		&chat.Group{},
		&chat.Member{},
	}
}

// AutoMigrate creates or updates the schema from the models. Production
// deployments use the SQL migrations run by cmd/migrate instead.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
