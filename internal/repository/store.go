package repository

import (
	"context"

	"gorm.io/gorm"
)

// GormStore is the relational Store. The same code runs on postgres in
// production and sqlite in tests.
type GormStore struct {
	db       *gorm.DB
	sessions SessionRepository
	messages MessageRepository
	groups   GroupRepository
	users    UserRepository
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:       db,
		sessions: NewSessionRepository(db),
		messages: NewMessageRepository(db),
		groups:   NewGroupRepository(db),
		users:    NewUserRepository(db),
	}
}

func (s *GormStore) Sessions() SessionRepository { return s.sessions }
func (s *GormStore) Messages() MessageRepository { return s.messages }
func (s *GormStore) Groups() GroupRepository     { return s.groups }
func (s *GormStore) Users() UserRepository       { return s.users }

func (s *GormStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
}
