package user

import (
	"time"
)

// User is the slice of the account record the chat core reads. Accounts are
// owned elsewhere; this service only writes the presence columns.
type User struct {
	ID          string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Username    string     `gorm:"type:varchar(50);uniqueIndex" json:"username"`
	DisplayName string     `gorm:"type:varchar(100)" json:"displayName,omitempty"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
	IsOnline    bool       `gorm:"not null" json:"isOnline"`
	LastSeenAt  *time.Time `json:"lastSeen,omitempty"`
	CreatedAt   time.Time  `json:"-"`
	UpdatedAt   time.Time  `json:"-"`
}

func (User) TableName() string {
	return "users"
}

// Name is the label shown to other users.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Summary is the public projection embedded in chat lists and events.
type Summary struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"displayName,omitempty"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
	IsOnline    bool       `json:"isOnline"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
}

func (u User) Summary() Summary {
	return Summary{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		IsOnline:    u.IsOnline,
		LastSeen:    u.LastSeenAt,
	}
}
