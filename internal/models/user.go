package models

import (
	"strconv"
	"time"
)

// UserID is the internal row id of a user. TelegramID is the external chat
// identity. The two are never interchangeable; repository.ResolveUserID is the
// only conversion between them.
type UserID uint

type TelegramID int64

func (id TelegramID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

type User struct {
	ID         UserID     `gorm:"primaryKey"`
	TelegramID TelegramID `gorm:"uniqueIndex;not null"`
	Username   string     `gorm:"size:255"`
	FirstName  string     `gorm:"size:255"`
	LastName   string     `gorm:"size:255"`
	IsPremium  bool       `gorm:"not null;default:false"`
	TestUsed   bool       `gorm:"not null;default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DisplayName prefers the first name, then the username, then the chat id.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return u.TelegramID.String()
	}
}

// Profile is what the presentation layer knows about a chat user.
type Profile struct {
	TelegramID TelegramID
	Username   string
	FirstName  string
	LastName   string
}
