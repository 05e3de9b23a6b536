package model

import "time"

// APISession is the single persisted Wialon session row. Keeping it in the
// database lets a restarted daemon resume polling without re-spending its
// login token.
type APISession struct {
	ID        int64     `gorm:"primaryKey"` // always 1; one upstream session per deployment
	SessionID string    `gorm:"size:128;not null"`
	BaseURL   string    `gorm:"size:256"`
	UserID    int64
	UserName  string    `gorm:"size:128"`
	Account   string    `gorm:"size:128"`
	IssuedAt  time.Time `gorm:"not null"`
	UpdatedAt time.Time
}
