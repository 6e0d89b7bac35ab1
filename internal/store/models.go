package store

import "time"

type User struct {
	ID             uint   `gorm:"primaryKey"`
	Username       string `gorm:"uniqueIndex;not null"`
	HashedPassword string `gorm:"not null"`
	CreatedAt      time.Time
}

type Conversation struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"index"`
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message rows are append-only; they are removed only when their
// conversation is deleted.
type Message struct {
	ID             uint `gorm:"primaryKey"`
	UserID         uint `gorm:"index"`
	ConversationID uint `gorm:"index"`
	Role           string
	Content        string
	// Image holds base64-encoded attachment bytes, empty when none.
	Image     string
	CreatedAt time.Time
}
