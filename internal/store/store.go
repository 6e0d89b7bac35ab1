package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned for lookups that match no row.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to ensure db dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&User{}, &Conversation{}, &Message{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Users

func (s *Store) CreateUser(ctx context.Context, username, hashedPassword string) (*User, error) {
	user := &User{Username: username, HashedPassword: hashedPassword}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// Conversations

func (s *Store) CreateConversation(ctx context.Context, userID uint, title string) (*Conversation, error) {
	conv := &Conversation{UserID: userID, Title: title}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) TouchConversation(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).
		Model(&Conversation{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).Error; err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

func (s *Store) ListConversations(ctx context.Context, userID uint) ([]Conversation, error) {
	var convs []Conversation
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at desc").
		Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// DeleteConversation removes a conversation and its messages. Scoped to
// the owning user so one user cannot delete another's conversation.
func (s *Store) DeleteConversation(ctx context.Context, userID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ? AND user_id = ?", id, userID).
			Delete(&Message{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		if err := tx.Where("id = ? AND user_id = ?", id, userID).
			Delete(&Conversation{}).Error; err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		return nil
	})
}

func (s *Store) DeleteAllConversations(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&Message{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&Conversation{}).Error; err != nil {
			return fmt.Errorf("failed to delete conversations: %w", err)
		}
		return nil
	})
}

// PruneConversations deletes conversations (and their messages) whose
// last activity is older than the cutoff. Returns the number removed.
func (s *Store) PruneConversations(ctx context.Context, olderThan time.Time) (int64, error) {
	var pruned int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&Conversation{}).
			Where("updated_at < ?", olderThan).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("failed to select stale conversations: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("conversation_id IN ?", ids).Delete(&Message{}).Error; err != nil {
			return fmt.Errorf("failed to delete stale messages: %w", err)
		}
		res := tx.Where("id IN ?", ids).Delete(&Conversation{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete stale conversations: %w", res.Error)
		}
		pruned = res.RowsAffected
		return nil
	})
	return pruned, err
}

// Messages

func (s *Store) AppendMessage(ctx context.Context, msg *Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// RecentMessages returns the trailing window for a conversation, oldest
// to newest, ready for prompt construction.
func (s *Store) RecentMessages(ctx context.Context, userID, conversationID uint, limit int) ([]Message, error) {
	var msgs []Message
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		Order("id desc").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to get recent messages: %w", err)
	}
	// reverse into chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListUserMessages is the fallback history view when no conversation is
// selected: the user's earliest messages up to limit, oldest first.
func (s *Store) ListUserMessages(ctx context.Context, userID uint, limit int) ([]Message, error) {
	var msgs []Message
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id asc").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list user messages: %w", err)
	}
	return msgs, nil
}

func (s *Store) ListMessages(ctx context.Context, userID, conversationID uint) ([]Message, error) {
	var msgs []Message
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		Order("id asc").
		Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}
