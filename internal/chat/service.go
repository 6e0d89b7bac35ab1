package chat

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"askgpt/internal/intent"
	"askgpt/internal/llm"
	"askgpt/internal/router"
	"askgpt/internal/store"
)

// historyWindow is how many trailing messages feed prompt construction.
const historyWindow = 10

// titleLimit is how much of the first message becomes the conversation
// title.
const titleLimit = 30

// Turn is one user interaction; it lives for one request.
type Turn struct {
	Message        string
	Image          string
	ConversationID *uint
}

// Envelope is the uniform response consumed by the HTTP layer.
type Envelope struct {
	Response       string  `json:"response"`
	ModelUsed      string  `json:"model_used"`
	Intent         string  `json:"intent"`
	Image          *string `json:"image"`
	ConversationID *uint   `json:"conversation_id"`
}

type Classifier interface {
	Classify(ctx context.Context, message string, hasImage bool) intent.Intent
}

type Dispatcher interface {
	Dispatch(ctx context.Context, it intent.Intent, message, image string, history []llm.Message) router.Result
}

type Repository interface {
	CreateConversation(ctx context.Context, userID uint, title string) (*store.Conversation, error)
	RecentMessages(ctx context.Context, userID, conversationID uint, limit int) ([]store.Message, error)
	AppendMessage(ctx context.Context, msg *store.Message) error
	TouchConversation(ctx context.Context, id uint) error
}

// Window is the optional hot cache of a conversation's trailing
// messages. A nil Window means every read goes to the Repository.
// Reads are scoped by owner, same as Repository reads.
type Window interface {
	Append(ctx context.Context, msg store.Message) error
	Recent(ctx context.Context, userID, conversationID uint, limit int) ([]store.Message, error)
}

// Service assembles one chat turn: conversation bookkeeping, intent
// classification, capability dispatch, and best-effort persistence.
type Service struct {
	repo       Repository
	window     Window
	classifier Classifier
	dispatcher Dispatcher

	persistTimeout time.Duration
	log            *zap.Logger
}

func NewService(repo Repository, window Window, classifier Classifier, dispatcher Dispatcher, persistTimeout time.Duration, log *zap.Logger) *Service {
	return &Service{
		repo:           repo,
		window:         window,
		classifier:     classifier,
		dispatcher:     dispatcher,
		persistTimeout: persistTimeout,
		log:            log,
	}
}

// HandleTurn never fails: classification and dispatch recover internally,
// and persistence problems are logged without altering the computed
// response. user is nil for anonymous callers, who get no persistence
// and no conversation id.
func (s *Service) HandleTurn(ctx context.Context, user *store.User, turn Turn) Envelope {
	conversationID := turn.ConversationID

	// A new conversation is created before dispatch so its id is
	// available for both history reads and the final envelope.
	if user != nil && conversationID == nil {
		conv, err := s.repo.CreateConversation(ctx, user.ID, conversationTitle(turn.Message))
		if err != nil {
			s.log.Error("failed to create conversation", zap.Error(err))
		} else {
			conversationID = &conv.ID
		}
	}

	var history []llm.Message
	if user != nil && conversationID != nil {
		history = s.recentHistory(ctx, user.ID, *conversationID)
	}

	it := s.classifier.Classify(ctx, turn.Message, turn.Image != "")
	result := s.dispatcher.Dispatch(ctx, it, turn.Message, turn.Image, history)

	if user != nil && conversationID != nil {
		// Fire and forget: the response is already computed; a failed
		// write must not block or fail the reply.
		go s.persistTurn(user.ID, *conversationID, turn, result)
	}

	envelope := Envelope{
		Response:       result.Text,
		ModelUsed:      result.Label,
		Intent:         it.String(),
		ConversationID: conversationID,
	}
	if result.Image != "" {
		img := result.Image
		envelope.Image = &img
	}
	return envelope
}

func (s *Service) recentHistory(ctx context.Context, userID, conversationID uint) []llm.Message {
	msgs, err := s.windowOrStore(ctx, userID, conversationID)
	if err != nil {
		s.log.Warn("failed to load history window, proceeding without context",
			zap.Uint("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	history := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content, Image: m.Image})
	}
	return history
}

func (s *Service) windowOrStore(ctx context.Context, userID, conversationID uint) ([]store.Message, error) {
	cold := false
	if s.window != nil {
		msgs, err := s.window.Recent(ctx, userID, conversationID, historyWindow)
		if err == nil {
			return msgs, nil
		}
		if errors.Is(err, store.ErrCacheMiss) {
			cold = true
		} else {
			s.log.Warn("history cache read failed", zap.Error(err))
		}
	}
	msgs, err := s.repo.RecentMessages(ctx, userID, conversationID, historyWindow)
	if err != nil {
		return nil, err
	}
	// A cold window must be rebuilt from the store before anything is
	// appended to it, or later turns would read a list holding only the
	// appends and lose the conversation's older context.
	if cold {
		s.backfillWindow(ctx, msgs)
	}
	return msgs, nil
}

func (s *Service) backfillWindow(ctx context.Context, msgs []store.Message) {
	for _, m := range msgs {
		if err := s.window.Append(ctx, m); err != nil {
			s.log.Warn("failed to backfill history cache", zap.Error(err))
			return
		}
	}
}

// persistTurn appends the user and assistant messages and refreshes the
// conversation's last-activity marker. Runs detached with its own
// deadline so a hung provider elsewhere cannot block it, and vice versa.
func (s *Service) persistTurn(userID, conversationID uint, turn Turn, result router.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()

	entries := []store.Message{
		{UserID: userID, ConversationID: conversationID, Role: "user", Content: turn.Message, Image: turn.Image},
		{UserID: userID, ConversationID: conversationID, Role: "assistant", Content: result.Text, Image: result.Image},
	}
	for i := range entries {
		if err := s.repo.AppendMessage(ctx, &entries[i]); err != nil {
			s.log.Error("failed to persist message",
				zap.Uint("conversation_id", conversationID),
				zap.String("role", entries[i].Role),
				zap.Error(err))
			// Partial persistence is an accepted degraded outcome.
			return
		}
		if s.window != nil {
			if err := s.window.Append(ctx, entries[i]); err != nil {
				s.log.Warn("failed to update history cache", zap.Error(err))
			}
		}
	}
	if err := s.repo.TouchConversation(ctx, conversationID); err != nil {
		s.log.Error("failed to touch conversation",
			zap.Uint("conversation_id", conversationID), zap.Error(err))
	}
}

func conversationTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= titleLimit {
		return message
	}
	return string(runes[:titleLimit]) + "..."
}
