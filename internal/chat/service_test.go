package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"askgpt/internal/intent"
	"askgpt/internal/llm"
	"askgpt/internal/router"
	"askgpt/internal/store"
)

type fakeRepo struct {
	mu sync.Mutex

	nextConvID uint
	createErr  error
	created    []store.Conversation
	recent     []store.Message
	appended   []store.Message
	touched    []uint
	persisted  chan struct{}
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{nextConvID: 41, persisted: make(chan struct{}, 16)}
}

func (f *fakeRepo) CreateConversation(_ context.Context, userID uint, title string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextConvID++
	conv := store.Conversation{ID: f.nextConvID, UserID: userID, Title: title}
	f.created = append(f.created, conv)
	return &conv, nil
}

func (f *fakeRepo) RecentMessages(_ context.Context, _, _ uint, _ int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recent, nil
}

func (f *fakeRepo) AppendMessage(_ context.Context, msg *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, *msg)
	return nil
}

func (f *fakeRepo) TouchConversation(_ context.Context, id uint) error {
	f.mu.Lock()
	f.touched = append(f.touched, id)
	f.mu.Unlock()
	f.persisted <- struct{}{}
	return nil
}

func (f *fakeRepo) waitPersisted(t *testing.T) {
	t.Helper()
	select {
	case <-f.persisted:
	case <-time.After(2 * time.Second):
		t.Fatalf("persistence did not complete")
	}
}

// fakeWindow mirrors the redis window's semantics: a read of an empty
// list is a miss, appends push to the tail.
type windowID struct {
	userID uint
	convID uint
}

type fakeWindow struct {
	mu   sync.Mutex
	rows map[windowID][]store.Message
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{rows: map[windowID][]store.Message{}}
}

func (w *fakeWindow) Append(_ context.Context, msg store.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := windowID{msg.UserID, msg.ConversationID}
	w.rows[id] = append(w.rows[id], msg)
	return nil
}

func (w *fakeWindow) Recent(_ context.Context, userID, conversationID uint, limit int) ([]store.Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rows := w.rows[windowID{userID, conversationID}]
	if len(rows) == 0 {
		return nil, store.ErrCacheMiss
	}
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return append([]store.Message(nil), rows...), nil
}

type fixedClassifier struct {
	intent intent.Intent
}

func (f fixedClassifier) Classify(_ context.Context, _ string, _ bool) intent.Intent {
	return f.intent
}

type recordingDispatcher struct {
	result  router.Result
	history []llm.Message
}

func (d *recordingDispatcher) Dispatch(_ context.Context, _ intent.Intent, _, _ string, history []llm.Message) router.Result {
	d.history = history
	return d.result
}

func newService(repo Repository, classifier Classifier, dispatcher Dispatcher) *Service {
	return NewService(repo, nil, classifier, dispatcher, time.Second, zap.NewNop())
}

func TestHandleTurnCreatesConversationBeforeDispatch(t *testing.T) {
	repo := newFakeRepo()
	dispatcher := &recordingDispatcher{result: router.Result{Text: "hi", Label: "GPT-4o-mini"}}
	svc := newService(repo, fixedClassifier{intent.CasualChat}, dispatcher)

	user := &store.User{ID: 7, Username: "alice"}
	env := svc.HandleTurn(context.Background(), user, Turn{Message: "hello there"})

	if env.ConversationID == nil {
		t.Fatalf("expected conversation id in envelope")
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one conversation created, got %d", len(repo.created))
	}
	if repo.created[0].Title != "hello there" {
		t.Fatalf("unexpected title %q", repo.created[0].Title)
	}
	if *env.ConversationID != repo.created[0].ID {
		t.Fatalf("envelope id %d does not match created id %d", *env.ConversationID, repo.created[0].ID)
	}

	repo.waitPersisted(t)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.appended) != 2 {
		t.Fatalf("expected user and assistant messages persisted, got %d", len(repo.appended))
	}
	if repo.appended[0].Role != "user" || repo.appended[0].Content != "hello there" {
		t.Fatalf("unexpected user row %+v", repo.appended[0])
	}
	if repo.appended[1].Role != "assistant" || repo.appended[1].Content != "hi" {
		t.Fatalf("unexpected assistant row %+v", repo.appended[1])
	}
	if len(repo.touched) != 1 || repo.touched[0] != repo.created[0].ID {
		t.Fatalf("expected conversation touched once, got %v", repo.touched)
	}
}

func TestHandleTurnTruncatesLongTitles(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, fixedClassifier{intent.CasualChat}, &recordingDispatcher{})

	long := strings.Repeat("a", 45)
	svc.HandleTurn(context.Background(), &store.User{ID: 1}, Turn{Message: long})

	want := strings.Repeat("a", 30) + "..."
	if repo.created[0].Title != want {
		t.Fatalf("expected truncated title %q, got %q", want, repo.created[0].Title)
	}
}

func TestHandleTurnAnonymousSkipsPersistence(t *testing.T) {
	repo := newFakeRepo()
	dispatcher := &recordingDispatcher{result: router.Result{Text: "hi", Label: "GPT-4o-mini"}}
	svc := newService(repo, fixedClassifier{intent.CasualChat}, dispatcher)

	env := svc.HandleTurn(context.Background(), nil, Turn{Message: "hello"})

	if env.ConversationID != nil {
		t.Fatalf("anonymous callers get no conversation id")
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.created) != 0 || len(repo.appended) != 0 {
		t.Fatalf("anonymous turns must not persist anything")
	}
}

func TestHandleTurnFeedsHistoryWindowToDispatch(t *testing.T) {
	repo := newFakeRepo()
	repo.recent = []store.Message{
		{Role: "user", Content: "earlier", Image: "img-b64"},
		{Role: "assistant", Content: "reply"},
	}
	dispatcher := &recordingDispatcher{result: router.Result{Text: "ok", Label: "GPT-4o-mini"}}
	svc := newService(repo, fixedClassifier{intent.CasualChat}, dispatcher)

	convID := uint(9)
	svc.HandleTurn(context.Background(), &store.User{ID: 1}, Turn{Message: "again", ConversationID: &convID})

	if len(dispatcher.history) != 2 {
		t.Fatalf("expected history forwarded, got %d entries", len(dispatcher.history))
	}
	if dispatcher.history[0].Image != "img-b64" {
		t.Fatalf("history entries must keep their images for context resolution")
	}
	if len(repo.created) != 0 {
		t.Fatalf("an explicit conversation id must not create a new conversation")
	}
}

func TestHandleTurnSurvivesConversationCreateFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.createErr = errors.New("disk full")
	dispatcher := &recordingDispatcher{result: router.Result{Text: "still here", Label: "GPT-4o-mini"}}
	svc := newService(repo, fixedClassifier{intent.CasualChat}, dispatcher)

	env := svc.HandleTurn(context.Background(), &store.User{ID: 1}, Turn{Message: "hello"})

	if env.Response != "still here" {
		t.Fatalf("response must be computed despite persistence failure, got %q", env.Response)
	}
	if env.ConversationID != nil {
		t.Fatalf("no conversation id when creation failed")
	}
}

// A cold window must be rebuilt from the store on the first read, or
// the next turn would see only the messages appended since the miss and
// lose the conversation's older context.
func TestHandleTurnBackfillsColdWindow(t *testing.T) {
	repo := newFakeRepo()
	for i := 1; i <= 6; i++ {
		repo.recent = append(repo.recent, store.Message{
			UserID: 1, ConversationID: 9, Role: "user", Content: fmt.Sprintf("msg %d", i),
		})
	}
	window := newFakeWindow()
	dispatcher := &recordingDispatcher{result: router.Result{Text: "ok", Label: "GPT-4o-mini"}}
	svc := NewService(repo, window, fixedClassifier{intent.CasualChat}, dispatcher, time.Second, zap.NewNop())

	user := &store.User{ID: 1}
	convID := uint(9)
	svc.HandleTurn(context.Background(), user, Turn{Message: "turn one", ConversationID: &convID})
	if len(dispatcher.history) != 6 {
		t.Fatalf("first turn should see the store's rows, got %d", len(dispatcher.history))
	}
	repo.waitPersisted(t)

	svc.HandleTurn(context.Background(), user, Turn{Message: "turn two", ConversationID: &convID})
	if len(dispatcher.history) != 8 {
		t.Fatalf("second turn must see the backfilled context plus the first turn, got %d", len(dispatcher.history))
	}
	if dispatcher.history[0].Content != "msg 1" || dispatcher.history[6].Content != "turn one" {
		t.Fatalf("unexpected window contents %+v", dispatcher.history)
	}
}

// Window reads are scoped by owner, same as store reads: supplying
// another user's conversation id must not surface their cached context.
func TestHandleTurnWindowScopedToUser(t *testing.T) {
	repo := newFakeRepo()
	window := newFakeWindow()
	if err := window.Append(context.Background(), store.Message{
		UserID: 2, ConversationID: 9, Role: "user", Content: "someone else's context",
	}); err != nil {
		t.Fatalf("seed window: %v", err)
	}
	dispatcher := &recordingDispatcher{result: router.Result{Text: "ok", Label: "GPT-4o-mini"}}
	svc := NewService(repo, window, fixedClassifier{intent.CasualChat}, dispatcher, time.Second, zap.NewNop())

	convID := uint(9)
	svc.HandleTurn(context.Background(), &store.User{ID: 1}, Turn{Message: "hi", ConversationID: &convID})
	if len(dispatcher.history) != 0 {
		t.Fatalf("another user's window must not leak, got %d entries", len(dispatcher.history))
	}
}

func TestHandleTurnEnvelopeImage(t *testing.T) {
	repo := newFakeRepo()
	dispatcher := &recordingDispatcher{result: router.Result{
		Text:  "Here is your image with the background removed.",
		Label: "Image Processor",
		Image: "result-b64",
	}}
	svc := newService(repo, fixedClassifier{intent.ImageManipulation}, dispatcher)

	env := svc.HandleTurn(context.Background(), nil, Turn{Message: "remove the background", Image: "b64"})

	if env.Image == nil || *env.Image != "result-b64" {
		t.Fatalf("expected result image in envelope, got %v", env.Image)
	}
	if env.Intent != "image_manipulation" || env.ModelUsed != "Image Processor" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}
