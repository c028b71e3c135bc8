package service

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"section-studio-go/internal/model"
	"section-studio-go/internal/repository"
	"section-studio-go/pkg/database"
	"section-studio-go/pkg/llm"
	"section-studio-go/pkg/tasks"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	alice   = model.Principal{Shop: "acme.myshopify.com", UserID: "1"}
	bob     = model.Principal{Shop: "acme.myshopify.com", UserID: "2"}
	mallory = model.Principal{Shop: "other.myshopify.com", UserID: "1"}
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// steppingClock 每次调用前进一秒。
func steppingClock() func() time.Time {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var n int64
	return func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&n, 1)) * time.Second)
	}
}

type generateCall struct {
	prompt  string
	history []model.ChatMessage
}

type fakeGenerator struct {
	mu           sync.Mutex
	calls        []generateCall
	GenerateFunc func(prompt string, history []model.ChatMessage) (string, error)
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, history []model.ChatMessage, stream llm.MessageWriter) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, generateCall{prompt: prompt, history: history})
	f.mu.Unlock()
	if f.GenerateFunc != nil {
		return f.GenerateFunc(prompt, history)
	}
	reply := "reply to " + prompt
	if stream != nil {
		_ = stream.WriteMessage(1, []byte(reply))
	}
	return reply, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePublisher struct {
	mu    sync.Mutex
	tasks []tasks.ConversationIndexTask
}

func (f *fakePublisher) Publish(_ context.Context, task tasks.ConversationIndexTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakePublisher) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t.Action)
	}
	return out
}
