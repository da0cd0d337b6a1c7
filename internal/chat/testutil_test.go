package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/kseverny/interview-platform/internal/ai"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Chat{}, &Message{}, &Event{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeCache is an in-memory Cache. TTLs are recorded, not enforced; tests
// expire keys explicitly.
type fakeCache struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (f *fakeCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeCache) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
		delete(f.ttls, k)
	}
	return nil
}

// Keys supports the "*middle*" patterns the code uses; a bare "*" returns
// everything.
func (f *fakeCache) Keys(_ context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	needle := strings.Trim(pattern, "*")
	out := make([]string, 0, len(f.data))
	for k := range f.data {
		if needle == "" || strings.Contains(k, needle) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeCache) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

func (f *fakeCache) ttlOf(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}

// expire drops the key as the backing store would on TTL runout.
func (f *fakeCache) expire(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	delete(f.ttls, key)
}

// scriptedProvider replays canned responses and records each request.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []ai.Response
	err       error
	requests  [][]ai.Message
}

func (p *scriptedProvider) Chat(_ context.Context, messages []ai.Message) (ai.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, append([]ai.Message(nil), messages...))
	if p.err != nil {
		return ai.Response{}, p.err
	}
	if len(p.responses) == 0 {
		return ai.Response{Content: "ok", PromptTokens: 10, CompletionTokens: 5}, nil
	}
	resp := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return resp, nil
}

func (p *scriptedProvider) lastRequest() []ai.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}

// chanSubscriber feeds expired key names from a test-owned channel.
type chanSubscriber struct {
	ch chan string
}

func newChanSubscriber() *chanSubscriber {
	return &chanSubscriber{ch: make(chan string, 16)}
}

func (s *chanSubscriber) SubscribeExpired(_ context.Context) (<-chan string, error) {
	return s.ch, nil
}

func seedChat(t *testing.T, repo *Repo, userID uint64, progression int) *Chat {
	t.Helper()
	chance := ArithmeticBaseChance
	if progression == ProgressionGeometric {
		chance = GeometricBaseChance
	}
	c := &Chat{
		UserID:             userID,
		Title:              "mock interview",
		ProgressionType:    progression,
		CurrentEventChance: chance,
	}
	if err := repo.ChatCreate(context.Background(), c); err != nil {
		t.Fatalf("seed chat: %v", err)
	}
	if _, err := repo.MessageCreate(context.Background(), c.ID, RoleSystem, "You are an interviewer."); err != nil {
		t.Fatalf("seed system message: %v", err)
	}
	return c
}
