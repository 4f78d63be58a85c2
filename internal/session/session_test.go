package session_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/MegaGrindStone/site-assistant/internal/models"
	"github.com/MegaGrindStone/site-assistant/internal/services"
	"github.com/MegaGrindStone/site-assistant/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls int
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	content, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("no page at %s", url)
	}
	return content, nil
}

// echoLLM replies with the chunks it was configured with, and records the messages it received.
type echoLLM struct {
	chunks []string
	err    error

	mu   sync.Mutex
	seen [][]models.Message
}

func (e *echoLLM) Chat(_ context.Context, messages []models.Message) iter.Seq2[string, error] {
	e.mu.Lock()
	e.seen = append(e.seen, messages)
	e.mu.Unlock()

	return func(yield func(string, error) bool) {
		for _, c := range e.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if e.err != nil {
			yield("", e.err)
		}
	}
}

func (e *echoLLM) lastMessages() []models.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seen[len(e.seen)-1]
}

type failingStore struct {
	session.Store
	err error
}

func (f failingStore) Set(context.Context, models.Thread) error {
	return f.err
}

func newManager(fetcher session.Fetcher, store session.Store, llm session.LLM) *session.Manager {
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	return session.NewManager(fetcher, store, llm, logger)
}

func testFetcher() *stubFetcher {
	return &stubFetcher{pages: map[string]string{
		"https://a.example": "content of A",
		"https://b.example": "content of B",
	}}
}

func TestCreateOrUpdateThread(t *testing.T) {
	ctx := context.Background()
	fetcher := testFetcher()
	store := services.NewMemory()
	m := newManager(fetcher, store, &echoLLM{})

	first, err := m.CreateOrUpdateThread(ctx, "https://a.example")
	require.NoError(t, err)
	assert.Equal(t, first, m.ActiveThreadID())
	assert.Equal(t, 1, fetcher.calls)

	thread, err := store.Get(ctx, first)
	require.NoError(t, err)
	require.Len(t, thread.Messages, 1)
	assert.Contains(t, thread.SystemPrompt(), "content of A")
	assert.Contains(t, thread.SystemPrompt(), "https://a.example")

	second, err := m.CreateOrUpdateThread(ctx, "https://b.example")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, fetcher.calls)

	thread, err = store.Get(ctx, first)
	require.NoError(t, err)
	assert.Contains(t, thread.SystemPrompt(), "content of B")
	assert.NotContains(t, thread.SystemPrompt(), "content of A")
	assert.Equal(t, "https://b.example", thread.WebsiteURL)
}

func TestUpdateThreadContextDiscardsHistory(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemory()
	m := newManager(testFetcher(), store, &echoLLM{chunks: []string{"ok"}})

	threadID, err := m.CreateOrUpdateThread(ctx, "https://a.example")
	require.NoError(t, err)
	_, err = m.Chat(ctx, threadID, "hello")
	require.NoError(t, err)

	thread, err := store.Get(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, thread.Messages, 3)

	got, err := m.UpdateThreadContext(ctx, threadID, "https://b.example")
	require.NoError(t, err)
	assert.Equal(t, threadID, got)

	thread, err = store.Get(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, thread.Messages, 1)
	assert.Equal(t, models.RoleSystem, thread.Messages[0].Role)
	assert.Contains(t, thread.SystemPrompt(), "content of B")
}

func TestCreateOrUpdateThreadFetchFailure(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemory()
	m := newManager(testFetcher(), store, &echoLLM{})

	_, err := m.CreateOrUpdateThread(ctx, "https://missing.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create or update thread")
	assert.Empty(t, m.ActiveThreadID())

	threadID, err := m.CreateOrUpdateThread(ctx, "https://a.example")
	require.NoError(t, err)

	_, err = m.CreateOrUpdateThread(ctx, "https://missing.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update thread context")

	thread, err := store.Get(ctx, threadID)
	require.NoError(t, err)
	assert.Contains(t, thread.SystemPrompt(), "content of A")
	assert.Equal(t, threadID, m.ActiveThreadID())
}

func TestCreateOrUpdateThreadStoreFailure(t *testing.T) {
	errStore := errors.New("store down")
	m := newManager(testFetcher(), failingStore{Store: services.NewMemory(), err: errStore}, &echoLLM{})

	_, err := m.CreateOrUpdateThread(context.Background(), "https://a.example")

	require.ErrorIs(t, err, errStore)
	assert.Empty(t, m.ActiveThreadID())
}

func TestManagersAreIndependent(t *testing.T) {
	ctx := context.Background()
	m1 := newManager(testFetcher(), services.NewMemory(), &echoLLM{})
	m2 := newManager(testFetcher(), services.NewMemory(), &echoLLM{})

	id1, err := m1.CreateOrUpdateThread(ctx, "https://a.example")
	require.NoError(t, err)
	id2, err := m2.CreateOrUpdateThread(ctx, "https://a.example")
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

func TestChatUnknownThread(t *testing.T) {
	m := newManager(testFetcher(), services.NewMemory(), &echoLLM{})

	_, err := m.Chat(context.Background(), "missing", "hello")
	assert.ErrorIs(t, err, models.ErrThreadNotFound)

	_, err = m.ChatStream(context.Background(), "missing", "hello", nil)
	assert.ErrorIs(t, err, models.ErrThreadNotFound)
}

func TestChatAccumulatesHistory(t *testing.T) {
	ctx := context.Background()
	llm := &echoLLM{chunks: []string{"Hel", "lo", "!"}}
	store := services.NewMemory()
	m := newManager(testFetcher(), store, llm)

	threadID, err := m.CreateOrUpdateThread(ctx, "https://a.example")
	require.NoError(t, err)

	reply, err := m.Chat(ctx, threadID, "first")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply)

	_, err = m.Chat(ctx, threadID, "second")
	require.NoError(t, err)

	msgs := llm.lastMessages()
	require.Len(t, msgs, 4)
	assert.Equal(t, models.RoleSystem, msgs[0].Role)
	assert.Equal(t, "first", msgs[1].Content)
	assert.Equal(t, "Hello!", msgs[2].Content)
	assert.Equal(t, "second", msgs[3].Content)

	thread, err := store.Get(ctx, threadID)
	require.NoError(t, err)
	assert.Len(t, thread.Messages, 5)
}

func TestChatStreamMatchesFinalText(t *testing.T) {
	ctx := context.Background()
	llm := &echoLLM{chunks: []string{"The ", "answer ", "is ", "42."}}
	m := newManager(testFetcher(), services.NewMemory(), llm)

	threadID, err := m.CreateOrUpdateThread(ctx, "https://a.example")
	require.NoError(t, err)

	var fragments []string
	full, err := m.ChatStream(ctx, threadID, "question", func(s string) {
		fragments = append(fragments, s)
	})
	require.NoError(t, err)

	assert.Equal(t, llm.chunks, fragments)
	assert.Equal(t, strings.Join(fragments, ""), full)
}

func TestChatModelFailureLeavesThread(t *testing.T) {
	ctx := context.Background()
	errModel := errors.New("model down")
	store := services.NewMemory()
	m := newManager(testFetcher(), store, &echoLLM{chunks: []string{"par"}, err: errModel})

	threadID, err := m.CreateOrUpdateThread(ctx, "https://a.example")
	require.NoError(t, err)

	_, err = m.Chat(ctx, threadID, "hello")
	require.ErrorIs(t, err, errModel)

	thread, err := store.Get(ctx, threadID)
	require.NoError(t, err)
	assert.Len(t, thread.Messages, 1)
}

// cutoffLLM yields its first chunk, then cancels the caller and ends the sequence without an error, the
// way the provider adapters react to a cancelled request.
type cutoffLLM struct {
	cancel context.CancelFunc
}

func (c cutoffLLM) Chat(context.Context, []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !yield("The answer ", nil) {
			return
		}
		c.cancel()
	}
}

func TestChatCancelledMidReplyLeavesThread(t *testing.T) {
	store := services.NewMemory()
	seed := newManager(testFetcher(), store, &echoLLM{})
	threadID, err := seed.CreateOrUpdateThread(context.Background(), "https://a.example")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := newManager(testFetcher(), store, cutoffLLM{cancel: cancel})

	reply, err := m.Chat(ctx, threadID, "what is the answer?")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reply)

	thread, err := store.Get(context.Background(), threadID)
	require.NoError(t, err)
	assert.Len(t, thread.Messages, 1)
}

func TestCustomPromptBuilder(t *testing.T) {
	ctx := context.Background()
	pb, err := session.NewPromptBuilder("Site {{.URL}} says: {{.Content}}")
	require.NoError(t, err)

	store := services.NewMemory()
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	m := session.NewManager(testFetcher(), store, &echoLLM{}, logger, session.WithPromptBuilder(pb))

	threadID, err := m.CreateOrUpdateThread(ctx, "https://a.example")
	require.NoError(t, err)

	thread, err := store.Get(ctx, threadID)
	require.NoError(t, err)
	assert.Equal(t, "Site https://a.example says: content of A", thread.SystemPrompt())
}

func TestNewPromptBuilderInvalid(t *testing.T) {
	_, err := session.NewPromptBuilder("{{.URL")
	assert.Error(t, err)
}

func TestDefaultPromptBuilder(t *testing.T) {
	prompt, err := session.DefaultPromptBuilder().Build("https://a.example", "some content")
	require.NoError(t, err)

	assert.Contains(t, prompt, "answering questions about https://a.example")
	assert.Contains(t, prompt, "I can only answer based on the extracted website content.")
	assert.True(t, strings.HasSuffix(prompt, "some content\n"))
}
