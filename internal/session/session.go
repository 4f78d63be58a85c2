// Package session manages conversation threads bound to scraped website content, and relays streamed
// model output to pull-style consumers.
package session

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/MegaGrindStone/site-assistant/internal/models"
	"github.com/google/uuid"
)

// LLM represents a large language model interface that provides chat functionality. It accepts a context
// and a sequence of messages, returning an iterator that yields response chunks and potential errors.
type LLM interface {
	Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// Fetcher retrieves the extracted content of a website.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Store defines the interface for keyed thread persistence. Get returns models.ErrThreadNotFound when
// nothing is stored under the id, and Set always overwrites the whole thread.
type Store interface {
	Get(ctx context.Context, threadID string) (models.Thread, error)
	Set(ctx context.Context, thread models.Thread) error
}

// Manager orchestrates thread creation, context replacement and chat turns. It tracks a single active
// thread, which absorbs every subsequent website submission instead of a new thread being created.
//
// Concurrent submissions race on the active pointer and the last writer wins. A chat turn that overlaps a
// context replacement on the same thread may write back the thread it started from.
type Manager struct {
	fetcher Fetcher
	store   Store
	engine  Engine
	prompt  PromptBuilder

	mu       sync.Mutex
	activeID string

	logger *slog.Logger
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithPromptBuilder replaces the default system prompt builder.
func WithPromptBuilder(p PromptBuilder) ManagerOption {
	return func(m *Manager) {
		m.prompt = p
	}
}

// NewManager creates a Manager with no active thread.
func NewManager(fetcher Fetcher, store Store, llm LLM, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		fetcher: fetcher,
		store:   store,
		engine:  NewEngine(llm),
		prompt:  DefaultPromptBuilder(),
		logger:  logger.With(slog.String("module", "session")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ActiveThreadID returns the id of the active thread, or an empty string if no thread has been created yet.
func (m *Manager) ActiveThreadID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

func (m *Manager) setActive(threadID string) {
	m.mu.Lock()
	m.activeID = threadID
	m.mu.Unlock()
}

// Thread returns the stored state of the thread. It returns models.ErrThreadNotFound if the thread is
// unknown.
func (m *Manager) Thread(ctx context.Context, threadID string) (models.Thread, error) {
	return m.store.Get(ctx, threadID)
}

// CreateOrUpdateThread binds a thread to the content of websiteURL. If an active thread exists, its
// context is replaced and its id returned. Otherwise a new thread is created and becomes the active one.
// On failure no state is modified.
func (m *Manager) CreateOrUpdateThread(ctx context.Context, websiteURL string) (string, error) {
	if activeID := m.ActiveThreadID(); activeID != "" {
		_, err := m.store.Get(ctx, activeID)
		switch {
		case err == nil:
			m.logger.Info("Updating active thread",
				slog.String("threadID", activeID),
				slog.String("url", websiteURL))
			return m.UpdateThreadContext(ctx, activeID, websiteURL)
		case !isNotFound(err):
			return "", fmt.Errorf("failed to create or update thread: %w", err)
		}
	}

	threadID := uuid.New().String()
	m.logger.Info("Creating thread",
		slog.String("threadID", threadID),
		slog.String("url", websiteURL))

	thread, err := m.seedThread(ctx, threadID, websiteURL)
	if err != nil {
		return "", fmt.Errorf("failed to create or update thread: %w", err)
	}
	if err := m.store.Set(ctx, thread); err != nil {
		return "", fmt.Errorf("failed to create or update thread: %w", err)
	}
	m.setActive(threadID)

	return threadID, nil
}

// UpdateThreadContext replaces the whole state of the thread with a fresh one seeded by the content of
// websiteURL. Prior message history is discarded. On failure the thread is left untouched.
func (m *Manager) UpdateThreadContext(ctx context.Context, threadID, websiteURL string) (string, error) {
	thread, err := m.seedThread(ctx, threadID, websiteURL)
	if err != nil {
		return "", fmt.Errorf("failed to update thread context: %w", err)
	}
	if err := m.store.Set(ctx, thread); err != nil {
		return "", fmt.Errorf("failed to update thread context: %w", err)
	}
	return threadID, nil
}

func (m *Manager) seedThread(ctx context.Context, threadID, websiteURL string) (models.Thread, error) {
	content, err := m.fetcher.Fetch(ctx, websiteURL)
	if err != nil {
		return models.Thread{}, fmt.Errorf("failed to fetch %s: %w", websiteURL, err)
	}
	m.logger.Debug("Website fetched",
		slog.String("url", websiteURL),
		slog.Int("contentLength", len(content)))

	prompt, err := m.prompt.Build(websiteURL, content)
	if err != nil {
		return models.Thread{}, fmt.Errorf("failed to build system prompt: %w", err)
	}
	return models.NewThread(threadID, websiteURL, prompt), nil
}

// Chat sends the message to the model within the thread and returns the full reply. The question and the
// reply are appended to the thread's history only when the model call succeeds.
func (m *Manager) Chat(ctx context.Context, threadID, message string) (string, error) {
	return m.chat(ctx, threadID, message, nil)
}

// ChatStream behaves like Chat, additionally invoking sink with every reply fragment as it arrives. The
// returned text is the concatenation of all fragments.
func (m *Manager) ChatStream(ctx context.Context, threadID, message string, sink func(string)) (string, error) {
	if sink == nil {
		sink = func(string) {}
	}
	return m.chat(ctx, threadID, message, sink)
}

func (m *Manager) chat(ctx context.Context, threadID, message string, sink func(string)) (string, error) {
	thread, err := m.store.Get(ctx, threadID)
	if err != nil {
		return "", err
	}

	reply, err := m.engine.Predict(ctx, thread, message, sink)
	if err != nil {
		return "", fmt.Errorf("failed to get model response: %w", err)
	}

	if err := m.store.Set(ctx, thread.WithTurn(message, reply)); err != nil {
		return "", fmt.Errorf("failed to save thread: %w", err)
	}
	return reply, nil
}
