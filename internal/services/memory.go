package services

import (
	"context"
	"slices"
	"sync"

	"github.com/MegaGrindStone/site-assistant/internal/models"
)

// Memory implements the session Store interface with an in-process map. Threads live for the lifetime
// of the process. Concurrent writes to the same id are last-writer-wins.
type Memory struct {
	mu      sync.RWMutex
	threads map[string]models.Thread
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		threads: make(map[string]models.Thread),
	}
}

// Get returns a copy of the thread stored under threadID, or models.ErrThreadNotFound.
func (m *Memory) Get(_ context.Context, threadID string) (models.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	thread, ok := m.threads[threadID]
	if !ok {
		return models.Thread{}, models.ErrThreadNotFound
	}
	thread.Messages = slices.Clone(thread.Messages)
	return thread, nil
}

// Set stores a copy of the thread, replacing any previous state under the same id.
func (m *Memory) Set(_ context.Context, thread models.Thread) error {
	thread.Messages = slices.Clone(thread.Messages)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[thread.ID] = thread
	return nil
}

// Close is a no-op kept so every store can be released the same way.
func (m *Memory) Close() error {
	return nil
}
