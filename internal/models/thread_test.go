package models_test

import (
	"testing"

	"github.com/MegaGrindStone/site-assistant/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewThread(t *testing.T) {
	th := models.NewThread("t1", "https://example.com", "prompt")

	require.Len(t, th.Messages, 1)
	assert.Equal(t, models.RoleSystem, th.Messages[0].Role)
	assert.Equal(t, "prompt", th.SystemPrompt())
	assert.Equal(t, "https://example.com", th.WebsiteURL)
}

func TestThreadWithTurn(t *testing.T) {
	th := models.NewThread("t1", "https://example.com", "prompt")

	next := th.WithTurn("question", "answer")

	require.Len(t, th.Messages, 1, "receiver must not be mutated")
	require.Len(t, next.Messages, 3)
	assert.Equal(t, models.RoleUser, next.Messages[1].Role)
	assert.Equal(t, "question", next.Messages[1].Content)
	assert.Equal(t, models.RoleAssistant, next.Messages[2].Role)
	assert.Equal(t, "answer", next.Messages[2].Content)
	assert.Equal(t, "prompt", next.SystemPrompt())
}

func TestThreadSystemPromptMissing(t *testing.T) {
	assert.Empty(t, models.Thread{}.SystemPrompt())

	th := models.Thread{Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}}}
	assert.Empty(t, th.SystemPrompt())
}
