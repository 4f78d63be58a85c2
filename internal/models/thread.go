package models

import (
	"errors"
	"time"
)

// Thread represents a single conversation session bound to exactly one website's content. Its first
// message is always the system message carrying that content; the remaining messages alternate between
// the user and the assistant.
type Thread struct {
	ID         string    `json:"id"`
	WebsiteURL string    `json:"website_url"`
	Messages   []Message `json:"messages"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Message represents an individual entry within a thread. It contains the participant's role, the text
// content, and the time the message was created.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleSystem represents the governing instruction of a thread, built from the scraped website content.
	RoleSystem Role = "system"
	// RoleUser represents a question asked by the user.
	RoleUser Role = "user"
	// RoleAssistant represents a reply produced by the language model.
	RoleAssistant Role = "assistant"
)

// ErrThreadNotFound is returned by stores when no thread is stored under the requested id.
var ErrThreadNotFound = errors.New("thread not found")

// NewThread returns a thread whose sole state is the given system prompt.
func NewThread(id, websiteURL, systemPrompt string) Thread {
	now := time.Now()
	return Thread{
		ID:         id,
		WebsiteURL: websiteURL,
		Messages: []Message{
			{
				Role:      RoleSystem,
				Content:   systemPrompt,
				Timestamp: now,
			},
		},
		UpdatedAt: now,
	}
}

// SystemPrompt returns the content of the thread's system message, or an empty string if the thread has
// none.
func (t Thread) SystemPrompt() string {
	if len(t.Messages) == 0 || t.Messages[0].Role != RoleSystem {
		return ""
	}
	return t.Messages[0].Content
}

// WithTurn returns a copy of the thread with the user question and the assistant reply appended. The
// receiver's message slice is never shared with the result.
func (t Thread) WithTurn(question, reply string) Thread {
	now := time.Now()
	msgs := make([]Message, len(t.Messages), len(t.Messages)+2)
	copy(msgs, t.Messages)
	msgs = append(msgs,
		Message{Role: RoleUser, Content: question, Timestamp: now},
		Message{Role: RoleAssistant, Content: reply, Timestamp: now},
	)
	t.Messages = msgs
	t.UpdatedAt = now
	return t
}
