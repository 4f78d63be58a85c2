package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MegaGrindStone/site-assistant/internal/models"
)

// Engine adapts an LLM into a single prediction over a thread.
type Engine struct {
	llm LLM
}

// NewEngine creates an Engine backed by llm.
func NewEngine(llm LLM) Engine {
	return Engine{llm: llm}
}

// Predict asks the model to answer userMessage given the thread's system message and history. If sink is
// not nil, it is called with every fragment, in order, before Predict returns. The returned text is the
// concatenation of all fragments. A prediction whose ctx is done before the model finishes returns ctx's
// error instead of the partial text.
func (e Engine) Predict(ctx context.Context, thread models.Thread, userMessage string, sink func(string)) (string, error) {
	msgs := make([]models.Message, len(thread.Messages), len(thread.Messages)+1)
	copy(msgs, thread.Messages)
	msgs = append(msgs, models.Message{
		Role:      models.RoleUser,
		Content:   userMessage,
		Timestamp: time.Now(),
	})

	var sb strings.Builder
	for chunk, err := range e.llm.Chat(ctx, msgs) {
		if err != nil {
			return "", err
		}
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		if sink != nil {
			sink(chunk)
		}
	}
	// Adapters end their sequence quietly on cancellation, which would look like a short reply.
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrThreadNotFound)
}
