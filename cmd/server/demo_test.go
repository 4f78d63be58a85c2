package main

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"strings"
	"testing"

	"github.com/MegaGrindStone/site-assistant/internal/models"
	"github.com/MegaGrindStone/site-assistant/internal/services"
	"github.com/MegaGrindStone/site-assistant/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pageFetcher map[string]string

func (p pageFetcher) Fetch(_ context.Context, url string) (string, error) {
	return p[url], nil
}

// siteLLM answers with the website URL the thread is bound to.
type siteLLM struct{}

func (siteLLM) Chat(_ context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		system := messages[0].Content
		for _, site := range []string{"a.example", "b.example"} {
			if strings.Contains(system, site) {
				if !yield("about ", nil) {
					return
				}
				yield(site, nil)
				return
			}
		}
	}
}

func TestRunDemo(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fetcher := pageFetcher{
		"https://a.example": "Site A",
		"https://b.example": "Site B",
	}
	a := &app{
		logger:  logger,
		manager: session.NewManager(fetcher, services.NewMemory(), siteLLM{}, logger),
	}

	in := strings.NewReader("what is this?\n\nand now?\n")
	var out strings.Builder

	err := a.runDemo(context.Background(), []string{"https://a.example", "https://b.example"}, in, &out)
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "Visiting https://a.example")
	assert.Contains(t, got, "Assistant: about a.example\n")
	assert.Contains(t, got, "Visiting https://b.example")
	assert.Contains(t, got, "Assistant: about b.example\n")
	// Both sites share the one navigated thread.
	assert.Equal(t, 2, strings.Count(got, "(thread "+a.manager.ActiveThreadID()+")"))
}
