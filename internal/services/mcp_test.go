package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/MegaGrindStone/go-mcp"
	"github.com/stretchr/testify/assert"
)

func TestToolText(t *testing.T) {
	contents := []mcp.Content{
		{Type: mcp.ContentTypeText, Text: "first"},
		{Type: mcp.ContentTypeText, Text: ""},
		{Type: mcp.ContentTypeText, Text: "second"},
	}

	assert.Equal(t, "first\n\nsecond", toolText(contents))
	assert.Empty(t, toolText(nil))
}

func TestNewMCPFetcherOptions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewMCPFetcher(context.Background(), MCPFetcherOptions{}, logger)
	assert.Error(t, err)

	_, err = NewMCPFetcher(context.Background(), MCPFetcherOptions{
		Command: "mcp-server-fetch",
		URL:     "http://localhost:8080/sse",
	}, logger)
	assert.Error(t, err)
}

func TestMCPFetcherCloseWithoutConnection(t *testing.T) {
	f := &MCPFetcher{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	assert.NoError(t, f.Close())
}
