package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/MegaGrindStone/go-mcp"
)

// MCPFetcher fetches website content by calling a fetch tool on an MCP server, such as the reference
// "fetch" server. The server is reached either by spawning a command and talking over its stdio, or
// over SSE.
type MCPFetcher struct {
	client *mcp.Client
	tool   string

	connected bool
	cancel    context.CancelFunc
	cmd       *exec.Cmd

	logger *slog.Logger
}

// MCPFetcherOptions selects the MCP server. Exactly one of Command or URL must be set. Tool defaults to
// "fetch".
type MCPFetcherOptions struct {
	Command string
	Args    []string
	URL     string
	Tool    string
}

const mcpDisconnectTimeout = 5 * time.Second

var mcpClientInfo = mcp.Info{
	Name:    "site-assistant",
	Version: "0.1.0",
}

// NewMCPFetcher starts or dials the MCP server and blocks until the client is connected or ctx is done.
func NewMCPFetcher(ctx context.Context, opts MCPFetcherOptions, logger *slog.Logger) (*MCPFetcher, error) {
	tool := opts.Tool
	if tool == "" {
		tool = "fetch"
	}

	f := &MCPFetcher{
		tool:   tool,
		logger: logger.With(slog.String("module", "mcp-fetcher")),
	}

	switch {
	case opts.Command != "" && opts.URL != "":
		return nil, errors.New("only one of command or url may be set for the mcp fetcher")
	case opts.URL != "":
		f.client = mcp.NewClient(mcpClientInfo, mcp.NewSSEClient(opts.URL, nil))
	case opts.Command != "":
		cmd := exec.Command(opts.Command, opts.Args...)
		in, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open stdin of %s: %w", opts.Command, err)
		}
		out, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open stdout of %s: %w", opts.Command, err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start %s: %w", opts.Command, err)
		}
		f.cmd = cmd
		f.client = mcp.NewClient(mcpClientInfo, mcp.NewStdIO(out, in))
	default:
		return nil, errors.New("command or url is required for the mcp fetcher")
	}

	connectCtx, connectCancel := context.WithCancel(context.Background())
	f.cancel = connectCancel

	ready := make(chan struct{})
	errs := make(chan error, 1)
	go func() {
		if err := f.client.Connect(connectCtx, ready); err != nil {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		_ = f.Close()
		return nil, fmt.Errorf("failed to connect to mcp server: %w", err)
	case <-ctx.Done():
		_ = f.Close()
		return nil, fmt.Errorf("failed to connect to mcp server: %w", ctx.Err())
	case <-ready:
	}
	f.connected = true

	f.logger.Info("Connected to MCP server", slog.String("server", f.client.ServerInfo().Name))

	return f, nil
}

// Fetch calls the fetch tool with the url and returns the text contents of the result.
func (f *MCPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	args, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return "", fmt.Errorf("failed to marshal tool arguments: %w", err)
	}

	res, err := f.client.CallTool(ctx, mcp.CallToolParams{
		Name:      f.tool,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("tool call failed: %w", err)
	}

	content := toolText(res.Content)
	if res.IsError {
		return "", fmt.Errorf("tool %s returned an error: %s", f.tool, content)
	}
	if content == "" {
		return "", fmt.Errorf("tool %s returned no content for %s", f.tool, url)
	}
	return content, nil
}

// Close disconnects the client and waits for the spawned server, if any, to exit.
func (f *MCPFetcher) Close() error {
	var disconnectErr error
	if f.connected {
		ctx, cancel := context.WithTimeout(context.Background(), mcpDisconnectTimeout)
		if err := f.client.Disconnect(ctx); err != nil {
			disconnectErr = fmt.Errorf("failed to disconnect from mcp server: %w", err)
		}
		cancel()
	}
	if f.cancel != nil {
		f.cancel()
	}
	if f.cmd != nil && f.cmd.Process != nil {
		_ = f.cmd.Process.Kill()
		if err := f.cmd.Wait(); err != nil {
			f.logger.Debug("MCP server exited", slog.String(errLoggerKey, err.Error()))
		}
	}
	return disconnectErr
}

func toolText(contents []mcp.Content) string {
	var parts []string
	for _, c := range contents {
		if c.Type != mcp.ContentTypeText || c.Text == "" {
			continue
		}
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n\n")
}
