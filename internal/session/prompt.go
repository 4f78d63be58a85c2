package session

import (
	"fmt"
	"strings"
	"text/template"
)

const defaultSystemPrompt = `You are an AI assistant in a browser extension. Your task is to assist users by answering questions about {{.URL}}.
The content of this website has been extracted using a web scraper.

IMPORTANT RULES:
- You **must** answer questions **ONLY** using the given context.
- If the user asks you questions that are not related to the website, please answer and be nice, but your focus
is to always answer the questions with the given context
- **DO NOT hallucinate** or generate answers outside of the provided data.
- If the answer is **not found**, state: **"I can only answer based on the extracted website content."**

**Context:**
{{.Content}}
`

// PromptBuilder renders the system message that binds a thread to a website's content.
type PromptBuilder struct {
	tmpl *template.Template
}

type promptData struct {
	URL     string
	Content string
}

// DefaultPromptBuilder returns the builder for the built-in system prompt.
func DefaultPromptBuilder() PromptBuilder {
	return PromptBuilder{
		tmpl: template.Must(template.New("system").Parse(defaultSystemPrompt)),
	}
}

// NewPromptBuilder parses text as a text/template receiving .URL and .Content.
func NewPromptBuilder(text string) (PromptBuilder, error) {
	tmpl, err := template.New("system").Parse(text)
	if err != nil {
		return PromptBuilder{}, fmt.Errorf("failed to parse system prompt template: %w", err)
	}
	return PromptBuilder{tmpl: tmpl}, nil
}

// Build renders the system prompt for the website.
func (p PromptBuilder) Build(url, content string) (string, error) {
	var sb strings.Builder
	if err := p.tmpl.Execute(&sb, promptData{URL: url, Content: content}); err != nil {
		return "", fmt.Errorf("failed to execute system prompt template: %w", err)
	}
	return sb.String(), nil
}
