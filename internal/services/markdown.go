package services

import (
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type contentFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// PlainTextFetcher wraps a fetcher that returns markdown and converts its output into plain text,
// which keeps system prompts smaller. Link targets, images and raw HTML are dropped.
type PlainTextFetcher struct {
	next contentFetcher
	md   goldmark.Markdown
}

// NewPlainTextFetcher wraps next.
func NewPlainTextFetcher(next contentFetcher) PlainTextFetcher {
	return PlainTextFetcher{
		next: next,
		md:   goldmark.New(),
	}
}

// Fetch fetches the url with the wrapped fetcher and returns the plain text of the result.
func (p PlainTextFetcher) Fetch(ctx context.Context, url string) (string, error) {
	content, err := p.next.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return p.PlainText(content), nil
}

// PlainText renders markdown source as plain text, one line per block.
func (p PlainTextFetcher) PlainText(source string) string {
	src := []byte(source)
	doc := p.md.Parser().Parse(text.NewReader(src))

	var sb strings.Builder
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				newline()
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Image, *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			newline()
			sb.WriteString("- ")
		case *ast.Text:
			sb.Write(node.Segment.Value(src))
			switch {
			case node.HardLineBreak():
				sb.WriteByte('\n')
			case node.SoftLineBreak():
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(node.Value)
		case *ast.AutoLink:
			sb.Write(node.Label(src))
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				sb.Write(line.Value(src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(sb.String())
}
