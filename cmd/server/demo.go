package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var defaultDemoSites = []string{
	"https://www.anthropic.com",
	"https://go.dev",
	"https://en.wikipedia.org/wiki/Web_browser",
}

func newDemoCmd(cfgPath *string) *cobra.Command {
	var urls []string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Chat about a few websites from the terminal",
		Long: `demo navigates one thread across the given websites, the way the browser extension does
when the user switches tabs. For every site it reads questions from stdin until an empty line and
streams the answers to stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			return a.runDemo(cmd.Context(), urls, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVar(&urls, "url", defaultDemoSites, "website to visit, may be repeated")

	return cmd
}

func (a *app) runDemo(ctx context.Context, urls []string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)

	for _, url := range urls {
		threadID, err := a.manager.CreateOrUpdateThread(ctx, url)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nVisiting %s (thread %s)\n", url, threadID)

		for {
			fmt.Fprint(out, "You: ")
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("error reading input: %w", err)
				}
				return nil
			}
			question := strings.TrimSpace(scanner.Text())
			if question == "" {
				break
			}

			fmt.Fprint(out, "Assistant: ")
			_, err = a.manager.ChatStream(ctx, threadID, question, func(token string) {
				fmt.Fprint(out, token)
			})
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
		}
	}

	return nil
}
