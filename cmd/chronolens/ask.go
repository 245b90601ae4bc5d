package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	chronolens "github.com/chronolens/chronolens/pkg/sdk"
)

var (
	flagAskStream  bool
	flagAskContext bool
	flagAskVerbose bool
	flagValves     []string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question grounded in your recent activity",
	Long: `Runs a single chat turn in process: extracts a structured query from the
question, retrieves matching records from the activity index, and produces a
grounded response. Requires the index (and for responses, the model API) to
be reachable; set valves via flags or environment variables.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runAsk(strings.Join(args, " "))
	},
}

func init() {
	askCmd.Flags().BoolVar(&flagAskStream, "stream", false, "stream the response as it is generated")
	askCmd.Flags().BoolVar(&flagAskContext, "context-only", false, "print the retrieved context block instead of a model response")
	askCmd.Flags().BoolVarP(&flagAskVerbose, "verbose", "v", false, "print the extracted query and token usage")
	askCmd.Flags().StringArrayVar(&flagValves, "valve", nil, "valve override as NAME=VALUE (repeatable)")
}

func runAsk(question string) error {
	overrides, err := parseValveFlags(flagValves)
	if err != nil {
		return err
	}
	if _, ok := overrides["GET_RESPONSE"]; !ok {
		if flagAskContext {
			overrides["GET_RESPONSE"] = "false"
		} else {
			overrides["GET_RESPONSE"] = "true"
		}
	}

	client, err := chronolens.New()
	if err != nil {
		return err
	}

	// Ctrl-C cancels the run; a streaming response stops cleanly mid-answer.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	messages := []chronolens.Message{{Role: "user", Content: question}}

	if flagAskStream {
		stream, err := client.AskStream(ctx, messages, overrides)
		if err != nil {
			return err
		}
		for chunk := range stream.Chunks() {
			fmt.Print(chunk)
		}
		fmt.Println()
		if err := stream.Wait(); err != nil {
			return err
		}
		if flagAskVerbose {
			printQueryInfo(stream.Query(), stream.ResultsUsed(), stream.Truncated())
		}
		return nil
	}

	ans, err := client.Ask(ctx, messages, overrides)
	if err != nil {
		return err
	}
	fmt.Println(ans.Text)
	if flagAskVerbose {
		printQueryInfo(ans.Query, ans.ResultsUsed, ans.Truncated)
		fmt.Fprintf(os.Stderr, "tokens: %d prompt + %d completion = %d total\n",
			ans.Usage.PromptTokens, ans.Usage.CompletionTokens, ans.Usage.TotalTokens)
	}
	return nil
}

func printQueryInfo(q chronolens.QueryInfo, used int, truncated bool) {
	fmt.Fprintf(os.Stderr, "query: type=%s", q.ContentType)
	if !q.From.IsZero() {
		fmt.Fprintf(os.Stderr, " from=%s", q.From.Format("2006-01-02 15:04"))
	}
	if !q.To.IsZero() {
		fmt.Fprintf(os.Stderr, " to=%s", q.To.Format("2006-01-02 15:04"))
	}
	if q.Substring != "" {
		fmt.Fprintf(os.Stderr, " contains=%q", q.Substring)
	}
	if q.Application != "" {
		fmt.Fprintf(os.Stderr, " app=%q", q.Application)
	}
	if q.Limit > 0 {
		fmt.Fprintf(os.Stderr, " limit=%d", q.Limit)
	}
	fmt.Fprintf(os.Stderr, "\nrecords used: %d", used)
	if truncated {
		fmt.Fprint(os.Stderr, " (context truncated)")
	}
	fmt.Fprintln(os.Stderr)
}

func parseValveFlags(pairs []string) (map[string]string, error) {
	overrides := make(map[string]string, len(pairs)+1)
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --valve %q, want NAME=VALUE", pair)
		}
		overrides[name] = value
	}
	return overrides, nil
}
