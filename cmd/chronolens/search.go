package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	chronolens "github.com/chronolens/chronolens/pkg/sdk"
)

var (
	flagSearchType   string
	flagSearchFrom   string
	flagSearchTo     string
	flagSearchLimit  int
	flagSearchFilter string
	flagSearchApp    string
	flagSearchOffset int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Query the activity index directly",
	Long: `Runs a structured query against the activity index, bypassing the
language model. Times accept RFC 3339 or a plain date (2006-01-02).`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runSearch()
	},
}

func init() {
	searchCmd.Flags().StringVar(&flagSearchType, "type", "all", "content type: all, ocr, or audio")
	searchCmd.Flags().StringVar(&flagSearchFrom, "from", "", "lower time bound")
	searchCmd.Flags().StringVar(&flagSearchTo, "to", "", "upper time bound")
	searchCmd.Flags().IntVar(&flagSearchLimit, "limit", 20, "maximum records to return")
	searchCmd.Flags().StringVar(&flagSearchFilter, "contains", "", "substring the record text must contain")
	searchCmd.Flags().StringVar(&flagSearchApp, "app", "", "source application filter")
	searchCmd.Flags().IntVar(&flagSearchOffset, "offset", 0, "pagination offset")
}

func runSearch() error {
	from, err := parseCLITime(flagSearchFrom, false)
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to, err := parseCLITime(flagSearchTo, true)
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}

	client, err := chronolens.New()
	if err != nil {
		return err
	}

	results, total, err := client.Search(context.Background(), chronolens.SearchParams{
		ContentType: flagSearchType,
		From:        from,
		To:          to,
		Limit:       flagSearchLimit,
		Substring:   flagSearchFilter,
		Application: flagSearchApp,
		Offset:      flagSearchOffset,
	})
	if err != nil {
		return err
	}

	for _, r := range results {
		text := strings.TrimSpace(r.Text)
		if line, _, multiline := strings.Cut(text, "\n"); multiline {
			text = line + " …"
		}
		if runes := []rune(text); len(runes) > 100 {
			text = string(runes[:100]) + "…"
		}
		fmt.Printf("%s  %-5s  %-30s  %s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04"), r.Kind, r.Source, text)
	}
	fmt.Printf("%d of %d matching records\n", len(results), total)
	return nil
}

// parseCLITime accepts RFC 3339 or a bare date. A bare date is midnight local
// time; with endOfDay set it covers the whole day instead.
func parseCLITime(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC 3339 or 2006-01-02, got %q", raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}
