// Package aggregate collapses raw activity records into a bounded-size
// context block for model grounding.
package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/chronolens/chronolens/internal/domain/grounding"
	"github.com/chronolens/chronolens/internal/domain/record"
	"github.com/chronolens/chronolens/internal/metrics"
)

// DefaultPerItemCap bounds a single snippet's text payload in runes.
const DefaultPerItemCap = 2000

// timestampLayout is the display format for snippet timestamps (24-hour).
const timestampLayout = "01/02/06 15:04"

// rejectLength is the cutoff under which a bare courtesy transcription
// ("thank you") is treated as capture noise.
const rejectLength = 15

// Replacement rewrites a literal substring in snippet text. Replacements
// apply in order, so later pairs see the output of earlier ones.
type Replacement struct {
	Old string
	New string
}

// Options tune one aggregation pass.
type Options struct {
	Budget       int     // max rendered context size in characters, 0 = unbounded
	PerItemCap   int     // max snippet text payload in runes, 0 = uncapped
	UTCOffset    float64 // hours added to UTC for display timestamps
	Replacements []Replacement
}

// Service renders and packs activity records.
type Service struct {
	logger *zap.Logger
}

// New creates an aggregation service.
func New(logger *zap.Logger) *Service {
	return &Service{logger: logger}
}

// Aggregate renders records newest-first into snippets and packs them into
// a context block. Packing stops at the first snippet that would push the
// block past opts.Budget; that snippet and everything after it are dropped
// whole and the context is marked truncated. Duplicate renderings are
// included once. An empty input yields the explicit empty context, never
// an error.
func (s *Service) Aggregate(records []record.Record, opts Options) grounding.Context {
	kept := sanitize(records, opts.Replacements)

	sort.SliceStable(kept, func(i, j int) bool {
		if !kept[i].rec.Timestamp().Equal(kept[j].rec.Timestamp()) {
			return kept[i].rec.Timestamp().After(kept[j].rec.Timestamp())
		}
		if kept[i].rec.ID() != kept[j].rec.ID() {
			return kept[i].rec.ID() < kept[j].rec.ID()
		}
		return kept[i].rec.Kind() < kept[j].rec.Kind()
	})

	var (
		snippets  []string
		size      int
		truncated bool
		seen      = make(map[string]struct{}, len(kept))
		dropped   int
	)
	for _, item := range kept {
		snippet := renderSnippet(item.rec, item.text, opts)
		if _, dup := seen[snippet]; dup {
			dropped++
			continue
		}

		next := size + len(snippet)
		if len(snippets) > 0 {
			next += len("\n\n")
		}
		if opts.Budget > 0 && next > opts.Budget {
			truncated = true
			break
		}

		seen[snippet] = struct{}{}
		snippets = append(snippets, snippet)
		size = next
	}

	if dropped > 0 {
		s.logger.Debug("dropped duplicate snippets", zap.Int("count", dropped))
	}

	metrics.ContextSizeChars.Observe(float64(size))
	if truncated {
		metrics.ContextTruncationsTotal.Inc()
	}

	if len(snippets) == 0 {
		return grounding.Empty()
	}
	return grounding.New(snippets, size, truncated)
}

type sanitized struct {
	rec  record.Record
	text string
}

// sanitize drops capture noise and applies the replacement pairs to the
// text payload of every record kind.
func sanitize(records []record.Record, replacements []Replacement) []sanitized {
	kept := make([]sanitized, 0, len(records))
	for _, r := range records {
		text := strings.TrimSpace(r.Text())
		if isRejected(text) {
			continue
		}
		for _, rep := range replacements {
			text = strings.ReplaceAll(text, rep.Old, rep.New)
		}
		kept = append(kept, sanitized{rec: r, text: text})
	}
	return kept
}

// isRejected reports whether text is empty or a short courtesy
// transcription, both common artifacts of silence in audio capture.
func isRejected(text string) bool {
	if text == "" {
		return true
	}
	return utf8.RuneCountInString(text) < rejectLength &&
		strings.Contains(strings.ToLower(text), "thank you")
}

func renderSnippet(r record.Record, text string, opts Options) string {
	source := r.Source()
	if source == "" {
		source = "N/A"
	}
	shifted := r.Timestamp().Add(time.Duration(opts.UTCOffset * float64(time.Hour)))
	return fmt.Sprintf("### %s\n\n%s\n\n**Source:** %s  \n**Timestamp:** %s  \n___",
		strings.ToUpper(string(r.Kind())),
		capText(text, opts.PerItemCap),
		source,
		shifted.Format(timestampLayout),
	)
}

// capText trims text to limit runes, never splitting a rune.
func capText(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}
