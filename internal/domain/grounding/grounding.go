package grounding

import "strings"

// EmptyMarker is injected when retrieval produced no usable results, so the
// downstream model sees an explicit signal instead of an absent block.
const EmptyMarker = "no matching activity found"

// Context is the compressed block of retrieved activity ready for injection
// into a conversation.
type Context struct {
	snippets  []string
	size      int
	truncated bool
}

// New creates a context from rendered snippets. size is the character
// footprint of the joined text, truncated reports whether the source result
// set was cut to fit a budget.
func New(snippets []string, size int, truncated bool) Context {
	return Context{snippets: snippets, size: size, truncated: truncated}
}

// Empty returns a context carrying no results.
func Empty() Context {
	return Context{}
}

// Text renders the injectable block. An empty context renders the explicit
// empty marker rather than an empty string.
func (c Context) Text() string {
	if len(c.snippets) == 0 {
		return EmptyMarker
	}
	return strings.Join(c.snippets, "\n\n")
}

// Items returns how many snippets the context carries.
func (c Context) Items() int { return len(c.snippets) }

// Size returns the character footprint of the joined text.
func (c Context) Size() int { return c.size }

// Truncated reports whether results were dropped to respect the budget.
func (c Context) Truncated() bool { return c.truncated }

// IsEmpty reports whether the context carries no results.
func (c Context) IsEmpty() bool { return len(c.snippets) == 0 }
