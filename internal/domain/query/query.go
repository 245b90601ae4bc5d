package query

import (
	"encoding/json"
	"fmt"
	"time"
)

// ContentType selects which kind of captured activity to search.
type ContentType string

// Content type constants.
const (
	// All searches OCR and audio records together.
	All   ContentType = "all"
	OCR   ContentType = "ocr"
	Audio ContentType = "audio"
)

// IsValid checks if the content type is one of the supported values.
func (c ContentType) IsValid() bool {
	return c == All || c == OCR || c == Audio
}

// DefaultWindow is the lookback applied when a query implies recency
// without an explicit bound.
const DefaultWindow = 48 * time.Hour

// MaxLimit is the largest result count the activity index accepts.
const MaxLimit = 99

// Query is a validated, immutable search specification for the activity index.
type Query struct {
	contentType ContentType
	from        time.Time
	to          time.Time
	limit       int
	substring   string
	application string
}

// New validates and normalizes search parameters.
// An empty content type defaults to All. Zero from/to mean "unbounded" on
// that side. A zero limit means "server default"; limits above MaxLimit are
// clamped rather than rejected, since the index enforces the same cap.
func New(
	ct ContentType,
	from, to time.Time,
	limit int,
	substring, application string,
) (Query, error) {
	if ct == "" {
		ct = All
	}
	if !ct.IsValid() {
		return Query{}, fmt.Errorf("invalid content type: %q", ct)
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return Query{}, fmt.Errorf("time range inverted: %s after %s",
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	if limit < 0 {
		return Query{}, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Query{
		contentType: ct,
		from:        from.UTC(),
		to:          to.UTC(),
		limit:       limit,
		substring:   substring,
		application: application,
	}, nil
}

// Default returns the fallback query: all content types over the last two
// days relative to ref, no limit, no substring, no application filter.
func Default(ref time.Time) Query {
	ref = ref.UTC()
	return Query{
		contentType: All,
		from:        ref.Add(-DefaultWindow),
		to:          ref,
	}
}

// ContentType returns the kind of content to search.
func (q Query) ContentType() ContentType { return q.contentType }

// From returns the lower time bound (zero = unbounded).
func (q Query) From() time.Time { return q.from }

// To returns the upper time bound (zero = unbounded).
func (q Query) To() time.Time { return q.to }

// Limit returns the maximum result count (0 = server default).
func (q Query) Limit() int { return q.limit }

// Substring returns the text filter, if any.
func (q Query) Substring() string { return q.substring }

// Application returns the source application filter, if any.
func (q Query) Application() string { return q.application }

// HasTimeRange reports whether at least one time bound is set.
func (q Query) HasTimeRange() bool { return !q.from.IsZero() || !q.to.IsZero() }

// MarshalJSON renders the query with the extraction tool's field names,
// omitting unset fields. Used for run summaries and logs.
func (q Query) MarshalJSON() ([]byte, error) {
	out := map[string]any{"content_type": string(q.contentType)}
	if !q.from.IsZero() {
		out["from_time"] = q.from.Format(time.RFC3339)
	}
	if !q.to.IsZero() {
		out["to_time"] = q.to.Format(time.RFC3339)
	}
	if q.limit > 0 {
		out["limit"] = q.limit
	}
	if q.substring != "" {
		out["search_substring"] = q.substring
	}
	if q.application != "" {
		out["app_name"] = q.application
	}
	return json.Marshal(out)
}
