package chronolens

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chronolens/chronolens/internal/domain/query"
	"github.com/chronolens/chronolens/internal/domain/record"
)

// Search runs a direct structured query against the activity index,
// bypassing extraction. It returns the matching records and the total
// number of matches known to the index.
func (c *Client) Search(ctx context.Context, params SearchParams) (_ []SearchResult, _ int, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	q, err := query.New(
		query.ContentType(strings.ToLower(params.ContentType)),
		params.From, params.To,
		params.Limit,
		params.Substring, params.Application,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("chronolens: search params: %w", err)
	}

	v, err := c.valves.Resolve(nil)
	if err != nil {
		return nil, 0, fmt.Errorf("chronolens: resolve valves: %w", err)
	}

	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	records, total, err := c.searcher.Search(ctx, v.IndexURL(), q, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("chronolens: search: %w", err)
	}

	out := make([]SearchResult, len(records))
	for i, r := range records {
		out[i] = resultFromRecord(r)
	}
	return out, total, nil
}

func resultFromRecord(r record.Record) SearchResult {
	return SearchResult{
		ID:         r.ID(),
		Kind:       string(r.Kind()),
		Text:       r.Text(),
		Source:     r.Source(),
		Timestamp:  r.Timestamp(),
		AppName:    r.AppName(),
		WindowName: r.WindowName(),
		DeviceName: r.DeviceName(),
		FilePath:   r.FilePath(),
		Tags:       r.Tags(),
	}
}
