// Package activity talks to the activity index REST API: the local service
// that captures and stores screen text, audio transcriptions, and file
// matches.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/chronolens/chronolens/internal/domain"
	"github.com/chronolens/chronolens/internal/domain/query"
	"github.com/chronolens/chronolens/internal/domain/record"
)

// searchTimeout bounds one index round trip.
const searchTimeout = 10 * time.Second

// timeParam is the timestamp layout the index accepts.
const timeParam = "2006-01-02T15:04:05Z"

// Client is an activity index client.
type Client struct {
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates an activity index client.
func NewClient(logger *zap.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: searchTimeout},
		logger: logger,
	}
}

// Search runs a structured query against the index at baseURL. It returns
// the decoded records and the total number of matches the index reports.
// Unavailability (network, timeout, 5xx) and rejection (4xx) are wrapped
// with the corresponding domain sentinels.
func (c *Client) Search(ctx context.Context, baseURL string, q query.Query, offset int) ([]record.Record, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/search", nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build search request: %w", err)
	}
	req.URL.RawQuery = searchParams(q, offset).Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("index search: %v: %w", err, domain.ErrIndexUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 500 {
			return nil, 0, fmt.Errorf("index error %d: %s: %w", resp.StatusCode, body, domain.ErrIndexUnavailable)
		}
		return nil, 0, fmt.Errorf("index rejected query %d: %s: %w", resp.StatusCode, body, domain.ErrIndexRejected)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %v: %w", err, domain.ErrIndexUnavailable)
	}

	records := make([]record.Record, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		rec, ok, err := item.toRecord()
		if err != nil {
			return nil, 0, fmt.Errorf("decode %s record: %v: %w", item.Type, err, domain.ErrIndexUnavailable)
		}
		if !ok {
			c.logger.Debug("skipping record of unknown type", zap.String("type", item.Type))
			continue
		}
		records = append(records, rec)
	}

	return records, decoded.Pagination.Total, nil
}

// Health probes the index health endpoint.
func (c *Client) Health(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("index health: %v: %w", err, domain.ErrIndexUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("index health status %d: %w", resp.StatusCode, domain.ErrIndexUnavailable)
	}
	return nil
}

// searchParams maps a query to the index's parameter names. Empty filters
// are omitted rather than sent blank.
func searchParams(q query.Query, offset int) url.Values {
	params := url.Values{}
	params.Set("content_type", string(q.ContentType()))

	if !q.From().IsZero() {
		params.Set("start_time", q.From().UTC().Format(timeParam))
	}
	if !q.To().IsZero() {
		params.Set("end_time", q.To().UTC().Format(timeParam))
	}
	if q.Limit() > 0 {
		params.Set("limit", strconv.Itoa(q.Limit()))
	}
	if q.Substring() != "" {
		params.Set("q", q.Substring())
	}
	if app := q.Application(); app != "" {
		// The index matches app names in capitalized form.
		params.Set("app_name", capitalize(app))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	return params
}

// capitalize upcases the first rune and lowercases the rest.
func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	for i := 1; i < len(runes); i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

// --- Wire types ---

type searchResponse struct {
	Data       []searchItem `json:"data"`
	Pagination pagination   `json:"pagination"`
}

type pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

type searchItem struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

type ocrContent struct {
	FrameID    int64     `json:"frame_id"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	AppName    string    `json:"app_name"`
	WindowName string    `json:"window_name"`
	Tags       []string  `json:"tags"`
}

type audioContent struct {
	ChunkID       int64     `json:"chunk_id"`
	Transcription string    `json:"transcription"`
	Timestamp     time.Time `json:"timestamp"`
	DeviceName    string    `json:"device_name"`
	Tags          []string  `json:"tags"`
}

type ftsContent struct {
	TextID      int64     `json:"text_id"`
	MatchedText string    `json:"matched_text"`
	Timestamp   time.Time `json:"timestamp"`
	FilePath    string    `json:"file_path"`
	Tags        []string  `json:"tags"`
}

// toRecord converts one wire item to a domain record. ok is false for
// types this client does not understand.
func (s searchItem) toRecord() (record.Record, bool, error) {
	switch s.Type {
	case "OCR":
		var c ocrContent
		if err := json.Unmarshal(s.Content, &c); err != nil {
			return record.Record{}, false, err
		}
		return record.NewOCR(c.FrameID, c.Timestamp, c.Text, c.AppName, c.WindowName, c.Tags), true, nil
	case "Audio":
		var c audioContent
		if err := json.Unmarshal(s.Content, &c); err != nil {
			return record.Record{}, false, err
		}
		return record.NewAudio(c.ChunkID, c.Timestamp, c.Transcription, c.DeviceName, c.Tags), true, nil
	case "FTS":
		var c ftsContent
		if err := json.Unmarshal(s.Content, &c); err != nil {
			return record.Record{}, false, err
		}
		return record.NewFTS(c.TextID, c.Timestamp, c.MatchedText, c.FilePath, c.Tags), true, nil
	}
	return record.Record{}, false, nil
}
