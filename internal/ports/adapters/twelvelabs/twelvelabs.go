// Package twelvelabs finds candidate clips for a query with the TwelveLabs
// v1.3 search API.
package twelvelabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/forPelevin/storyreel/internal/ports/adapters/apiclient"
	"github.com/forPelevin/storyreel/internal/types"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://api.twelvelabs.io"

	searchPath     = "/v1.3/search"
	requestTimeout = 60 * time.Second
)

var DefaultSearchOptions = []string{"visual", "audio"}

type Options struct {
	APIKey  string
	BaseURL string
	IndexID string
	// VideoID restricts results to one indexed video.
	VideoID       string
	SearchOptions []string
}

type Adapter struct {
	opts Options
	api  *apiclient.Client
}

func New(opts Options, log zerolog.Logger) *Adapter {
	if len(opts.SearchOptions) == 0 {
		opts.SearchOptions = DefaultSearchOptions
	}
	return &Adapter{
		opts: opts,
		api: &apiclient.Client{
			Service: "twelvelabs",
			BaseURL: apiclient.NormalizeBaseURL(opts.BaseURL, DefaultBaseURL),
			Key:     opts.APIKey,
			Authorize: func(h http.Header, key string) {
				h.Set("x-api-key", key)
			},
			Timeout: requestTimeout,
			Log:     log.With().Str("component", "twelvelabs").Logger(),
		},
	}
}

type searchResponse struct {
	Data []struct {
		VideoID    string  `json:"video_id"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Score      float64 `json:"score"`
		Confidence string  `json:"confidence"`
	} `json:"data"`
}

// Search returns the first page of results in the order the service ranked
// them.
func (a *Adapter) Search(ctx context.Context, query string) ([]types.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("twelvelabs search: empty query")
	}
	if a.opts.IndexID == "" {
		return nil, errors.New("twelvelabs search: index id is required")
	}

	body, contentType, err := a.form(query)
	if err != nil {
		return nil, fmt.Errorf("twelvelabs search: %w", err)
	}

	var resp searchResponse
	err = a.api.Do(ctx, http.MethodPost, searchPath, contentType, body, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&resp)
	})
	if err != nil {
		return nil, fmt.Errorf("twelvelabs search %q: %w", query, err)
	}

	out := make([]types.Candidate, 0, len(resp.Data))
	for _, d := range resp.Data {
		out = append(out, types.Candidate{
			SourceID:   d.VideoID,
			Start:      d.Start,
			End:        d.End,
			Rank:       len(out),
			Score:      d.Score,
			Confidence: d.Confidence,
		})
	}
	return out, nil
}

func (a *Adapter) form(query string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"index_id", a.opts.IndexID},
		{"query_text", query},
	}
	for _, o := range a.opts.SearchOptions {
		fields = append(fields, [2]string{"search_options", o})
	}
	if a.opts.VideoID != "" {
		f, err := json.Marshal(map[string][]string{"id": {a.opts.VideoID}})
		if err != nil {
			return nil, "", err
		}
		fields = append(fields, [2]string{"filter", string(f)})
	}

	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
