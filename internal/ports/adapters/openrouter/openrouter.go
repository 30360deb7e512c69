package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/forPelevin/storyreel/internal/ports/adapters/apiclient"
	"github.com/forPelevin/storyreel/internal/types"
	"github.com/rs/zerolog"
)

const (
	DefaultModel = "openai/gpt-4o-2024-08-06"

	requestTimeout = 90 * time.Second

	storyboardPrompt = "Generate a structured JSON storyboard highlighting key moments in a video. " +
		"Ensure that the final storyboard can be narrated in around 25 seconds. " +
		"Number events from 0 in the order they should appear. " +
		"Each highlight_description is used verbatim as a video search query, so describe what is visible or audible. " +
		"Return strictly valid JSON (no markdown, no code fences) matching the provided schema."

	narrationPrompt = "Using the provided JSON highlights and raw news, create a concise, factual voiceover text " +
		"(about 25 seconds) clearly summarizing key events. Emphasize precise details. " +
		"Return strictly valid JSON (no markdown, no code fences) matching the provided schema."
)

type Adapter struct {
	model string
	api   *apiclient.Client
}

func New(apiKey, model, baseURL string, log zerolog.Logger) *Adapter {
	if model == "" {
		model = DefaultModel
	}
	return &Adapter{
		model: model,
		api: &apiclient.Client{
			Service: "openrouter",
			BaseURL: normalizeBaseURL(baseURL),
			Key:     apiKey,
			Authorize: func(h http.Header, key string) {
				h.Set("Authorization", "Bearer "+key)
			},
			Timeout: requestTimeout,
			HTTP:    &http.Client{Timeout: 5 * time.Minute},
			Log:     log.With().Str("component", "openrouter").Logger(),
		},
	}
}

// Storyboard asks the model for an ordered list of highlight events. Events
// come back sorted by index with blank descriptions dropped, then renumbered
// from 0 by position.
func (a *Adapter) Storyboard(ctx context.Context, rawText string) (types.Storyboard, error) {
	if strings.TrimSpace(rawText) == "" {
		return types.Storyboard{}, errors.New("openrouter storyboard: empty raw text")
	}

	var out types.Storyboard
	err := a.complete(ctx, "storyboard", storyboardSchema(), []message{
		{Role: "system", Content: storyboardPrompt},
		{Role: "user", Content: "Raw news: " + rawText},
	}, &out)
	if err != nil {
		return types.Storyboard{}, fmt.Errorf("openrouter storyboard: %w", err)
	}
	return normalizeStoryboard(out)
}

// Narration returns the narration text: the storyboard location, a blank
// line, then the generated voiceover.
func (a *Adapter) Narration(ctx context.Context, sb types.Storyboard, rawText string) (string, error) {
	sbJSON, err := json.Marshal(sb)
	if err != nil {
		return "", fmt.Errorf("openrouter narration: marshal storyboard: %w", err)
	}

	var out struct {
		ToVoiceover string `json:"to_voiceover"`
	}
	err = a.complete(ctx, "narration", narrationSchema(), []message{
		{Role: "system", Content: narrationPrompt},
		{Role: "user", Content: "Raw news: " + rawText},
		{Role: "user", Content: "Storyboard: " + string(sbJSON)},
	}, &out)
	if err != nil {
		return "", fmt.Errorf("openrouter narration: %w", err)
	}

	text := strings.TrimSpace(out.ToVoiceover)
	if text == "" {
		return "", errors.New("openrouter narration: empty voiceover")
	}
	return NarrationText(sb.Location, text), nil
}

// NarrationText joins the location line and the voiceover.
func NarrationText(location, voiceover string) string {
	return strings.TrimSpace(location) + "\n\n" + strings.TrimSpace(voiceover)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (a *Adapter) complete(ctx context.Context, schemaName string, schema map[string]any, msgs []message, dst any) error {
	payload := map[string]any{
		"model":    a.model,
		"stream":   false,
		"messages": msgs,
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName,
				"strict": true,
				"schema": schema,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	err = a.api.Do(ctx, http.MethodPost, "/api/v1/chat/completions", "application/json", body, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&raw)
	})
	if err != nil {
		return err
	}
	if len(raw.Choices) == 0 {
		return fmt.Errorf("no choices (model=%s)", a.model)
	}

	content, err := messageContentToString(raw.Choices[0].Message.Content)
	if err != nil {
		return err
	}
	clean, err := extractJSONObject(content)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(clean), dst); err != nil {
		return fmt.Errorf("decode %s: %w", schemaName, err)
	}
	return nil
}

func normalizeStoryboard(sb types.Storyboard) (types.Storyboard, error) {
	events := make([]types.StoryboardEvent, 0, len(sb.Events))
	for _, ev := range sb.Events {
		ev.HighlightDescription = strings.TrimSpace(ev.HighlightDescription)
		if ev.HighlightDescription == "" {
			continue
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return types.Storyboard{}, errors.New("openrouter storyboard: no events")
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Index < events[j].Index })
	// Candidates and segment files are keyed by index; the model may repeat one.
	for i := range events {
		events[i].Index = i
	}
	sb.Location = strings.TrimSpace(sb.Location)
	sb.Events = events
	return sb, nil
}

func storyboardSchema() map[string]any {
	str := map[string]any{"type": "string"}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": str,
			"storyboard": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"index":                 map[string]any{"type": "integer"},
						"highlight_description": str,
						"summary":               str,
						"shot_type":             str,
					},
					"required":             []string{"index", "highlight_description", "summary", "shot_type"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"location", "storyboard"},
		"additionalProperties": false,
	}
}

func narrationSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to_voiceover": map[string]any{"type": "string"},
		},
		"required":             []string{"to_voiceover"},
		"additionalProperties": false,
	}
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("openrouter: empty content")
	}

	// Strip markdown code fences.
	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	// Best-effort: take the first JSON object found.
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}

	return "", fmt.Errorf("openrouter: could not locate JSON object in: %q", apiclient.Truncate(t, 200))
}
