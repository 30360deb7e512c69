package ports

import (
	"context"

	"github.com/forPelevin/storyreel/internal/types"
)

// Encoder is the media capability: cut, join, and narration remix.
type Encoder interface {
	// Cut re-encodes [iv.Start, iv.End) of source into out.
	Cut(ctx context.Context, source string, iv types.Interval, out string) error
	// Concat joins inputs in order into out without re-encoding.
	Concat(ctx context.Context, inputs []string, out string) error
	// Mix lays narration over the attenuated original audio of the video.
	Mix(ctx context.Context, req MixRequest) error
}

type MixRequest struct {
	Video         string
	Narration     string
	TempAudio     string
	Output        string
	OriginalGain  float64
	NarrationGain float64
}

type StoryWriter interface {
	Storyboard(ctx context.Context, rawText string) (types.Storyboard, error)
	Narration(ctx context.Context, sb types.Storyboard, rawText string) (string, error)
}

// ClipSearch returns candidates for a query, most relevant first.
type ClipSearch interface {
	Search(ctx context.Context, query string) ([]types.Candidate, error)
}

type Voice interface {
	Synthesize(ctx context.Context, text, outPath string) error
}
