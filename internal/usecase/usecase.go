package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forPelevin/storyreel/internal/domain/selection"
	"github.com/forPelevin/storyreel/internal/ports"
	"github.com/forPelevin/storyreel/internal/types"
	"github.com/rs/zerolog"
)

type Deps struct {
	Encoder ports.Encoder
	Writer  ports.StoryWriter
	Search  ports.ClipSearch
	Voice   ports.Voice
	Log     zerolog.Logger
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

type PrepareInput struct {
	RawText string
	// NarrationAudio is where the synthesized narration is written.
	NarrationAudio string
}

type Prepared struct {
	Storyboard     types.Storyboard
	Narration      string
	Candidates     *types.CandidateSet
	NarrationAudio string
}

// Prepare runs the collaborator calls that feed Assemble: storyboard,
// narration text, one search per event and speech synthesis.
func (u Usecase) Prepare(ctx context.Context, in PrepareInput) (Prepared, error) {
	log := u.d.Log
	var p Prepared

	sb, err := u.d.Writer.Storyboard(ctx, in.RawText)
	if err != nil {
		return p, stageErr("storyboard", nil, err)
	}
	if err := uniqueIndexes(sb.Events); err != nil {
		return p, stageErr("storyboard", nil, err)
	}
	p.Storyboard = sb
	log.Info().Int("events", len(sb.Events)).Str("location", sb.Location).Msg("storyboard ready")

	narration, err := u.d.Writer.Narration(ctx, sb, in.RawText)
	if err != nil {
		return p, stageErr("narration", nil, err)
	}
	p.Narration = narration
	log.Info().Int("chars", len(narration)).Msg("narration text ready")

	cands, err := u.search(ctx, sb.Events)
	if err != nil {
		return p, err
	}
	p.Candidates = cands

	if err := u.d.Voice.Synthesize(ctx, narration, in.NarrationAudio); err != nil {
		return p, stageErr("tts", nil, err, in.NarrationAudio)
	}
	p.NarrationAudio = in.NarrationAudio
	log.Info().Str("path", in.NarrationAudio).Msg("narration audio ready")
	return p, nil
}

// search queries once per distinct highlight description; events sharing a
// description share the result list.
func (u Usecase) search(ctx context.Context, events []types.StoryboardEvent) (*types.CandidateSet, error) {
	cache := map[string][]types.Candidate{}
	set := types.NewCandidateSet()
	for _, ev := range events {
		q := strings.TrimSpace(ev.HighlightDescription)
		clips, ok := cache[q]
		if !ok {
			var err error
			clips, err = u.d.Search.Search(ctx, q)
			if err != nil {
				return nil, stageErr("search", nil, fmt.Errorf("event %d: %w", ev.Index, err))
			}
			cache[q] = clips
			u.d.Log.Info().Int("event", ev.Index).Str("query", q).Int("candidates", len(clips)).Msg("search done")
		}
		set.Put(types.EventCandidates{EventIndex: ev.Index, Query: q, Clips: clips})
	}
	return set, nil
}

type AssembleInput struct {
	SourceVideo    string
	NarrationAudio string
	Events         []types.StoryboardEvent
	Candidates     *types.CandidateSet

	// Workspace receives the extracted segments.
	Workspace    string
	Concatenated string
	Final        string
	TempAudio    string

	MaxClipDuration float64
	OriginalGain    float64
	NarrationGain   float64
}

type Result struct {
	Selection selection.Selection
	Timeline  types.Timeline
	Manifest  types.Manifest
}

// Assemble runs select, extract, concatenate and mix in that order. Each
// stage needs the full output of the one before it.
func (u Usecase) Assemble(ctx context.Context, in AssembleInput) (Result, error) {
	log := u.d.Log
	var res Result

	for _, p := range []string{in.SourceVideo, in.NarrationAudio} {
		if err := requireFile(p); err != nil {
			return res, stageErr("input", ErrInputMissing, err, p)
		}
	}

	if err := uniqueIndexes(in.Events); err != nil {
		return res, stageErr("select", nil, err)
	}

	res.Selection = selection.New(in.MaxClipDuration, log).Select(in.Events, in.Candidates, selection.NewRegistry())
	log.Info().
		Int("selected", len(res.Selection.Clips)).
		Ints("skipped", res.Selection.SkippedIndexes()).
		Msg("selection done")

	for _, c := range res.Selection.Clips {
		out := filepath.Join(in.Workspace, fmt.Sprintf("clip_%d.mp4", c.Event.Index))
		if err := u.d.Encoder.Cut(ctx, in.SourceVideo, c.Interval, out); err != nil {
			return res, stageErr("extract", ErrExtraction, fmt.Errorf("event %d %v: %w", c.Event.Index, c.Interval, err), in.SourceVideo, out)
		}
		res.Timeline = append(res.Timeline, types.ExtractedSegment{Clip: c, Path: out})
	}
	log.Info().Int("segments", len(res.Timeline)).Msg("extraction done")

	if len(res.Timeline) == 0 {
		return res, &StageError{Stage: "concatenate", Err: ErrEmptyTimeline}
	}

	if err := u.d.Encoder.Concat(ctx, res.Timeline.Paths(), in.Concatenated); err != nil {
		return res, stageErr("concatenate", ErrConcatenation, err, in.Concatenated)
	}
	log.Info().Str("path", in.Concatenated).Msg("concatenation done")

	err := u.d.Encoder.Mix(ctx, ports.MixRequest{
		Video:         in.Concatenated,
		Narration:     in.NarrationAudio,
		TempAudio:     in.TempAudio,
		Output:        in.Final,
		OriginalGain:  in.OriginalGain,
		NarrationGain: in.NarrationGain,
	})
	if err != nil {
		return res, stageErr("mix", ErrMix, err, in.Concatenated, in.NarrationAudio, in.Final)
	}
	log.Info().Str("path", in.Final).Msg("mix done")

	res.Manifest = manifest(in, res)
	return res, nil
}

func manifest(in AssembleInput, res Result) types.Manifest {
	m := types.Manifest{
		SourceVideo:    in.SourceVideo,
		NarrationAudio: in.NarrationAudio,
		Concatenated:   in.Concatenated,
		Final:          in.Final,
		SkippedEvents:  res.Selection.SkippedIndexes(),
		TotalSec:       res.Timeline.Duration(),
	}
	for _, seg := range res.Timeline {
		c := seg.Clip
		m.Clips = append(m.Clips, types.ManifestClip{
			EventIndex:  c.Event.Index,
			Description: c.Event.HighlightDescription,
			SourceID:    c.SourceID,
			Rank:        c.Rank,
			StartSec:    c.Interval.Start,
			EndSec:      c.Interval.End,
			DurationSec: c.Interval.Duration(),
		})
	}
	return m
}

// uniqueIndexes rejects storyboards where two events share an index;
// candidate lists and segment files are keyed by it.
func uniqueIndexes(events []types.StoryboardEvent) error {
	if idx, ok := (types.Storyboard{Events: events}).DuplicateIndex(); ok {
		return fmt.Errorf("event index %d is used more than once", idx)
	}
	return nil
}

func requireFile(path string) error {
	if path == "" {
		return os.ErrNotExist
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
