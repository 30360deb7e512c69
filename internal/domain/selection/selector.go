package selection

import (
	"sort"

	"github.com/forPelevin/storyreel/internal/types"
	"github.com/rs/zerolog"
)

// DefaultMaxClipDuration is the longest clip, in seconds, taken from a
// single candidate.
const DefaultMaxClipDuration = 6.0

const (
	SkipNoCandidates = "no candidates"
	SkipAllRejected  = "all candidates overlap or invalid"
)

type Selector struct {
	MaxClipDuration float64
	Log             zerolog.Logger
}

type Skip struct {
	Event  types.StoryboardEvent
	Reason string
}

type Selection struct {
	Clips   []types.SelectedClip
	Skipped []Skip
}

// SkippedIndexes lists skipped event indexes in processing order.
func (s Selection) SkippedIndexes() []int {
	out := make([]int, 0, len(s.Skipped))
	for _, sk := range s.Skipped {
		out = append(out, sk.Event.Index)
	}
	return out
}

func New(maxClip float64, log zerolog.Logger) Selector {
	if maxClip <= 0 {
		maxClip = DefaultMaxClipDuration
	}
	return Selector{MaxClipDuration: maxClip, Log: log}
}

// Select picks at most one clip per event, walking events in ascending index
// and each event's candidates in rank order. The first clamped candidate that
// clears reg is registered and selected. Results depend only on the inputs
// and the state of reg.
func (s Selector) Select(events []types.StoryboardEvent, cands *types.CandidateSet, reg *Registry) Selection {
	ordered := make([]types.StoryboardEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var sel Selection
	for _, ev := range ordered {
		list := cands.For(ev.Index)
		if len(list) == 0 {
			s.skip(&sel, ev, SkipNoCandidates, 0)
			continue
		}

		clip, ok := s.pick(ev, list, reg)
		if !ok {
			s.skip(&sel, ev, SkipAllRejected, len(list))
			continue
		}
		sel.Clips = append(sel.Clips, clip)
		s.Log.Info().
			Int("event", ev.Index).
			Int("rank", clip.Rank).
			Float64("start", clip.Interval.Start).
			Float64("end", clip.Interval.End).
			Str("description", ev.HighlightDescription).
			Msg("clip selected")
	}
	return sel
}

func (s Selector) pick(ev types.StoryboardEvent, list []types.Candidate, reg *Registry) (types.SelectedClip, bool) {
	for _, c := range list {
		iv := c.Interval().Clamp(s.MaxClipDuration)
		if !iv.Valid() {
			s.Log.Debug().Int("event", ev.Index).Int("rank", c.Rank).Msg("candidate rejected: empty interval")
			continue
		}
		if reg.Overlaps(iv) {
			s.Log.Debug().Int("event", ev.Index).Int("rank", c.Rank).Stringer("interval", iv).Msg("candidate rejected: overlap")
			continue
		}
		reg.Register(types.NewClipKey(c.SourceID, iv), iv)
		return types.SelectedClip{Event: ev, Interval: iv, SourceID: c.SourceID, Rank: c.Rank}, true
	}
	return types.SelectedClip{}, false
}

func (s Selector) skip(sel *Selection, ev types.StoryboardEvent, reason string, tried int) {
	sel.Skipped = append(sel.Skipped, Skip{Event: ev, Reason: reason})
	s.Log.Warn().
		Int("event", ev.Index).
		Int("candidates", tried).
		Str("description", ev.HighlightDescription).
		Str("reason", reason).
		Msg("event skipped")
}
