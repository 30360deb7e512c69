package types

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

type Storyboard struct {
	Location string            `json:"location"`
	Events   []StoryboardEvent `json:"storyboard"`
}

// DuplicateIndex returns the first event index used by more than one event.
func (sb Storyboard) DuplicateIndex() (int, bool) {
	seen := make(map[int]struct{}, len(sb.Events))
	for _, ev := range sb.Events {
		if _, ok := seen[ev.Index]; ok {
			return ev.Index, true
		}
		seen[ev.Index] = struct{}{}
	}
	return 0, false
}

type StoryboardEvent struct {
	Index                int    `json:"index"`
	HighlightDescription string `json:"highlight_description"`
	Summary              string `json:"summary"`
	ShotType             string `json:"shot_type"`
}

// Candidate is one ranked time range returned by search. Rank 0 is the most
// relevant; list order is authoritative.
type Candidate struct {
	SourceID   string  `json:"video_id"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Rank       int     `json:"rank"`
	Score      float64 `json:"score,omitempty"`
	Confidence string  `json:"confidence,omitempty"`
}

func (c Candidate) Interval() Interval { return Interval{Start: c.Start, End: c.End} }

type EventCandidates struct {
	EventIndex int         `json:"event_index"`
	Query      string      `json:"query"`
	Clips      []Candidate `json:"clips"`
}

// CandidateSet holds one ranked list per storyboard event.
type CandidateSet struct {
	byEvent map[int]EventCandidates
}

func NewCandidateSet(lists ...EventCandidates) *CandidateSet {
	cs := &CandidateSet{byEvent: make(map[int]EventCandidates, len(lists))}
	for _, l := range lists {
		cs.Put(l)
	}
	return cs
}

// Put stores the list for an event, replacing any previous one. Ranks are
// rewritten from list position.
func (cs *CandidateSet) Put(l EventCandidates) {
	if cs.byEvent == nil {
		cs.byEvent = map[int]EventCandidates{}
	}
	clips := make([]Candidate, len(l.Clips))
	copy(clips, l.Clips)
	for i := range clips {
		clips[i].Rank = i
	}
	l.Clips = clips
	cs.byEvent[l.EventIndex] = l
}

func (cs *CandidateSet) For(eventIndex int) []Candidate {
	if cs == nil {
		return nil
	}
	return cs.byEvent[eventIndex].Clips
}

// Lists returns every stored list ordered by event index.
func (cs *CandidateSet) Lists() []EventCandidates {
	if cs == nil {
		return nil
	}
	out := make([]EventCandidates, 0, len(cs.byEvent))
	for _, l := range cs.byEvent {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventIndex < out[j].EventIndex })
	return out
}

// Interval is a half-open range [Start, End) in seconds on the source timeline.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Valid reports End > Start. NaN bounds are never valid.
func (iv Interval) Valid() bool { return iv.End > iv.Start }

func (iv Interval) Duration() float64 { return iv.End - iv.Start }

// Overlaps reports whether the intervals share an instant. Touching
// endpoints do not overlap.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start < o.End && iv.End > o.Start
}

// Clamp truncates the end so the duration never exceeds max. Invalid
// intervals are returned unchanged.
func (iv Interval) Clamp(max float64) Interval {
	if !iv.Valid() || max <= 0 || iv.End-iv.Start <= max {
		return iv
	}
	end := iv.Start + max
	// start+max can round above max for some starts.
	for end-iv.Start > max {
		end = math.Nextafter(end, iv.Start)
	}
	return Interval{Start: iv.Start, End: end}
}

// Millis snaps the interval inward to whole milliseconds, the precision of
// FormatSeconds. The result is never longer than iv.
func (iv Interval) Millis() Interval {
	const eps = 1e-6 // absorbs float error on values that already are whole ms
	return Interval{
		Start: math.Ceil(iv.Start*1000-eps) / 1000,
		End:   math.Floor(iv.End*1000+eps) / 1000,
	}
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", FormatSeconds(iv.Start), FormatSeconds(iv.End))
}

// ClipKey identifies a clamped clip on a source.
type ClipKey string

func NewClipKey(sourceID string, iv Interval) ClipKey {
	return ClipKey(sourceID + "_" + strconv.FormatFloat(iv.Start, 'f', -1, 64) + "_" + strconv.FormatFloat(iv.End, 'f', -1, 64))
}

type SelectedClip struct {
	Event    StoryboardEvent `json:"event"`
	Interval Interval        `json:"interval"`
	SourceID string          `json:"source_id"`
	Rank     int             `json:"rank"`
}

type ExtractedSegment struct {
	Clip SelectedClip `json:"clip"`
	Path string       `json:"path"`
}

// Timeline is the ordered list of extracted segments fed to concatenation.
type Timeline []ExtractedSegment

func (t Timeline) Paths() []string {
	out := make([]string, 0, len(t))
	for _, s := range t {
		out = append(out, s.Path)
	}
	return out
}

// Duration is the sum of segment intervals in seconds.
func (t Timeline) Duration() float64 {
	var total float64
	for _, s := range t {
		total += s.Clip.Interval.Duration()
	}
	return total
}

type Manifest struct {
	Project        string         `json:"project"`
	RunID          string         `json:"run_id"`
	SourceVideo    string         `json:"source_video"`
	NarrationAudio string         `json:"narration_audio"`
	Concatenated   string         `json:"concatenated"`
	Final          string         `json:"final"`
	Clips          []ManifestClip `json:"clips"`
	SkippedEvents  []int          `json:"skipped_events"`
	TotalSec       float64        `json:"total_sec"`
}

type ManifestClip struct {
	EventIndex  int     `json:"event_index"`
	Description string  `json:"description"`
	SourceID    string  `json:"source_id"`
	Rank        int     `json:"rank"`
	StartSec    float64 `json:"start_sec"`
	EndSec      float64 `json:"end_sec"`
	DurationSec float64 `json:"duration_sec"`
}

// FormatSeconds renders seconds with millisecond precision, the form ffmpeg
// accepts for -ss/-to.
func FormatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
