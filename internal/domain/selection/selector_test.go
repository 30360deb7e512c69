package selection

import (
	"math"
	"reflect"
	"testing"

	"github.com/forPelevin/storyreel/internal/types"
	"github.com/rs/zerolog"
)

func events(n int) []types.StoryboardEvent {
	out := make([]types.StoryboardEvent, n)
	for i := range out {
		out[i] = types.StoryboardEvent{Index: i, HighlightDescription: "event"}
	}
	return out
}

func cand(start, end float64) types.Candidate {
	return types.Candidate{SourceID: "vid", Start: start, End: end}
}

func TestSelect_ThreeDisjointEvents(t *testing.T) {
	cands := types.NewCandidateSet(
		types.EventCandidates{EventIndex: 0, Clips: []types.Candidate{cand(0, 4)}},
		types.EventCandidates{EventIndex: 1, Clips: []types.Candidate{cand(10, 14)}},
		types.EventCandidates{EventIndex: 2, Clips: []types.Candidate{cand(20, 24)}},
	)

	sel := New(6, zerolog.Nop()).Select(events(3), cands, NewRegistry())
	if len(sel.Clips) != 3 {
		t.Fatalf("expected 3 clips, got %d", len(sel.Clips))
	}
	var total float64
	for _, c := range sel.Clips {
		total += c.Interval.Duration()
	}
	if total != 12 {
		t.Fatalf("expected 12s total, got %v", total)
	}
	if len(sel.Skipped) != 0 {
		t.Fatalf("expected no skips, got %v", sel.Skipped)
	}
}

func TestSelect_FallsBackToNextRankOnOverlap(t *testing.T) {
	cands := types.NewCandidateSet(
		types.EventCandidates{EventIndex: 0, Clips: []types.Candidate{cand(5, 9)}},
		types.EventCandidates{EventIndex: 1, Clips: []types.Candidate{cand(5, 9), cand(30, 33)}},
	)

	sel := New(6, zerolog.Nop()).Select(events(2), cands, NewRegistry())
	if len(sel.Clips) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(sel.Clips))
	}
	if got := sel.Clips[0].Interval; got != (types.Interval{Start: 5, End: 9}) {
		t.Fatalf("event 0 should claim [5,9), got %v", got)
	}
	second := sel.Clips[1]
	if second.Interval != (types.Interval{Start: 30, End: 33}) || second.Rank != 1 {
		t.Fatalf("event 1 should take rank 1 [30,33), got %v rank %d", second.Interval, second.Rank)
	}
}

func TestSelect_ClampsBeforeOverlapCheck(t *testing.T) {
	// [100,112) would collide with [108,110) unclamped; clamped to [100,106) it fits.
	cands := types.NewCandidateSet(
		types.EventCandidates{EventIndex: 0, Clips: []types.Candidate{cand(108, 110)}},
		types.EventCandidates{EventIndex: 1, Clips: []types.Candidate{cand(100, 112)}},
	)

	reg := NewRegistry()
	sel := New(6, zerolog.Nop()).Select(events(2), cands, reg)
	if len(sel.Clips) != 2 {
		t.Fatalf("expected 2 clips, got %d (skipped %v)", len(sel.Clips), sel.Skipped)
	}
	if got := sel.Clips[1].Interval; got != (types.Interval{Start: 100, End: 106}) {
		t.Fatalf("expected clamp to [100,106), got %v", got)
	}
	if n := len(reg.Claims(types.NewClipKey("vid", types.Interval{Start: 100, End: 106}))); n != 1 {
		t.Fatalf("expected registry key from clamped bounds, got %d claims", n)
	}
}

func TestSelect_AllOverlappingLeavesOneClip(t *testing.T) {
	same := []types.Candidate{cand(0, 5), cand(1, 4), cand(2, 3)}
	cands := types.NewCandidateSet(
		types.EventCandidates{EventIndex: 0, Clips: same},
		types.EventCandidates{EventIndex: 1, Clips: same},
		types.EventCandidates{EventIndex: 2, Clips: same},
	)

	sel := New(6, zerolog.Nop()).Select(events(3), cands, NewRegistry())
	if len(sel.Clips) != 1 {
		t.Fatalf("expected only the first event to claim a clip, got %d", len(sel.Clips))
	}
	if !reflect.DeepEqual(sel.SkippedIndexes(), []int{1, 2}) {
		t.Fatalf("unexpected skipped events: %v", sel.SkippedIndexes())
	}
	for _, sk := range sel.Skipped {
		if sk.Reason != SkipAllRejected {
			t.Fatalf("unexpected skip reason %q", sk.Reason)
		}
	}
}

func TestSelect_EmptyAndInvalidCandidates(t *testing.T) {
	cands := types.NewCandidateSet(
		types.EventCandidates{EventIndex: 1, Clips: []types.Candidate{cand(7, 7), cand(9, 3), cand(math.NaN(), 4), cand(20, math.NaN()), cand(40, 41)}},
	)

	sel := New(6, zerolog.Nop()).Select(events(2), cands, NewRegistry())
	if len(sel.Clips) != 1 || sel.Clips[0].Rank != 4 {
		t.Fatalf("expected rank 4 to be selected after invalid ones, got %+v", sel.Clips)
	}
	if len(sel.Skipped) != 1 || sel.Skipped[0].Event.Index != 0 || sel.Skipped[0].Reason != SkipNoCandidates {
		t.Fatalf("expected event 0 skipped for no candidates, got %+v", sel.Skipped)
	}
}

func TestSelect_ProcessesEventsInIndexOrder(t *testing.T) {
	cands := types.NewCandidateSet(
		types.EventCandidates{EventIndex: 0, Clips: []types.Candidate{cand(0, 4)}},
		types.EventCandidates{EventIndex: 1, Clips: []types.Candidate{cand(0, 4), cand(50, 52)}},
	)
	shuffled := []types.StoryboardEvent{{Index: 1}, {Index: 0}}

	sel := New(6, zerolog.Nop()).Select(shuffled, cands, NewRegistry())
	if len(sel.Clips) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(sel.Clips))
	}
	if sel.Clips[0].Event.Index != 0 || sel.Clips[0].Interval.Start != 0 {
		t.Fatalf("event 0 must be processed first, got %+v", sel.Clips[0])
	}
	if sel.Clips[1].Interval.Start != 50 {
		t.Fatalf("event 1 should fall back to [50,52), got %v", sel.Clips[1].Interval)
	}
}

func TestSelect_PropertiesOverDenseInput(t *testing.T) {
	const maxClip = 6.0
	var lists []types.EventCandidates
	for ev := 0; ev < 12; ev++ {
		var clips []types.Candidate
		for k := 0; k < 8; k++ {
			start := float64((ev*7+k*13)%90) + 0.1*float64(k)
			clips = append(clips, cand(start, start+float64(1+(ev+k)%11)))
		}
		lists = append(lists, types.EventCandidates{EventIndex: ev, Clips: clips})
	}

	run := func() Selection {
		return New(maxClip, zerolog.Nop()).Select(events(12), types.NewCandidateSet(lists...), NewRegistry())
	}
	first := run()

	for i, a := range first.Clips {
		if d := a.Interval.Duration(); d > maxClip {
			t.Fatalf("clip %d exceeds max duration: %v", i, d)
		}
		for j, b := range first.Clips {
			if i != j && a.Interval.Overlaps(b.Interval) {
				t.Fatalf("clips %d and %d overlap: %v %v", i, j, a.Interval, b.Interval)
			}
		}
		if i > 0 && first.Clips[i-1].Event.Index >= a.Event.Index {
			t.Fatalf("clips out of event order at %d", i)
		}
	}

	if second := run(); !reflect.DeepEqual(first, second) {
		t.Fatalf("selection is not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestInterval_ClampNeverExceedsMax(t *testing.T) {
	for _, start := range []float64{0, 0.1, 0.3, 1.7, 33.33, 1234.567, 98765.4321} {
		iv := types.Interval{Start: start, End: start + 100}.Clamp(6)
		if iv.Duration() > 6 {
			t.Fatalf("clamp from %v produced %v", start, iv.Duration())
		}
		if !iv.Valid() {
			t.Fatalf("clamp from %v produced invalid interval %v", start, iv)
		}
	}
}
