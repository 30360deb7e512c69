package selection

import "github.com/forPelevin/storyreel/internal/types"

type claim struct {
	key types.ClipKey
	iv  types.Interval
}

// Registry tracks intervals claimed during one run. Overlap checks are global
// across keys because every candidate references the same source timeline;
// supporting several sources would need one Registry per source id.
//
// A Registry is owned by a single run and is not safe for concurrent use.
type Registry struct {
	claims []claim // admission order
	byKey  map[types.ClipKey][]types.Interval
}

func NewRegistry() *Registry {
	return &Registry{byKey: map[types.ClipKey][]types.Interval{}}
}

// Overlaps reports whether iv intersects any claimed interval. Claims are
// compared in admission order.
func (r *Registry) Overlaps(iv types.Interval) bool {
	for _, c := range r.claims {
		if iv.Overlaps(c.iv) {
			return true
		}
	}
	return false
}

// Register records iv under key. Callers check Overlaps first.
func (r *Registry) Register(key types.ClipKey, iv types.Interval) {
	r.claims = append(r.claims, claim{key: key, iv: iv})
	r.byKey[key] = append(r.byKey[key], iv)
}

func (r *Registry) Claims(key types.ClipKey) []types.Interval {
	return append([]types.Interval(nil), r.byKey[key]...)
}

// Intervals returns every claimed interval in admission order.
func (r *Registry) Intervals() []types.Interval {
	out := make([]types.Interval, 0, len(r.claims))
	for _, c := range r.claims {
		out = append(out, c.iv)
	}
	return out
}

func (r *Registry) Len() int { return len(r.claims) }
