package medley

import "sort"

// emissionReorder enforces full-resolution's ordering guarantee: items
// finish enrichment in whatever order their auxiliary resolves complete,
// but must reach the user callback in the order the owning provider
// streamed them.
//
// The provider's own frames carry no index, only a remaining-count that
// decreases toward the terminal frame; so the "expected sequence" is
// learned as frames arrive rather than known up front, and the head of
// that sequence plays the role of a contiguous-index cursor. The waiting
// list holds done-blocks that finished enrichment ahead of their turn,
// kept sorted descending by remaining (the largest remaining is the
// earliest pending position in the stream) so the next eligible entry is
// always at index 0.
type emissionReorder struct {
	expected []int64
	waiting  []*doneBlock
}

// learn records that a frame with this remaining value now occupies the
// next position in the emission sequence.
func (r *emissionReorder) learn(remaining int64) {
	r.expected = append(r.expected, remaining)
}

// ready inserts db, now fully resolved, into the waiting list and returns,
// in emission order, the run of done-blocks unblocked at the head of the
// expected sequence.
func (r *emissionReorder) ready(db *doneBlock) []*doneBlock {
	i := sort.Search(len(r.waiting), func(i int) bool { return r.waiting[i].remaining <= db.remaining })
	r.waiting = append(r.waiting, nil)
	copy(r.waiting[i+1:], r.waiting[i:])
	r.waiting[i] = db

	var flushed []*doneBlock
	for len(r.expected) > 0 && len(r.waiting) > 0 && r.waiting[0].remaining == r.expected[0] {
		flushed = append(flushed, r.waiting[0])
		r.waiting = r.waiting[1:]
		r.expected = r.expected[1:]
	}
	return flushed
}

// drained reports whether every learned position has been emitted.
func (r *emissionReorder) drained() bool { return len(r.expected) == 0 }
