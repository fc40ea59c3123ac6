package loser

// Layout follows Bryan Boreham's go-loser:
// https://github.com/bboreham/go-loser/blob/iter/tree.go.

import (
	"iter"
)

type Sequence[E any] interface {
	All() iter.Seq[E]
}

// Func adapts a plain iter.Seq to a Sequence.
type Func[E any] iter.Seq[E]

func (f Func[E]) All() iter.Seq[E] { return iter.Seq[E](f) }

// Slice is a Sequence over an in-memory slice.
type Slice[E any] []E

func (s Slice[E]) All() iter.Seq[E] {
	return func(yield func(E) bool) {
		for _, v := range s {
			if !yield(v) {
				return
			}
		}
	}
}

func New[E any](sequences []Sequence[E], compare func(a, b E) int) *Tree[E] {
	return &Tree[E]{
		sequences: sequences,
		compare:   compare,
	}
}

// A loser tree is a binary tree laid out such that nodes N and N+1 have parent N/2.
// We store M leaf nodes in positions M...2M-1, and M-1 internal nodes in positions 1..M-1.
// Node 0 is a special node, containing the winner of the contest.
type Tree[E any] struct {
	nodes     []node[E]
	sequences []Sequence[E]
	compare   func(a, b E) int
}

type node[E any] struct {
	index int              // The loser for internal nodes, the winner for node 0. Unused by leaves.
	value E                // Only populated for leaf nodes.
	done  bool             // The leaf's sequence is exhausted.
	next  func() (E, bool) // Only populated for leaf nodes.
}

func (t *Tree[E]) moveNext(leaf int) {
	n := &t.nodes[leaf]
	if v, ok := n.next(); ok {
		n.value = v
		return
	}
	var zero E
	n.value = zero
	n.done = true
}

// beats reports whether leaf a wins against leaf b. An exhausted leaf loses
// every game and equal values go to the lower leaf, so the order is total.
func (t *Tree[E]) beats(a, b int) bool {
	x, y := &t.nodes[a], &t.nodes[b]
	switch {
	case x.done:
		return false
	case y.done:
		return true
	}
	if c := t.compare(x.value, y.value); c != 0 {
		return c < 0
	}
	return a < b
}

// All merges the sequences. Values that compare equal are yielded in the
// order of the sequences they came from. The returned iterator pulls from
// the underlying sequences and should be ranged over once.
func (t *Tree[E]) All() iter.Seq[E] {
	return func(yield func(E) bool) {
		m := len(t.sequences)
		if m == 0 {
			return
		}

		t.nodes = make([]node[E], m*2)
		for i, s := range t.sequences {
			next, stop := iter.Pull(s.All())
			t.nodes[i+m].next = next
			//nolint:gocritic // is not a leak.
			defer stop()
			t.moveNext(i + m) // Call next() on each item to get the first value.
		}

		t.nodes[0].index = t.playGame(1)
		for {
			winner := t.nodes[0].index
			if t.nodes[winner].done || !yield(t.nodes[winner].value) {
				return
			}
			t.moveNext(winner)
			t.replayGames(winner)
		}
	}
}

// Find the winner at position pos; if it is a non-leaf node, store the loser.
// pos must be >= 1 and < len(t.nodes).
func (t *Tree[E]) playGame(pos int) int {
	if pos >= len(t.nodes)/2 {
		return pos
	}
	left := t.playGame(pos * 2)
	right := t.playGame(pos*2 + 1)
	loser, winner := left, right
	if t.beats(left, right) {
		loser, winner = right, left
	}
	t.nodes[pos].index = loser
	return winner
}

// Starting at pos, which is a winner, re-consider all values up to the root.
func (t *Tree[E]) replayGames(pos int) {
	for n := parent(pos); n != 0; n = parent(n) {
		node := &t.nodes[n]
		if t.beats(node.index, pos) {
			// Record pos as the loser here, and the old loser is the new winner.
			node.index, pos = pos, node.index
		}
	}
	// pos is now the winner; store it in node 0.
	t.nodes[0].index = pos
}

func parent(i int) int { return i >> 1 }
