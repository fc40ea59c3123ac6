// Package loser implements a tournament tree (also known as a loser tree) for efficiently
// merging multiple sorted sequences. This implementation is based on the work by Bryan
// Boreham (https://github.com/bboreham/go-loser).
//
// A loser tree is a binary tree structure where each internal node holds the "loser" of
// a comparison between its children, and the root holds the overall "winner". Merging M
// sequences costs about log2(M) comparisons per element.
//
// Exhausted sequences are marked on their leaf rather than padded with a maximum
// value, so the element type needs no sentinel.
//
// Basic usage:
//
//	tree := loser.New(
//	    []loser.Sequence[int]{loser.Slice[int]{1, 3, 5}, loser.Slice[int]{2, 4, 6}},
//	    cmp.Compare[int],
//	)
//
//	for v := range tree.All() {
//	    fmt.Println(v) // 1, 2, 3, 4, 5, 6
//	}
//
// Implementation Details:
// The loser tree is implemented as a binary tree laid out in an array where:
//   - For node N, its children are at positions 2N and 2N+1
//   - Leaf nodes are stored in positions M to 2M-1 (where M is the number of sequences)
//   - Internal nodes are stored in positions 1 to M-1
//   - Node 0 is special, containing the current winner
package loser
