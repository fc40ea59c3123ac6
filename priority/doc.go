// Package priority implements a keyed binary min-heap. Every value in the
// queue is addressed by a comparable key, which allows the value held for a
// key to be replaced in place and re-sifted without removing it first.
//
// The ordering is given by a three-way compare function in the style of
// cmp.Compare: a negative result means the first value leaves the queue
// before the second.
//
// Key features:
//   - Generic over any comparable key type and any value type
//   - O(log n) Set, Remove and Pop
//   - O(1) Peek and key lookups
//   - At most one value per key
//
// Basic usage:
//
//	pq := priority.NewQueue[string, int](cmp.Compare[int])
//
//	pq.Set("task1", 5)
//	pq.Set("task2", 3)
//
//	key, value, ok := pq.Peek() // "task2", 3, true
//
//	// Replace the value held by a key and restore heap order.
//	pq.Set("task1", 1)
//
//	for pq.Len() > 0 {
//	    key, value, _ = pq.Pop()
//	}
//
// The queue is not safe for concurrent use.
package priority
