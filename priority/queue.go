package priority

// item is a single slot in the heap. index tracks its position so that a
// keyed update can restore the heap without a linear scan.
type item[K comparable, V any] struct {
	key   K
	value V
	index int
}

// Queue is a binary min-heap of values addressable by key.
type Queue[K comparable, V any] struct {
	items   []*item[K, V]
	byKey   map[K]*item[K, V]
	compare func(a, b V) int // negative when a must leave the queue before b
}

// NewQueue creates an empty queue ordered by compare.
func NewQueue[K comparable, V any](compare func(a, b V) int) *Queue[K, V] {
	return &Queue[K, V]{
		items:   make([]*item[K, V], 0),
		byKey:   make(map[K]*item[K, V]),
		compare: compare,
	}
}

// NewQueueSize creates an empty queue with room for n keys.
func NewQueueSize[K comparable, V any](n int, compare func(a, b V) int) *Queue[K, V] {
	return &Queue[K, V]{
		items:   make([]*item[K, V], 0, n),
		byKey:   make(map[K]*item[K, V], n),
		compare: compare,
	}
}

// Len returns the number of keys in the queue.
func (q *Queue[K, V]) Len() int {
	return len(q.items)
}

// Get returns the value held for key.
func (q *Queue[K, V]) Get(key K) (V, bool) {
	it, ok := q.byKey[key]
	if !ok {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Set inserts key with value, or replaces the value already held for key
// and moves it to its new position.
func (q *Queue[K, V]) Set(key K, value V) {
	if it, ok := q.byKey[key]; ok {
		it.value = value
		q.fix(it.index)
		return
	}

	it := &item[K, V]{
		key:   key,
		value: value,
		index: len(q.items),
	}
	q.items = append(q.items, it)
	q.byKey[key] = it
	q.up(it.index)
}

// Remove deletes key from the queue. It reports whether the key was present.
func (q *Queue[K, V]) Remove(key K) bool {
	it, ok := q.byKey[key]
	if !ok {
		return false
	}

	idx := it.index
	last := len(q.items) - 1
	if idx != last {
		q.swap(idx, last)
	}
	q.items[last] = nil
	q.items = q.items[:last]
	delete(q.byKey, key)

	if idx < last {
		q.fix(idx)
	}
	return true
}

// Pop removes and returns the minimum entry.
func (q *Queue[K, V]) Pop() (key K, value V, ok bool) {
	if len(q.items) == 0 {
		return key, value, false
	}

	top := q.items[0]
	q.Remove(top.key)
	return top.key, top.value, true
}

// Peek returns the minimum entry without removing it.
func (q *Queue[K, V]) Peek() (key K, value V, ok bool) {
	if len(q.items) == 0 {
		return key, value, false
	}
	top := q.items[0]
	return top.key, top.value, true
}

func (q *Queue[K, V]) fix(i int) {
	if !q.down(i) {
		q.up(i)
	}
}

func (q *Queue[K, V]) swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *Queue[K, V]) less(i, j int) bool {
	return q.compare(q.items[i].value, q.items[j].value) < 0
}

func (q *Queue[K, V]) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !q.less(i, parent) {
			return
		}
		q.swap(i, parent)
		i = parent
	}
}

// down sifts the element at i towards the leaves and reports whether it moved.
func (q *Queue[K, V]) down(i int) bool {
	start := i
	n := len(q.items)
	for {
		smallest := i
		left, right := 2*i+1, 2*i+2

		if left < n && q.less(left, smallest) {
			smallest = left
		}
		if right < n && q.less(right, smallest) {
			smallest = right
		}
		if smallest == i {
			return i > start
		}

		q.swap(i, smallest)
		i = smallest
	}
}
