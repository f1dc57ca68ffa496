package store

import (
	"errors"
	"fmt"
)

// Key is the constraint for list keys. Zero is reserved and never issued.
type Key interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Structural errors. ErrPrevNotFound and ErrNextNotFound are always reported
// wrapped together with ErrMalformed.
var (
	ErrMalformed         = errors.New("store is malformed")
	ErrPrevNotFound      = errors.New("previous node not found")
	ErrNextNotFound      = errors.New("next node not found")
	ErrKeyspaceExhausted = errors.New("no free keys left")
)

// node links are keys into the same arena; 0 means no link.
type node[K Key, T any] struct {
	prev  K
	next  K
	value T
}

// positionHint remembers the last resolved (position, key) pair.
type positionHint[K Key] struct {
	pos   int
	key   K
	valid bool
}

// List is an ordered collection whose entries are addressed by a stable key
// and by their current position. Ordering is an intrusive doubly linked list
// stored as keys in an arena map.
//
// List is not safe for concurrent use; Store serialises access to it.
type List[K Key, T any] struct {
	nodes   map[K]*node[K, T]
	free    []K
	counter K
	head    K
	tail    K
	cache   positionHint[K]
}

// NewList creates an empty List.
func NewList[K Key, T any]() *List[K, T] {
	return &List[K, T]{
		nodes:   make(map[K]*node[K, T]),
		counter: 1,
	}
}

// Len returns the number of live entries.
func (l *List[K, T]) Len() int {
	return len(l.nodes)
}

// allocate returns an unused key. Retired keys are reissued LIFO before the
// counter advances. The counter wraps to 1 past the maximum and skips keys
// that are still live.
func (l *List[K, T]) allocate() (K, error) {
	if n := len(l.free); n > 0 {
		k := l.free[n-1]
		l.free = l.free[:n-1]
		return k, nil
	}

	maxKey := ^K(0)
	if uint64(len(l.nodes)) >= uint64(maxKey) {
		return 0, ErrKeyspaceExhausted
	}
	if l.counter == 0 {
		l.counter = 1
	}

	for {
		k := l.counter
		if l.counter == maxKey {
			l.counter = 1
		} else {
			l.counter++
		}
		if _, live := l.nodes[k]; !live {
			return k, nil
		}
	}
}

func (l *List[K, T]) initialize(k K, v T) {
	l.nodes[k] = &node[K, T]{value: v}
	l.head = k
	l.tail = k
}

// PushTail appends v and returns its key.
func (l *List[K, T]) PushTail(v T) (K, error) {
	k, err := l.allocate()
	if err != nil {
		return 0, err
	}

	if l.tail == 0 {
		l.initialize(k, v)
		return k, nil
	}

	tail, ok := l.nodes[l.tail]
	if !ok {
		l.free = append(l.free, k)
		return 0, fmt.Errorf("%w: tail %d has no entry", ErrMalformed, l.tail)
	}

	l.nodes[k] = &node[K, T]{prev: l.tail, value: v}
	tail.next = k
	l.tail = k
	return k, nil
}

// PushHead prepends v and returns its key.
func (l *List[K, T]) PushHead(v T) (K, error) {
	k, err := l.allocate()
	if err != nil {
		return 0, err
	}

	if l.head == 0 {
		l.initialize(k, v)
		return k, nil
	}

	head, ok := l.nodes[l.head]
	if !ok {
		l.free = append(l.free, k)
		return 0, fmt.Errorf("%w: head %d has no entry", ErrMalformed, l.head)
	}

	l.nodes[k] = &node[K, T]{next: l.head, value: v}
	head.prev = k
	l.head = k
	// every position shifted by one
	l.cache = positionHint[K]{}
	return k, nil
}

// Replace swaps the value stored under k and returns the previous one.
// Linkage, position and key are untouched. ok is false when k is not live.
func (l *List[K, T]) Replace(k K, v T) (old T, ok bool) {
	n, ok := l.nodes[k]
	if !ok {
		return old, false
	}
	old = n.value
	n.value = v
	return old, true
}

// Remove unlinks k and retires its key. A key that is not live is a no-op
// (ok false, nil error). A broken linkage returns an error wrapping
// ErrMalformed and leaves the list as it was.
func (l *List[K, T]) Remove(k K) (old T, ok bool, err error) {
	n, ok := l.nodes[k]
	if !ok {
		return old, false, nil
	}

	switch {
	case n.prev != 0 && n.next != 0:
		pn, found := l.nodes[n.prev]
		if !found {
			return old, false, fmt.Errorf("%w: %w", ErrMalformed, ErrPrevNotFound)
		}
		nn, found := l.nodes[n.next]
		if !found {
			return old, false, fmt.Errorf("%w: %w", ErrMalformed, ErrNextNotFound)
		}
		pn.next = n.next
		nn.prev = n.prev

	case n.prev != 0:
		if l.tail != k {
			return old, false, fmt.Errorf("%w: %d has no successor but tail is %d", ErrMalformed, k, l.tail)
		}
		pn, found := l.nodes[n.prev]
		if !found {
			return old, false, fmt.Errorf("%w: %w", ErrMalformed, ErrPrevNotFound)
		}
		pn.next = 0
		l.tail = n.prev

	case n.next != 0:
		if l.head != k {
			return old, false, fmt.Errorf("%w: %d has no predecessor but head is %d", ErrMalformed, k, l.head)
		}
		nn, found := l.nodes[n.next]
		if !found {
			return old, false, fmt.Errorf("%w: %w", ErrMalformed, ErrNextNotFound)
		}
		nn.prev = 0
		l.head = n.next

	default:
		if l.head != k || l.tail != k {
			return old, false, fmt.Errorf("%w: unlinked entry %d is not the sole entry", ErrMalformed, k)
		}
		l.head = 0
		l.tail = 0
	}

	delete(l.nodes, k)
	l.free = append(l.free, k)
	l.cache = positionHint[K]{}

	return n.value, true, nil
}

// Get returns the value stored under k.
func (l *List[K, T]) Get(k K) (T, bool) {
	n, ok := l.nodes[k]
	if !ok {
		var zero T
		return zero, false
	}
	return n.value, true
}

// Position returns the 0-based position of k. A key at or next to the
// position hint resolves without walking; otherwise the list is walked from
// the head and the hint moves to k.
func (l *List[K, T]) Position(k K) (int, bool) {
	if _, ok := l.nodes[k]; !ok {
		return 0, false
	}
	if pos, ok := l.positionFromHint(k); ok {
		return pos, true
	}

	pos := 0
	for cur := l.head; cur != 0; pos++ {
		if cur == k {
			l.cache = positionHint[K]{pos: pos, key: k, valid: true}
			return pos, true
		}
		n, ok := l.nodes[cur]
		if !ok {
			break
		}
		cur = n.next
	}
	return 0, false
}

func (l *List[K, T]) positionFromHint(k K) (int, bool) {
	if !l.cache.valid {
		return 0, false
	}
	if l.cache.key == k {
		return l.cache.pos, true
	}
	cached, ok := l.nodes[l.cache.key]
	if !ok {
		l.cache = positionHint[K]{}
		return 0, false
	}
	switch k {
	case cached.next:
		return l.cache.pos + 1, true
	case cached.prev:
		return l.cache.pos - 1, true
	}
	return 0, false
}

// Nth resolves a 0-based position. Sequential access is served from the
// position hint; anything else walks from whichever end is nearer.
func (l *List[K, T]) Nth(pos int) (T, bool) {
	var zero T
	size := len(l.nodes)
	if pos < 0 || pos >= size {
		return zero, false
	}

	if n, ok := l.nthFromHint(pos); ok {
		return n.value, true
	}

	var k K
	if pos < size/2 {
		k = l.head
		for i := 0; i < pos; i++ {
			n, ok := l.nodes[k]
			if !ok {
				return zero, false
			}
			k = n.next
		}
	} else {
		k = l.tail
		for i := size - 1; i > pos; i-- {
			n, ok := l.nodes[k]
			if !ok {
				return zero, false
			}
			k = n.prev
		}
	}

	n, ok := l.nodes[k]
	if !ok {
		return zero, false
	}
	l.cache = positionHint[K]{pos: pos, key: k, valid: true}
	return n.value, true
}

func (l *List[K, T]) nthFromHint(pos int) (*node[K, T], bool) {
	if !l.cache.valid {
		return nil, false
	}
	cached, ok := l.nodes[l.cache.key]
	if !ok {
		l.cache = positionHint[K]{}
		return nil, false
	}

	var k K
	switch pos {
	case l.cache.pos:
		return cached, true
	case l.cache.pos + 1:
		k = cached.next
	case l.cache.pos - 1:
		k = cached.prev
	default:
		return nil, false
	}

	n, ok := l.nodes[k]
	if k == 0 || !ok {
		return nil, false
	}
	l.cache = positionHint[K]{pos: pos, key: k, valid: true}
	return n, true
}

// Keys returns the live keys walking forward from the head.
func (l *List[K, T]) Keys() []K {
	keys := make([]K, 0, len(l.nodes))
	for cur := l.head; cur != 0 && len(keys) <= len(l.nodes); {
		n, ok := l.nodes[cur]
		if !ok {
			break
		}
		keys = append(keys, cur)
		cur = n.next
	}
	return keys
}

// KeysReverse returns the live keys walking backward from the tail.
func (l *List[K, T]) KeysReverse() []K {
	keys := make([]K, 0, len(l.nodes))
	for cur := l.tail; cur != 0 && len(keys) <= len(l.nodes); {
		n, ok := l.nodes[cur]
		if !ok {
			break
		}
		keys = append(keys, cur)
		cur = n.prev
	}
	return keys
}

// Values returns the live values in order.
func (l *List[K, T]) Values() []T {
	values := make([]T, 0, len(l.nodes))
	for _, k := range l.Keys() {
		values = append(values, l.nodes[k].value)
	}
	return values
}
