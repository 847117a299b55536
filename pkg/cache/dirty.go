package cache

import "sync"

// DirtySet tracks keys with local changes that have not been written back.
//
// Every Mark stamps the key with a fresh generation. A flush captures the
// current generations, writes the captured state, and then clears only the
// keys whose generation is unchanged, so a key marked again while the write
// was in flight stays dirty for the next flush.
type DirtySet[K comparable] struct {
	mu   sync.Mutex
	gens map[K]uint64
	next uint64
}

func NewDirtySet[K comparable]() *DirtySet[K] {
	return &DirtySet[K]{gens: make(map[K]uint64)}
}

// Mark flags k as dirty.
func (d *DirtySet[K]) Mark(k K) {
	d.mu.Lock()
	d.next++
	d.gens[k] = d.next
	d.mu.Unlock()
}

// Capture returns a snapshot of the dirty keys and their generations.
func (d *DirtySet[K]) Capture() map[K]uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[K]uint64, len(d.gens))
	for k, g := range d.gens {
		out[k] = g
	}
	return out
}

// Clear removes every captured key that has not been marked since capture.
func (d *DirtySet[K]) Clear(captured map[K]uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, g := range captured {
		if d.gens[k] == g {
			delete(d.gens, k)
		}
	}
}

// ClearOne is Clear for a single captured key.
func (d *DirtySet[K]) ClearOne(k K, gen uint64) {
	d.mu.Lock()
	if cur, ok := d.gens[k]; ok && cur == gen {
		delete(d.gens, k)
	}
	d.mu.Unlock()
}

// Discard drops k regardless of its generation.
func (d *DirtySet[K]) Discard(k K) {
	d.mu.Lock()
	delete(d.gens, k)
	d.mu.Unlock()
}

func (d *DirtySet[K]) Contains(k K) bool {
	d.mu.Lock()
	_, ok := d.gens[k]
	d.mu.Unlock()
	return ok
}

func (d *DirtySet[K]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.gens)
}
