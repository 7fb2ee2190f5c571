// Package correlation defines the per-probe pending-call map (spec.md
// §2 item 5, §4.3): an in-kernel, tid-keyed LRU hash opened by the
// loader. Pairing an entry hook with its return hook executes entirely
// in kernel bytecode (out of this repository's scope per spec.md §1);
// this package owns only what the core does own: the map's spec, its
// lifecycle, and introspection of its depth and of the eviction counter
// the kernel side maintains. The loader takes the map as the bytecode
// object defines it and does not apply MapSpec, so the configured
// correlation_map_size does not change the map's size.
package correlation

import (
	"fmt"

	"github.com/cilium/ebpf"
)

// DefaultMapSize is the default pending-call map entry cap (spec.md §4.3).
const DefaultMapSize = 10_240

// MapSpec returns the ebpf.MapSpec for a probe's pending-call table:
// an LRU hash keyed by tid, sized to maxEntries (0 uses DefaultMapSize).
func MapSpec(name string, maxEntries uint32) *ebpf.MapSpec {
	if maxEntries == 0 {
		maxEntries = DefaultMapSize
	}
	return &ebpf.MapSpec{
		Name:       name,
		Type:       ebpf.LRUHash,
		KeySize:    4, // tid, uint32
		ValueSize:  32,
		MaxEntries: maxEntries,
	}
}

// Store introspects a probe's pending-call map and its companion
// eviction-count map (a single-entry array map the bytecode increments
// on LRU eviction, matching the pattern spec.md §4.3 describes).
type Store struct {
	probe       string
	pending     *ebpf.Map
	evictionMap *ebpf.Map // optional, single entry keyed by 0
}

// New wraps the pending-call map and, if present, its eviction counter map.
func New(probe string, pending *ebpf.Map, evictionMap *ebpf.Map) *Store {
	return &Store{probe: probe, pending: pending, evictionMap: evictionMap}
}

// Len reports the number of live in-flight calls, for resource-ceiling
// introspection (spec.md §5).
func (s *Store) Len() (int, error) {
	if s.pending == nil {
		return 0, nil
	}
	var key, nextKey uint32
	count := 0
	it := s.pending.Iterate()
	for it.Next(&nextKey, new([32]byte)) {
		count++
		key = nextKey
	}
	if err := it.Err(); err != nil {
		return 0, fmt.Errorf("correlation: iterating pending-call map for %s: %w", s.probe, err)
	}
	_ = key
	return count, nil
}

// Evictions reads the cumulative LRU-eviction count for this probe.
func (s *Store) Evictions() (uint64, error) {
	if s.evictionMap == nil {
		return 0, nil
	}
	var key uint32
	var perCPU []uint64
	if err := s.evictionMap.Lookup(&key, &perCPU); err != nil {
		return 0, fmt.Errorf("correlation: reading eviction counter for %s: %w", s.probe, err)
	}
	var total uint64
	for _, v := range perCPU {
		total += v
	}
	return total, nil
}

// Close releases the underlying map handles.
func (s *Store) Close() error {
	var errs []error
	if s.pending != nil {
		if err := s.pending.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.evictionMap != nil {
		if err := s.evictionMap.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("correlation: closing maps for %s: %v", s.probe, errs)
	}
	return nil
}
