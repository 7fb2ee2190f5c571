// Package ring wraps one lock-free single-producer/multi-consumer ring
// buffer per probe (spec.md §2 item 2, §4.1). Kernel bytecode writes
// records; this package owns the userspace reader side: bounded-timeout
// polling, in-order draining, and exposing the kernel-maintained
// dropped_records counter for the probe's ring.
package ring

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
)

// DefaultPollTimeout is the bounded wait for readable data before a
// drain returns empty-handed, per spec.md §4.1.
const DefaultPollTimeout = 100 * time.Millisecond

// DefaultSizeBytes is the default per-ring byte size (spec.md §4.1);
// must be a power of two, at least 4 KiB.
const DefaultSizeBytes = 1 << 20

// Reader drains one probe's ring buffer in arrival order. It never
// delivers a partial record: ringbuf.Reader.Read either returns a
// complete committed record or an error.
type Reader struct {
	name        string
	reader      *ringbuf.Reader
	droppedMap  *ebpf.Map // optional kernel-maintained drop counter, key 0
	pollTimeout time.Duration
}

// Option configures a Reader.
type Option func(*Reader)

// WithPollTimeout overrides DefaultPollTimeout.
func WithPollTimeout(d time.Duration) Option {
	return func(r *Reader) { r.pollTimeout = d }
}

// WithDropCounterMap attaches the kernel map holding this ring's
// dropped_records counter (a single-entry array map keyed by 0), if
// the probe's bytecode maintains one.
func WithDropCounterMap(m *ebpf.Map) Option {
	return func(r *Reader) { r.droppedMap = m }
}

// New opens a Reader over the given ring buffer map.
func New(name string, m *ebpf.Map, opts ...Option) (*Reader, error) {
	rd, err := ringbuf.NewReader(m)
	if err != nil {
		return nil, fmt.Errorf("ring %s: opening ring buffer: %w", name, err)
	}
	r := &Reader{name: name, reader: rd, pollTimeout: DefaultPollTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Name returns the probe/ring name, used for per-ring metric labels.
func (r *Reader) Name() string { return r.name }

// Close releases the underlying ring buffer reader.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		return fmt.Errorf("ring %s: closing: %w", r.name, err)
	}
	return nil
}

// ErrClosed is returned by Drain once the underlying ring has been closed.
var ErrClosed = ringbuf.ErrClosed

// Drain waits up to the configured poll timeout for readable data,
// then delivers every complete record currently available, in arrival
// order, to handle. It returns when the ring is empty, not when the
// caller should stop polling — the caller loops. The first handle error
// stops the drain and is returned wrapped; records after it stay in the
// ring for the next Drain.
func (r *Reader) Drain(handle func(raw []byte) error) error {
	deadline := time.Now().Add(r.pollTimeout)
	r.reader.SetDeadline(deadline)

	for {
		record, err := r.reader.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return ErrClosed
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("ring %s: reading record: %w", r.name, err)
		}

		if err := handle(record.RawSample); err != nil {
			return fmt.Errorf("ring %s: handling record: %w", r.name, err)
		}
	}
}

// DroppedRecords reads the kernel-maintained drop counter for this
// ring, if one was configured. Returns 0, nil when no drop counter map
// is attached.
func (r *Reader) DroppedRecords() (uint64, error) {
	if r.droppedMap == nil {
		return 0, nil
	}
	var key uint32
	var total uint64
	var perCPU []uint64
	if err := r.droppedMap.Lookup(&key, &perCPU); err != nil {
		// Fall back to a plain (non-per-CPU) map layout.
		if err2 := r.droppedMap.Lookup(&key, &total); err2 != nil {
			return 0, fmt.Errorf("ring %s: reading drop counter: %w", r.name, err)
		}
		return total, nil
	}
	for _, v := range perCPU {
		total += v
	}
	return total, nil
}
