// Package timesync converts the monotonic capture timestamps every
// schema.RecordHeader carries (nanoseconds since boot, the only clock
// available to in-kernel bytecode) into wall-clock time, so
// internal/handlers can diff a record's capture time against
// time.Now() and observe ring-buffer/demux-worker ingestion lag as
// honeybeepf_event_ingestion_lag_ns. Carried over from the teacher's
// own internal/timesync package, whose boot-time-from-/proc/stat
// approach already did exactly what that histogram needs.
package timesync
