// Package schema is the single declarative source for event record
// layouts. In-kernel bytecode and userspace decoding are meant to be
// generated from one declaration to prevent drift (spec.md §9); this
// package is that declaration's Go side. Every record begins with
// RecordHeader at offset 0 and every payload has a constant, advertised
// size so the ring transport can validate length before a handler ever
// sees the bytes.
package schema
